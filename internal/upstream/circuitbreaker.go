package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerState represents the state of a circuit breaker
type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"
	BreakerStateOpen     BreakerState = "open"
	BreakerStateHalfOpen BreakerState = "half-open"
)

// BreakerStatus contains status information about a circuit breaker
type BreakerStatus struct {
	Name         string       `json:"name"`
	State        BreakerState `json:"state"`
	Requests     uint32       `json:"requests"`
	TotalSuccess uint32       `json:"total_success"`
	TotalFailure uint32       `json:"total_failure"`
}

// Breakers manages one circuit breaker per upstream service
type Breakers struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   config.CircuitBreakerConfig
	mu       sync.RWMutex
}

// NewBreakers creates a new circuit breaker manager
func NewBreakers(cfg config.CircuitBreakerConfig) *Breakers {
	if cfg.FailureThreshold == 0 {
		cfg = config.Default().CircuitBreaker
	}
	return &Breakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
}

// get returns or creates the breaker for a service
func (b *Breakers) get(service string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	cb, exists := b.breakers[service]
	b.mu.RUnlock()
	if exists {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, exists = b.breakers[service]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("upstream-%s", service),
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state changed")
			monitoring.SetCircuitBreakerState(service, stateToGauge(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Only transport failures and upstream 5xx trip the breaker
			return !errors.Is(err, ErrUpstream) && !errors.Is(err, ErrUpstreamTimeout)
		},
	})

	b.breakers[service] = cb
	return cb
}

// Execute runs fn under the service's breaker
func (b *Breakers) Execute(ctx context.Context, service string, fn func() (any, error)) (any, error) {
	cb := b.get(service)

	result, err := cb.Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("service", service).
				Msg("Circuit breaker is open, rejecting request")
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// Status returns the status of every breaker created so far
func (b *Breakers) Status() []*BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	statuses := make([]*BreakerStatus, 0, len(b.breakers))
	for service, cb := range b.breakers {
		counts := cb.Counts()
		statuses = append(statuses, &BreakerStatus{
			Name:         service,
			State:        BreakerState(stateToString(cb.State())),
			Requests:     counts.Requests,
			TotalSuccess: counts.TotalSuccesses,
			TotalFailure: counts.TotalFailures,
		})
	}
	return statuses
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return string(BreakerStateClosed)
	case gobreaker.StateOpen:
		return string(BreakerStateOpen)
	case gobreaker.StateHalfOpen:
		return string(BreakerStateHalfOpen)
	default:
		return "unknown"
	}
}

func stateToGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// withTimeout bounds a call by the configured timeout unless the caller set a shorter deadline
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
