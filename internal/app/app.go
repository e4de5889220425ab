// Package app assembles the store, upstream clients and services from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/ReviewDesk/internal/cache"
	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/database"
	"github.com/aimerfeng/ReviewDesk/internal/monitoring"
	"github.com/aimerfeng/ReviewDesk/internal/ratelimit"
	"github.com/aimerfeng/ReviewDesk/internal/reply"
	"github.com/aimerfeng/ReviewDesk/internal/settings"
	"github.com/aimerfeng/ReviewDesk/internal/store"
	"github.com/aimerfeng/ReviewDesk/internal/upstream"
	"github.com/rs/zerolog/log"
)

const poolStatsInterval = 15 * time.Second

// App holds the wired services
type App struct {
	Config    *config.Config
	Store     store.Store
	Redis     *cache.Redis
	Limiter   *ratelimit.Limiter
	Breakers  *upstream.Breakers
	Generator *upstream.Generator
	Poster    *upstream.Poster
	Settings  *settings.Service
	Reviews   *reply.Service

	db       *database.DB
	stopPool context.CancelFunc
}

// New opens the configured store and optional Redis connection and builds
// the services on top of them
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewFromURL(ctx, cfg.Redis.URL)
		if err != nil {
			// Redis only backs rate limiting, which fails open
			log.Warn().Err(err).Msg("Redis unavailable, continuing without rate limiting")
		} else {
			a.Redis = redisClient
		}
	}
	if a.Redis != nil && cfg.RateLimit.Enabled {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		a.Limiter = ratelimit.New(a.Redis, "draft", cfg.RateLimit.DraftLimit, window)
	}

	a.Breakers = upstream.NewBreakers(cfg.CircuitBreaker)
	a.Generator = upstream.NewGenerator(cfg.Generator, a.Breakers)
	a.Poster = upstream.NewPoster(cfg.Posting, a.Breakers)
	if !a.Generator.Configured() {
		log.Warn().Msg("REPLY_WEBHOOK_URL not set, reply drafting is disabled")
	}
	if !a.Poster.Configured() {
		log.Warn().Msg("POST_WEBHOOK_URL not set, Google replies will not be posted")
	}

	a.Settings = settings.NewService(a.Store)
	a.Reviews = reply.NewService(a.Store, a.Settings, a.Generator, a.Poster, cfg.Automation)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("SQLite store opened")
		a.Store = s
		return nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := database.RunMigrations(cfg.URL, 0); err != nil {
				return err
			}
		}
		db, err := database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		a.db = db
		a.Store = store.NewPostgres(db.Pool)

		poolCtx, cancel := context.WithCancel(context.Background())
		a.stopPool = cancel
		go a.reportPoolStats(poolCtx)
		return nil
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// reportPoolStats publishes connection pool gauges until ctx is done
func (a *App) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		stat := a.db.Pool.Stat()
		monitoring.SetDBConnections(int(stat.AcquiredConns()), int(stat.IdleConns()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases the store, pool and Redis connection
func (a *App) Close() {
	if a.stopPool != nil {
		a.stopPool()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close review store")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
