package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/alicebob/miniredis/v2"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "reviews.db")
	return cfg
}

func TestNew_SQLite(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Redis != nil || a.Limiter != nil {
		t.Error("Redis and limiter should be disabled without REDIS_URL")
	}
	if a.Generator.Configured() {
		t.Error("generator should not be configured without a URL")
	}

	ctx := context.Background()
	result, err := a.Reviews.Ingest(ctx, []any{map[string]any{"id": "t1", "rating": float64(4)}}, models.SourceTripAdvisor)
	if err != nil || result.Stored != 1 {
		t.Fatalf("Ingest() = %+v, %v", result, err)
	}
	if err := a.Store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Redis == nil || a.Limiter == nil {
		t.Fatal("Redis-backed limiter should be configured")
	}
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1"

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() should continue without Redis, got %v", err)
	}
	defer a.Close()
	if a.Limiter != nil {
		t.Error("limiter should be disabled when Redis is unreachable")
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() should reject an unknown driver")
	}
}
