package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/room-chat/internal/metrics"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

type OpenConfig struct {
	// Backends are tried in order; the memory store is used when none of them is reachable.
	Backends []string
	// PostgresDSNs are tried in order for every "postgres" entry (e.g. primary, then local).
	Postgres       PostgresConfig
	PostgresDSNs   []string
	RedisURL       string
	BadgerPath     string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// Open connects to the first reachable backend and wraps it in a Guarded store.
// It never fails: an unreachable durable backend degrades to the in-memory store.
func Open(ctx context.Context, cfg OpenConfig, log *slog.Logger) (*Guarded, string) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	for _, backend := range cfg.Backends {
		s, err := openBackend(ctx, backend, cfg, log)
		if err != nil {
			log.Warn("store backend unavailable", "backend", backend, "err", err)
			continue
		}
		if s == nil {
			continue
		}
		log.Info("store connected", "backend", backend)
		metrics.StoreFallback.Set(0)
		return NewGuarded(s, cfg.OpTimeout), backend
	}

	log.Warn("running without durable store, using in-memory storage: data will be lost on restart")
	metrics.StoreFallback.Set(1)
	return NewGuarded(NewMemoryStore(), cfg.OpTimeout), BackendMemory
}

func openBackend(ctx context.Context, backend string, cfg OpenConfig, log *slog.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	switch backend {
	case BackendPostgres:
		var lastErr error
		for _, dsn := range cfg.PostgresDSNs {
			pc := cfg.Postgres
			pc.DSN = dsn
			s, err := NewPostgresStore(ctx, pc)
			if err == nil {
				return s, nil
			}
			log.Warn("postgres connection failed", "err", err)
			lastErr = err
		}
		if lastErr == nil {
			return nil, fmt.Errorf("no postgres dsn configured")
		}
		return nil, lastErr
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("no redis url configured")
		}
		return NewRedisStore(ctx, cfg.RedisURL)
	case BackendBadger:
		return NewBadgerStore(cfg.BadgerPath)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
