// Package storage provides the durable key-value backends behind the session
// store: in-memory, SQLite, Postgres and Redis.
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Store is a small key-value store. Get reports a missing key with ok=false
// and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open connects to the backend selected by cfg.
func Open(ctx context.Context, cfg *Config, logger *logrus.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.WithField("backend", cfg.Backend).Debug("Opening session storage")

	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.Postgres, logger)
	case BackendRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
