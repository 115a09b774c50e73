package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/big14way/wagmi-project/pkg/db"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Config selects and configures the session storage backend.
type Config struct {
	Backend Backend

	// SQLitePath is the database file for the sqlite backend
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisPrefix namespaces keys so several apps can share a database
	RedisPrefix string

	Postgres db.Config
}

// NewStorageConfig reads SESSION_BACKEND and the backend's settings from the
// environment, loading a .env file first if one exists.
func NewStorageConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Backend:       Backend(os.Getenv("SESSION_BACKEND")),
		SQLitePath:    os.Getenv("SESSION_SQLITE_PATH"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:   os.Getenv("REDIS_PREFIX"),
		Postgres:      db.NewConfigFromEnv(),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		config.RedisDB = n
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate fills defaults and checks the selected backend's settings.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}

	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			path, err := defaultSQLitePath()
			if err != nil {
				return err
			}
			c.SQLitePath = path
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("REDIS_DB must not be negative")
		}
		if c.RedisPrefix == "" {
			c.RedisPrefix = "walletctl"
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}
	return nil
}

func defaultSQLitePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, "walletctl", "session.db"), nil
}
