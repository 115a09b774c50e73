// Package db connects to Postgres for durable session records.
package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SetupDatabase runs pending migrations and opens a GORM connection.
func SetupDatabase(ctx context.Context, cfg Config, logger *logrus.Logger) (*gorm.DB, error) {
	logger.Debug("Starting database setup")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := RunMigrations(logger, cfg); err != nil {
		return nil, err
	}

	logger.Debug("Establishing GORM database connection")

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: NewGormLogrusLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Name,
	}).Info("Database setup completed successfully")
	return db, nil
}
