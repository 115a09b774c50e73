package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// RunMigrations applies every pending migration.
func RunMigrations(logger *logrus.Logger, cfg Config) error {
	m, path, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	logger.WithField("migrations_path", path).Debug("Running database migrations")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrationStatus returns the current migration version and dirty state
func MigrationStatus(logger *logrus.Logger, cfg Config) (uint, bool, error) {
	logger.Debug("Checking migration status")

	m, _, err := newMigrator(cfg)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Debug("Migration status retrieved")

	return version, dirty, nil
}

func newMigrator(cfg Config) (*migrate.Migrate, string, error) {
	dir, err := cfg.migrationsDir()
	if err != nil {
		return nil, "", err
	}
	path := "file://" + dir

	m, err := migrate.New(path, cfg.URL())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, path, nil
}
