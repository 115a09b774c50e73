package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/big14way/wagmi-project/pkg/db"
	"github.com/big14way/wagmi-project/pkg/db/models"
)

// Postgres stores values in the session_records table.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres migrates the schema and connects.
func OpenPostgres(ctx context.Context, cfg db.Config, logger *logrus.Logger) (*Postgres, error) {
	conn, err := db.SetupDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: conn}, nil
}

// Get loads the record for key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var record models.SessionRecord
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return record.Value, true, nil
}

// Set upserts the record for key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	record := models.SessionRecord{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes the record for key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).Where("key = ?", key).Delete(&models.SessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
