package models

import "time"

// SessionRecord is one persisted key in the session_records table.
type SessionRecord struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName pins the table created by the migrations.
func (SessionRecord) TableName() string {
	return "session_records"
}
