package store

import "time"

// Earning is one persisted ledger row: a completed conversation's payout.
type Earning struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	UserID          string `gorm:"size:64;index;not null"`
	TopicID         string `gorm:"size:64;index"`
	TopicName       string `gorm:"size:128"`
	Amount          float64
	DurationSeconds int
	CreatedAt       time.Time `gorm:"index"`
}

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&Earning{},
	}
}
