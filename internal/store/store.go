package store

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lantelyes/curiosity-engine/internal/earnings"
)

// Store persists the earnings ledger through GORM. It satisfies
// earnings.Ledger.
type Store struct {
	db *gorm.DB
}

// Open connects to the ledger database. Driver is "mysql" or "sqlite".
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", driver, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing GORM connection, used by tests.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates all ledger tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Record inserts one completed conversation's earnings.
func (s *Store) Record(ctx context.Context, e earnings.Entry) error {
	row := Earning{
		UserID:          e.UserID,
		TopicID:         e.TopicID,
		TopicName:       e.TopicName,
		Amount:          e.Amount,
		DurationSeconds: e.DurationSeconds,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("db: record earning for %s: %w", e.UserID, err)
	}
	return nil
}

// Stats aggregates a user's ledger: lifetime total, today's total and
// count, and a Monday-first week series with zero-filled days.
func (s *Store) Stats(ctx context.Context, userID string) (earnings.Stats, error) {
	stats := earnings.Stats{WeekData: earnings.EmptyWeek()}

	var total float64
	err := s.db.WithContext(ctx).Model(&Earning{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return earnings.Stats{}, fmt.Errorf("db: total for %s: %w", userID, err)
	}
	stats.Total = total

	now := s.db.NowFunc()
	dayStart := earnings.StartOfDay(now)
	weekStart := earnings.StartOfWeek(now)

	var rows []Earning
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, weekStart).
		Find(&rows).Error
	if err != nil {
		return earnings.Stats{}, fmt.Errorf("db: week rows for %s: %w", userID, err)
	}

	for _, r := range rows {
		if !r.CreatedAt.Before(dayStart) {
			stats.Daily += r.Amount
			stats.CompletedToday++
		}
		idx := earnings.DayOffset(weekStart, r.CreatedAt)
		if idx >= 0 && idx < len(stats.WeekData) {
			stats.WeekData[idx].Amount += r.Amount
		}
	}
	return stats, nil
}
