package calllog

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store keeps entries in a SQL table through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to driver ("sqlite" or "mysql") and migrates the call log table.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported call log driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection and migrates the call log table.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate call log: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	e.ID = 0
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for target, newest first.
// An empty target returns entries for every panel.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("id desc").Limit(limit)
	if target != "" {
		q = q.Where("target = ?", target)
	}
	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query call log: %w", err)
	}
	return entries, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
