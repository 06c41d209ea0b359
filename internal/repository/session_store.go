package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OpenDatabase opens a gorm handle for the named driver ("postgres" or
// "sqlite") and migrates the session table.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.AutoMigrate(&domain.SessionEntry{}); err != nil {
		return nil, fmt.Errorf("migrate session entries: %w", err)
	}
	return db, nil
}

// GormSessionStore keeps session keys in a SQL table. Expired rows read as
// absent and are removed by CleanupExpired.
type GormSessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db, now: time.Now}
}

func (s *GormSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	var e domain.SessionEntry
	err := s.db.WithContext(ctx).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.now().UTC()).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_entry", "get", "not_found")
			return "", false, nil
		}
		observability.RecordRepositoryOperation(ctx, "session_entry", "get", "error")
		return "", false, err
	}
	observability.RecordRepositoryOperation(ctx, "session_entry", "get", "success")
	return e.Value, true, nil
}

func (s *GormSessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := domain.SessionEntry{Key: key, Value: value}
	if ttl > 0 {
		exp := s.now().UTC().Add(ttl)
		e.ExpiresAt = &exp
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_entry", "set", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_entry", "set", "success")
	return nil
}

func (s *GormSessionStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.SessionEntry{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_entry", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_entry", "delete", "success")
	return nil
}

func (s *GormSessionStore) CleanupExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).Delete(&domain.SessionEntry{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_entry", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_entry", "cleanup_expired", "success")
	return res.RowsAffected, nil
}

// Ping reports whether the database answers; used by the readiness probe.
func (s *GormSessionStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
