package journal

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB implements Journal on any gorm dialector
type DB struct {
	db *gorm.DB
}

var _ Journal = (*DB)(nil)

func open(dialector gorm.Dialector) (*DB, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := gormDB.AutoMigrate(&Session{}, &Call{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{db: gormDB}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) SaveCall(ctx context.Context, call *Call) error {
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}
	return db.db.WithContext(ctx).Create(call).Error
}

func (db *DB) GetCalls(ctx context.Context, sessionID string) ([]*Call, error) {
	var calls []*Call
	err := db.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp asc, id asc").
		Find(&calls).Error
	return calls, err
}

func (db *DB) GetCallsWithPagination(ctx context.Context, sessionID string, page, pageSize int) ([]*Call, error) {
	var calls []*Call
	offset := (page - 1) * pageSize
	err := db.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp asc, id asc").
		Offset(offset).
		Limit(pageSize).
		Find(&calls).Error
	return calls, err
}

func (db *DB) CreateSession(ctx context.Context, sessionID, service string) error {
	session := &Session{
		ID:        sessionID,
		Service:   service,
		CreatedAt: time.Now(),
	}
	return db.db.WithContext(ctx).Create(session).Error
}

func (db *DB) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := db.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", sessionID).
		Count(&count).Error
	return count > 0, err
}

func (db *DB) GetSessions(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	err := db.db.WithContext(ctx).
		Order("created_at desc").
		Find(&sessions).Error
	return sessions, err
}
