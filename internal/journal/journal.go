package journal

import (
	"context"
	"time"

	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/pkg/errors"
)

// Journal persists the calls served by a service, grouped by conversation.
type Journal interface {
	// Close closes the database connection.
	Close() error

	// SaveCall saves one served call.
	SaveCall(ctx context.Context, call *Call) error

	// GetCalls gets the calls of a conversation in arrival order.
	GetCalls(ctx context.Context, sessionID string) ([]*Call, error)

	// GetCallsWithPagination gets the calls of a conversation one page at a time.
	GetCallsWithPagination(ctx context.Context, sessionID string, page, pageSize int) ([]*Call, error)

	// CreateSession records a conversation under its thread id.
	CreateSession(ctx context.Context, sessionID, service string) error

	// SessionExists checks if a conversation was recorded.
	SessionExists(ctx context.Context, sessionID string) (bool, error)

	// GetSessions gets every recorded conversation, newest first.
	GetSessions(ctx context.Context) ([]*Session, error)
}

// Session is a recorded conversation, keyed by thread id
type Session struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(128)"`
	Service   string    `json:"service" gorm:"type:varchar(128);index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Call is one request served inside a conversation
type Call struct {
	ID          uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID   string        `json:"sessionId" gorm:"type:varchar(128);index"`
	ThreadTrace int           `json:"threadTrace"`
	Service     string        `json:"service" gorm:"type:varchar(128)"`
	Method      string        `json:"method" gorm:"type:varchar(255)"`
	Params      string        `json:"params"`
	StatusCode  int           `json:"statusCode"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp" gorm:"index"`
}

// New creates the journal selected by cfg.Type. An empty type disables journaling.
func New(cfg *config.DatabaseConfig) (Journal, error) {
	switch cfg.Type {
	case "":
		return Noop{}, nil
	case "postgres":
		return NewPostgres(cfg)
	case "sqlite":
		return NewSQLite(cfg)
	case "mysql":
		return NewMySQL(cfg)
	default:
		return nil, errors.ErrUnsupportedDriver(cfg.Type)
	}
}
