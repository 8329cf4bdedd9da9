package storage

import (
	"context"
	"time"

	"opsportal/internal/models"
)

// Storage is the persistence contract for the portal. Backends hold users,
// sessions issued by the sign-in flow, and per-session rate limit windows.
// Every method may fail with a wrapped backend error; missing rows are
// reported as ErrNotFound.
type Storage interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// GetUserByOpsID retrieves a user by ops id.
	GetUserByOpsID(ctx context.Context, opsID string) (*models.User, error)

	// GetUserByEmail retrieves a user by normalized email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListProcessors returns active processors matching query, ordered by name.
	ListProcessors(ctx context.Context, query models.ProcessorQuery) ([]*models.User, error)

	// SaveUser creates or replaces a user keyed by ops id.
	SaveUser(ctx context.Context, user *models.User) error

	// GetSession retrieves a session by id. Expiry is not checked here.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// SaveSession creates or replaces a session.
	SaveSession(ctx context.Context, session *models.Session) error

	// GetSessionRateLimit returns the current window for a session, or nil
	// when none exists.
	GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error)

	// ResetSessionRateLimit deletes the window for a session.
	ResetSessionRateLimit(ctx context.Context, sessionID string) error

	// IncrementSessionRateLimit atomically opens, resets or increments the
	// window for a session and returns the resulting record.
	IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error)

	// Close releases backend resources.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}
