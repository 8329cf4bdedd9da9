package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opsportal/internal/models"

	_ "modernc.org/sqlite"
)

// sqliteSchema bootstraps the tables the portal reads. Times are stored as
// unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	ops_id         TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL,
	status         TEXT NOT NULL,
	processor_name TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	ops_id     TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_rate_limits (
	session_id TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

const sqliteUserColumns = `ops_id, email, name, role, status, processor_name, created_at, updated_at`

// SQLiteStorage implements Storage on a single SQLite database file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates missing tables.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	if err := ss.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetUserByOpsID(ctx context.Context, opsID string) (*models.User, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE ops_id = ?`, opsID)
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", opsID, err)
	}
	return user, nil
}

func (ss *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, models.NormalizeEmail(email))
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (ss *SQLiteStorage) ListProcessors(ctx context.Context, query models.ProcessorQuery) ([]*models.User, error) {
	query.Normalize()

	rows, err := ss.db.QueryContext(ctx, `
		SELECT `+sqliteUserColumns+` FROM users
		WHERE role = ? AND status = ?
		  AND (? = '' OR instr(lower(ops_id), lower(?)) > 0 OR instr(lower(name), lower(?)) > 0
		       OR instr(lower(email), lower(?)) > 0 OR instr(lower(processor_name), lower(?)) > 0)
		ORDER BY name, ops_id
		LIMIT ?`,
		models.RoleProcessor, models.UserStatusActive,
		query.Query, query.Query, query.Query, query.Query, query.Query,
		query.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list processors: %w", err)
	}
	defer rows.Close()

	processors := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list processors: %w", err)
		}
		processors = append(processors, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list processors: %w", err)
	}
	return processors, nil
}

func (ss *SQLiteStorage) SaveUser(ctx context.Context, user *models.User) error {
	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO users (`+sqliteUserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ops_id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			status = excluded.status,
			processor_name = excluded.processor_name,
			updated_at = excluded.updated_at`,
		user.OpsID, models.NormalizeEmail(user.Email), user.Name, user.Role, user.Status,
		user.ProcessorName, toMillis(user.CreatedAt), toMillis(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save user %s: %w", user.OpsID, err)
	}
	return nil
}

func (ss *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var (
		s                    models.Session
		createdAt, expiresAt int64
	)
	err := ss.db.QueryRowContext(ctx,
		`SELECT id, ops_id, email, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.OpsID, &s.Email, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return &s, nil
}

func (ss *SQLiteStorage) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO sessions (id, ops_id, email, created_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ops_id = excluded.ops_id,
			email = excluded.email,
			expires_at = excluded.expires_at`,
		session.ID, session.OpsID, session.Email, toMillis(session.CreatedAt), toMillis(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error) {
	var count, expiresAt int64
	err := ss.db.QueryRowContext(ctx,
		`SELECT count, expires_at FROM session_rate_limits WHERE session_id = ?`, sessionID,
	).Scan(&count, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session rate limit: %w", err)
	}
	return &models.RateLimitRecord{Key: sessionID, Count: count, ExpiresAt: fromMillis(expiresAt)}, nil
}

func (ss *SQLiteStorage) ResetSessionRateLimit(ctx context.Context, sessionID string) error {
	if _, err := ss.db.ExecContext(ctx,
		`DELETE FROM session_rate_limits WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("reset session rate limit: %w", err)
	}
	return nil
}

// IncrementSessionRateLimit runs as one upsert so concurrent requests for a
// new session cannot create two windows.
func (ss *SQLiteStorage) IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error) {
	nowMs := toMillis(now)
	var count, expiresAt int64
	err := ss.db.QueryRowContext(ctx, `
		INSERT INTO session_rate_limits (session_id, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			count = CASE WHEN session_rate_limits.expires_at <= ? THEN 1 ELSE session_rate_limits.count + 1 END,
			expires_at = CASE WHEN session_rate_limits.expires_at <= ? THEN excluded.expires_at ELSE session_rate_limits.expires_at END
		RETURNING count, expires_at`,
		sessionID, toMillis(now.Add(window)), nowMs, nowMs,
	).Scan(&count, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("increment session rate limit: %w", err)
	}
	return &models.RateLimitRecord{Key: sessionID, Count: count, ExpiresAt: fromMillis(expiresAt)}, nil
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.OpsID, &u.Email, &u.Name, &u.Role, &u.Status, &u.ProcessorName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
