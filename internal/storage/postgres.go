package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsportal/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	ops_id         TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL,
	status         TEXT NOT NULL,
	processor_name TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	ops_id     TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS session_rate_limits (
	session_id TEXT PRIMARY KEY,
	count      BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

const pgUserColumns = `ops_id, email, name, role, status, processor_name, created_at, updated_at`

// PostgresStorage implements the Storage interface on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and creates
// missing tables.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 && int32(config.MaxIdleConns) <= poolConfig.MaxConns {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	if err := ps.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetUserByOpsID(ctx context.Context, opsID string) (*models.User, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE ops_id = $1`, opsID)
	user, err := scanPGUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", opsID, err)
	}
	return user, nil
}

func (ps *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email))
	user, err := scanPGUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (ps *PostgresStorage) ListProcessors(ctx context.Context, query models.ProcessorQuery) ([]*models.User, error) {
	query.Normalize()

	rows, err := ps.pool.Query(ctx, `
		SELECT `+pgUserColumns+` FROM users
		WHERE role = $1 AND status = $2
		  AND ($3 = '' OR strpos(lower(ops_id), lower($3)) > 0 OR strpos(lower(name), lower($3)) > 0
		       OR strpos(lower(email), lower($3)) > 0 OR strpos(lower(processor_name), lower($3)) > 0)
		ORDER BY name, ops_id
		LIMIT $4`,
		models.RoleProcessor, models.UserStatusActive, query.Query, query.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list processors: %w", err)
	}
	defer rows.Close()

	processors := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanPGUser(rows)
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

func (ps *PostgresStorage) SaveUser(ctx context.Context, user *models.User) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO users (`+pgUserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ops_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			processor_name = EXCLUDED.processor_name,
			updated_at = EXCLUDED.updated_at`,
		user.OpsID, models.NormalizeEmail(user.Email), user.Name, user.Role, user.Status,
		user.ProcessorName, timeOrNow(user.CreatedAt), timeOrNow(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save user %s: %w", user.OpsID, err)
	}
	return nil
}

func (ps *PostgresStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := ps.pool.QueryRow(ctx,
		`SELECT id, ops_id, email, created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.OpsID, &s.Email, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (ps *PostgresStorage) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO sessions (id, ops_id, email, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			ops_id = EXCLUDED.ops_id,
			email = EXCLUDED.email,
			expires_at = EXCLUDED.expires_at`,
		session.ID, session.OpsID, session.Email, timeOrNow(session.CreatedAt), session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error) {
	rec := models.RateLimitRecord{Key: sessionID}
	err := ps.pool.QueryRow(ctx,
		`SELECT count, expires_at FROM session_rate_limits WHERE session_id = $1`, sessionID,
	).Scan(&rec.Count, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session rate limit: %w", err)
	}
	return &rec, nil
}

func (ps *PostgresStorage) ResetSessionRateLimit(ctx context.Context, sessionID string) error {
	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM session_rate_limits WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("reset session rate limit: %w", err)
	}
	return nil
}

// IncrementSessionRateLimit is a single upsert; the row lock taken by
// ON CONFLICT serializes concurrent increments for the same session.
func (ps *PostgresStorage) IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error) {
	rec := models.RateLimitRecord{Key: sessionID}
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO session_rate_limits (session_id, count, expires_at) VALUES ($1, 1, $2)
		ON CONFLICT (session_id) DO UPDATE SET
			count = CASE WHEN session_rate_limits.expires_at <= $3 THEN 1 ELSE session_rate_limits.count + 1 END,
			expires_at = CASE WHEN session_rate_limits.expires_at <= $3 THEN EXCLUDED.expires_at ELSE session_rate_limits.expires_at END
		RETURNING count, expires_at`,
		sessionID, now.Add(window), now,
	).Scan(&rec.Count, &rec.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("increment session rate limit: %w", err)
	}
	return &rec, nil
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPGUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.OpsID, &u.Email, &u.Name, &u.Role, &u.Status, &u.ProcessorName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
