package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsportal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract exercises behaviour every backend must share.
func runStorageContract(t *testing.T, s Storage) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := []*models.User{
		{OpsID: "OPS-001", Email: "Alice@Example.com", Name: "Alice", Role: models.RoleProcessor, Status: models.UserStatusActive, ProcessorName: "Alice P", CreatedAt: base, UpdatedAt: base},
		{OpsID: "OPS-002", Email: "bob@example.com", Name: "Bob", Role: models.RoleProcessor, Status: models.UserStatusActive, CreatedAt: base, UpdatedAt: base},
		{OpsID: "OPS-003", Email: "carol@example.com", Name: "Carol", Role: models.RoleProcessor, Status: models.UserStatusInactive, CreatedAt: base, UpdatedAt: base},
		{OpsID: "OPS-004", Email: "dave@example.com", Name: "Dave", Role: models.RoleAdmin, Status: models.UserStatusActive, CreatedAt: base, UpdatedAt: base},
	}
	for _, u := range seed {
		require.NoError(t, s.SaveUser(ctx, u))
	}

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("GetUserByOpsID", func(t *testing.T) {
		u, err := s.GetUserByOpsID(ctx, "OPS-001")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Email, "email is normalized on save")
		assert.Equal(t, "Alice P", u.ProcessorName)
		assert.True(t, base.Equal(u.CreatedAt))

		_, err = s.GetUserByOpsID(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("GetUserByEmail", func(t *testing.T) {
		u, err := s.GetUserByEmail(ctx, "  BOB@example.com ")
		require.NoError(t, err)
		assert.Equal(t, "OPS-002", u.OpsID)

		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("SaveUser replaces", func(t *testing.T) {
		u, err := s.GetUserByOpsID(ctx, "OPS-002")
		require.NoError(t, err)
		u.Name = "Robert"
		u.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.SaveUser(ctx, u))

		got, err := s.GetUserByOpsID(ctx, "OPS-002")
		require.NoError(t, err)
		assert.Equal(t, "Robert", got.Name)
	})

	t.Run("ListProcessors", func(t *testing.T) {
		all, err := s.ListProcessors(ctx, models.ProcessorQuery{})
		require.NoError(t, err)
		require.Len(t, all, 2, "inactive and non-processor users are excluded")
		assert.Equal(t, "OPS-001", all[0].OpsID)
		assert.Equal(t, "OPS-002", all[1].OpsID)

		filtered, err := s.ListProcessors(ctx, models.ProcessorQuery{Query: "ROBERT"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "OPS-002", filtered[0].OpsID)

		limited, err := s.ListProcessors(ctx, models.ProcessorQuery{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		none, err := s.ListProcessors(ctx, models.ProcessorQuery{Query: "zzz"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("Sessions", func(t *testing.T) {
		session := &models.Session{
			ID:        "sess-contract",
			OpsID:     "OPS-001",
			Email:     "alice@example.com",
			CreatedAt: base,
			ExpiresAt: base.Add(24 * time.Hour),
		}
		require.NoError(t, s.SaveSession(ctx, session))

		got, err := s.GetSession(ctx, "sess-contract")
		require.NoError(t, err)
		assert.Equal(t, "OPS-001", got.OpsID)
		assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

		_, err = s.GetSession(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("SessionRateLimit", func(t *testing.T) {
		now := base
		rec, err := s.GetSessionRateLimit(ctx, "sess-rl")
		require.NoError(t, err)
		assert.Nil(t, rec)

		rec, err = s.IncrementSessionRateLimit(ctx, "sess-rl", time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Count)
		assert.True(t, now.Add(time.Minute).Equal(rec.ExpiresAt))

		rec, err = s.IncrementSessionRateLimit(ctx, "sess-rl", time.Minute, now.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Count)
		assert.True(t, now.Add(time.Minute).Equal(rec.ExpiresAt), "window does not slide")

		later := now.Add(time.Minute)
		rec, err = s.IncrementSessionRateLimit(ctx, "sess-rl", time.Minute, later)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Count, "expired window resets")
		assert.True(t, later.Add(time.Minute).Equal(rec.ExpiresAt))

		got, err := s.GetSessionRateLimit(ctx, "sess-rl")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.Count)

		require.NoError(t, s.ResetSessionRateLimit(ctx, "sess-rl"))
		got, err = s.GetSessionRateLimit(ctx, "sess-rl")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SessionRateLimit concurrent increments", func(t *testing.T) {
		const n = 20
		now := base
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.IncrementSessionRateLimit(ctx, "sess-race", time.Hour, now); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetSessionRateLimit(ctx, "sess-race")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(n), got.Count, "no increment is lost")
	})
}
