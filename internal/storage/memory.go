package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opsportal/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development and testing. Data is lost on restart.
type MemoryStorage struct {
	mu         sync.RWMutex
	users      map[string]*models.User // keyed by ops id
	emails     map[string]string       // normalized email -> ops id
	sessions   map[string]*models.Session
	rateLimits map[string]*models.RateLimitRecord
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(_ Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		users:      make(map[string]*models.User),
		emails:     make(map[string]string),
		sessions:   make(map[string]*models.Session),
		rateLimits: make(map[string]*models.RateLimitRecord),
	}, nil
}

func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) GetUserByOpsID(_ context.Context, opsID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[opsID]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", opsID, ErrNotFound)
	}
	userCopy := *user
	return &userCopy, nil
}

func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opsID, exists := m.emails[models.NormalizeEmail(email)]
	if !exists {
		return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
	}
	userCopy := *m.users[opsID]
	return &userCopy, nil
}

func (m *MemoryStorage) ListProcessors(_ context.Context, query models.ProcessorQuery) ([]*models.User, error) {
	query.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	processors := make([]*models.User, 0)
	for _, user := range m.users {
		if !user.IsProcessor() || user.Status != models.UserStatusActive || !user.Matches(query.Query) {
			continue
		}
		userCopy := *user
		processors = append(processors, &userCopy)
	}

	sort.Slice(processors, func(i, j int) bool {
		if processors[i].Name != processors[j].Name {
			return processors[i].Name < processors[j].Name
		}
		return processors[i].OpsID < processors[j].OpsID
	})

	if len(processors) > query.Limit {
		processors = processors[:query.Limit]
	}
	return processors, nil
}

func (m *MemoryStorage) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, exists := m.users[user.OpsID]; exists {
		delete(m.emails, prev.Email)
	}
	userCopy := *user
	userCopy.Email = models.NormalizeEmail(user.Email)
	m.users[user.OpsID] = &userCopy
	m.emails[userCopy.Email] = user.OpsID
	return nil
}

func (m *MemoryStorage) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	sessionCopy := *session
	return &sessionCopy, nil
}

func (m *MemoryStorage) SaveSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionCopy := *session
	m.sessions[session.ID] = &sessionCopy
	return nil
}

func (m *MemoryStorage) GetSessionRateLimit(_ context.Context, sessionID string) (*models.RateLimitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.rateLimits[sessionID]
	if !exists {
		return nil, nil
	}
	recCopy := *rec
	return &recCopy, nil
}

func (m *MemoryStorage) ResetSessionRateLimit(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rateLimits, sessionID)
	return nil
}

func (m *MemoryStorage) IncrementSessionRateLimit(_ context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.rateLimits[sessionID].Hit(sessionID, now, window)
	m.rateLimits[sessionID] = rec
	recCopy := *rec
	return &recCopy, nil
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}
