package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/session-auth-api/internal/models"
	"github.com/noah-isme/session-auth-api/internal/repository"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	findErr   error
	createErr error
	updateErr error
	loginErr  error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*models.User)}
}

func (m *memoryUserRepo) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memoryUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m *memoryUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrDuplicateKey
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Username = user.Username
	stored.Email = user.Email
	return nil
}

func (m *memoryUserRepo) RecordLogin(ctx context.Context, id string, ts time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	stored, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored.LoginCount++
	at := ts
	stored.LastLogin = &at
	clone := *stored
	return &clone, nil
}

func (m *memoryUserRepo) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken

	findErr   error
	createErr error
	deleteErr error
	revokeErr error
	deleted   []string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]*models.RefreshToken)}
}

func (m *memoryTokenStore) FindActiveByUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var candidates []*models.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && !t.Revoked {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	clone := *candidates[0]
	return &clone, nil
}

func (m *memoryTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, t := range m.tokens {
		if t.Token == token.Token {
			return repository.ErrDuplicateKey
		}
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	clone := *token
	m.tokens[token.ID] = &clone
	return nil
}

func (m *memoryTokenStore) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, t := range m.tokens {
		if t.Token == value && !t.Revoked {
			clone := *t
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryTokenStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.tokens, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryTokenStore) Revoke(ctx context.Context, value string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	for _, t := range m.tokens {
		if t.Token == value {
			t.Revoked = true
			clone := *t
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryTokenStore) byValue(value string) *models.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == value {
			clone := *t
			return &clone
		}
	}
	return nil
}

func (m *memoryTokenStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
