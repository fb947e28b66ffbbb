package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token proves ownership of an acquired lock.
type Token struct {
	id         string
	name       string
	acquiredAt time.Time
	expiresAt  time.Time
}

// Name returns the lock name the token belongs to.
func (t *Token) Name() string { return t.name }

// AcquiredAt returns when the lock was taken.
func (t *Token) AcquiredAt() time.Time { return t.acquiredAt }

// ExpiresAt returns when the lock lapses on its own.
func (t *Token) ExpiresAt() time.Time { return t.expiresAt }

type entry struct {
	tokenID   string
	expiresAt time.Time
}

// Manager provides named in-process mutual exclusion with TTL expiry.
// Locks do not survive process restarts and are not shared across
// instances; callers needing cross-instance exclusion must layer an
// external store on top.
type Manager struct {
	mu    sync.Mutex
	locks map[string]entry
	now   func() time.Time
}

// NewManager constructs an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]entry),
		now:   time.Now,
	}
}

// TryAcquire attempts to take the named lock for ttl. It returns nil when an
// unexpired holder exists. An expired holder is evicted and replaced.
func (m *Manager) TryAcquire(name string, ttl time.Duration) *Token {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[name]; ok && now.Before(held.expiresAt) {
		return nil
	}

	token := &Token{
		id:         uuid.NewString(),
		name:       name,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}
	m.locks[name] = entry{tokenID: token.id, expiresAt: token.expiresAt}
	return token
}

// Release frees the lock if the token still owns it. Releasing a lapsed or
// superseded token is a no-op so callers can release unconditionally in defer.
func (m *Manager) Release(token *Token) {
	if token == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[token.name]; ok && held.tokenID == token.id {
		delete(m.locks, token.name)
	}
}

// Held reports whether the named lock currently has an unexpired holder.
func (m *Manager) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.locks[name]
	return ok && m.now().Before(held.expiresAt)
}
