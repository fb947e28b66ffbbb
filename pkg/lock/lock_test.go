package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireBlocksSecondHolder(t *testing.T) {
	m := NewManager()

	first := m.TryAcquire("indexing-all-documents", 5*time.Minute)
	require.NotNil(t, first)

	second := m.TryAcquire("indexing-all-documents", 5*time.Minute)
	assert.Nil(t, second)
	assert.True(t, m.Held("indexing-all-documents"))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	m := NewManager()

	token := m.TryAcquire("indexing-all-documents", 5*time.Minute)
	require.NotNil(t, token)
	m.Release(token)

	assert.False(t, m.Held("indexing-all-documents"))
	assert.NotNil(t, m.TryAcquire("indexing-all-documents", 5*time.Minute))
}

func TestExpiredLockIsEvicted(t *testing.T) {
	m := NewManager()
	current := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	stale := m.TryAcquire("indexing-all-documents", 5*time.Minute)
	require.NotNil(t, stale)

	current = current.Add(6 * time.Minute)
	fresh := m.TryAcquire("indexing-all-documents", 5*time.Minute)
	require.NotNil(t, fresh)

	// The stale token no longer owns the lock, so releasing it must not
	// free the fresh holder.
	m.Release(stale)
	assert.True(t, m.Held("indexing-all-documents"))

	m.Release(fresh)
	assert.False(t, m.Held("indexing-all-documents"))
}

func TestLocksAreIndependentPerName(t *testing.T) {
	m := NewManager()

	require.NotNil(t, m.TryAcquire("indexing-all-documents", time.Minute))
	require.NotNil(t, m.TryAcquire("scorecard-export", time.Minute))
}
