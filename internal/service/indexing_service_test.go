package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/lock"
)

type evidenceRepoStub struct {
	mu      sync.Mutex
	pending []models.Evidence
	updated map[string]models.AIVerification
	release chan struct{}
}

func newEvidenceRepoStub(pending ...models.Evidence) *evidenceRepoStub {
	return &evidenceRepoStub{pending: pending, updated: make(map[string]models.AIVerification)}
}

func (s *evidenceRepoStub) ListUnindexed(ctx context.Context, limit int) ([]models.Evidence, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Evidence
	for _, ev := range s.pending {
		if _, done := s.updated[ev.ID]; !done {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *evidenceRepoStub) UpdateVerification(ctx context.Context, id string, ocrText *string, verification models.AIVerification, discrepancies []byte, indexedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated[id] = verification
	return nil
}

func (s *evidenceRepoStub) CountUnindexed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) - len(s.updated), nil
}

type actualReaderStub struct {
	actuals map[string]*models.KpiActual
}

func (s *actualReaderStub) GetByID(ctx context.Context, id string) (*models.KpiActual, error) {
	return s.actuals[id], nil
}

type fileStoreStub struct {
	files map[string][]byte
}

func (s *fileStoreStub) ReadFile(relPath string) ([]byte, error) {
	return s.files[relPath], nil
}

func waitForRelease(t *testing.T, locks *lock.Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !locks.Held(indexingLockName)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerRefusesConcurrentRun(t *testing.T) {
	repo := newEvidenceRepoStub()
	repo.release = make(chan struct{})
	locks := lock.NewManager()
	svc := NewIndexingService(repo, &actualReaderStub{}, &fileStoreStub{}, nil, locks, &auditStub{}, nil, nil, IndexingConfig{LockTTL: time.Minute})

	require.NoError(t, svc.Trigger(context.Background(), "adm-1"))

	err := svc.Trigger(context.Background(), "adm-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIndexingRunning.Code, appErrors.FromError(err).Code)

	close(repo.release)
	waitForRelease(t, locks)
}

func TestTriggerAllowedAfterRunFinishes(t *testing.T) {
	repo := newEvidenceRepoStub()
	locks := lock.NewManager()
	svc := NewIndexingService(repo, &actualReaderStub{}, &fileStoreStub{}, nil, locks, &auditStub{}, nil, nil, IndexingConfig{LockTTL: time.Minute})

	require.NoError(t, svc.Trigger(context.Background(), "adm-1"))
	waitForRelease(t, locks)
	require.NoError(t, svc.Trigger(context.Background(), "adm-1"))
	waitForRelease(t, locks)
}

func TestRunVerifiesDocuments(t *testing.T) {
	matching := models.Evidence{ID: "ev-1", ActualID: "a-1", FileName: "report.txt", StoredPath: "a-1/report.txt"}
	conflicting := models.Evidence{ID: "ev-2", ActualID: "a-2", FileName: "summary.txt", StoredPath: "a-2/summary.txt"}
	binary := models.Evidence{ID: "ev-3", ActualID: "a-3", FileName: "scan.png", StoredPath: "a-3/scan.png"}

	repo := newEvidenceRepoStub(matching, conflicting, binary)
	actuals := &actualReaderStub{actuals: map[string]*models.KpiActual{
		"a-1": {ID: "a-1", ActualValue: 42},
		"a-2": {ID: "a-2", ActualValue: 42},
	}}
	files := &fileStoreStub{files: map[string][]byte{
		"a-1/report.txt":  []byte("Q3 closed 42 deals in total"),
		"a-2/summary.txt": []byte("only 17 deals landed"),
		"a-3/scan.png":    {0x89, 0x50, 0x4e, 0x47},
	}}
	locks := lock.NewManager()
	svc := NewIndexingService(repo, actuals, files, nil, locks, &auditStub{}, nil, nil, IndexingConfig{LockTTL: time.Minute})

	require.NoError(t, svc.Trigger(context.Background(), "adm-1"))
	waitForRelease(t, locks)

	assert.Equal(t, models.VerificationPassed, repo.updated["ev-1"])
	assert.Equal(t, models.VerificationFlagged, repo.updated["ev-2"])
	assert.Equal(t, models.VerificationSkipped, repo.updated["ev-3"])

	status, remaining, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, 3, status.Indexed)
	assert.Equal(t, 0, remaining)
}
