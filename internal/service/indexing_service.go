package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/lock"
)

const indexingLockName = "indexing-all-documents"

type indexingEvidenceRepository interface {
	ListUnindexed(ctx context.Context, limit int) ([]models.Evidence, error)
	UpdateVerification(ctx context.Context, id string, ocrText *string, verification models.AIVerification, discrepancies []byte, indexedAt time.Time) error
	CountUnindexed(ctx context.Context) (int, error)
}

type indexingActualReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiActual, error)
}

type indexingStorage interface {
	ReadFile(relPath string) ([]byte, error)
}

// IndexingConfig tunes the bulk run.
type IndexingConfig struct {
	LockTTL   time.Duration
	BatchSize int
}

// IndexingService re-extracts and re-verifies all evidence documents that
// were never processed. Only one run may be active at a time; a second
// trigger within the lock TTL is refused.
type IndexingService struct {
	repo      indexingEvidenceRepository
	actuals   indexingActualReader
	files     indexingStorage
	extractor TextExtractor
	locks     *lock.Manager
	audit     kpiAuditRepository
	metrics   *MetricsService
	logger    *zap.Logger
	config    IndexingConfig

	mu     sync.RWMutex
	status models.IndexRunStatus
}

// NewIndexingService constructs an IndexingService instance.
func NewIndexingService(repo indexingEvidenceRepository, actuals indexingActualReader, files indexingStorage, extractor TextExtractor, locks *lock.Manager, audit kpiAuditRepository, metrics *MetricsService, logger *zap.Logger, config IndexingConfig) *IndexingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = PlainTextExtractor{}
	}
	if locks == nil {
		locks = lock.NewManager()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &IndexingService{repo: repo, actuals: actuals, files: files, extractor: extractor, locks: locks, audit: audit, metrics: metrics, logger: logger, config: config}
}

// Trigger starts a bulk indexing run in the background. A run already in
// progress, or one whose lock has not yet lapsed, yields a conflict.
func (s *IndexingService) Trigger(ctx context.Context, actorID string) error {
	token := s.locks.TryAcquire(indexingLockName, s.config.LockTTL)
	if token == nil {
		return appErrors.Clone(appErrors.ErrIndexingRunning, "an indexing run is already in progress")
	}

	started := time.Now().UTC()
	s.mu.Lock()
	s.status = models.IndexRunStatus{Running: true, StartedAt: &started}
	s.mu.Unlock()

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:   &actorID,
		Action:   models.AuditActionIndexRun,
		Resource: "evidence",
	}); err != nil {
		s.logger.Warn("failed to record index run audit log", zap.Error(err))
	}

	go s.run(token)
	return nil
}

// Status reports the state of the current or last run, including how many
// documents still await processing.
func (s *IndexingService) Status(ctx context.Context) (models.IndexRunStatus, int, error) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	remaining, err := s.repo.CountUnindexed(ctx)
	if err != nil {
		return status, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending documents")
	}
	return status, remaining, nil
}

func (s *IndexingService) run(token *lock.Token) {
	defer s.locks.Release(token)

	// Detached from the triggering request; the run outlives it.
	ctx, cancel := context.WithDeadline(context.Background(), token.ExpiresAt())
	defer cancel()

	indexed, failed := 0, 0
	var lastErr string

	for {
		batch, err := s.repo.ListUnindexed(ctx, s.config.BatchSize)
		if err != nil {
			lastErr = err.Error()
			s.logger.Error("indexing batch fetch failed", zap.Error(err))
			break
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			if ctx.Err() != nil {
				lastErr = ctx.Err().Error()
				break
			}
			if err := s.indexOne(ctx, &batch[i]); err != nil {
				failed++
				lastErr = err.Error()
				s.logger.Warn("failed to index evidence", zap.String("evidence", batch[i].ID), zap.Error(err))
			} else {
				indexed++
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	finished := time.Now().UTC()
	s.mu.Lock()
	s.status.Running = false
	s.status.FinishedAt = &finished
	s.status.Indexed = indexed
	s.status.Failed = failed
	s.status.LastError = lastErr
	s.mu.Unlock()

	s.metrics.RecordIndexedDocuments(indexed)
	s.logger.Info("indexing run finished", zap.Int("indexed", indexed), zap.Int("failed", failed))
}

func (s *IndexingService) indexOne(ctx context.Context, ev *models.Evidence) error {
	data, err := s.files.ReadFile(ev.StoredPath)
	if err != nil {
		return err
	}

	text, err := s.extractor.Extract(ev.FileName, data)
	if err != nil {
		return err
	}

	verdict := models.VerificationSkipped
	var ocrText *string
	var discrepancies []byte
	if text != "" {
		t := truncate(text, 2000)
		ocrText = &t
		actual, err := s.actuals.GetByID(ctx, ev.ActualID)
		if err != nil {
			return err
		}
		if containsNumber(text, actual.ActualValue) {
			verdict = models.VerificationPassed
		} else {
			verdict = models.VerificationFlagged
			discrepancies, _ = json.Marshal([]string{"reported value " + formatNumber(actual.ActualValue) + " not found in document"})
		}
	}

	return s.repo.UpdateVerification(ctx, ev.ID, ocrText, verdict, discrepancies, time.Now().UTC())
}
