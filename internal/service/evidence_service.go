package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/storage"
)

type evidenceRepository interface {
	Create(ctx context.Context, ev *models.Evidence) error
	GetByID(ctx context.Context, id string) (*models.Evidence, error)
	ListByActual(ctx context.Context, actualID string) ([]models.Evidence, error)
	UpdateVerification(ctx context.Context, id string, ocrText *string, verification models.AIVerification, discrepancies []byte, indexedAt time.Time) error
}

type evidenceActualReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiActual, error)
}

type evidenceFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// TextExtractor pulls text from an uploaded document for verification.
// The built-in extractor is a stand-in for a real OCR pipeline.
type TextExtractor interface {
	Extract(fileName string, data []byte) (string, error)
}

// EvidenceConfig bounds uploads.
type EvidenceConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// EvidenceService stores uploaded evidence, runs the extraction check
// against the reported value, and issues signed download links.
type EvidenceService struct {
	repo      evidenceRepository
	actuals   evidenceActualReader
	store     evidenceFileStorage
	extractor TextExtractor
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	config    EvidenceConfig
}

// NewEvidenceService constructs an EvidenceService instance.
func NewEvidenceService(repo evidenceRepository, actuals evidenceActualReader, store evidenceFileStorage, extractor TextExtractor, signer *storage.SignedURLSigner, logger *zap.Logger, config EvidenceConfig) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = PlainTextExtractor{}
	}
	return &EvidenceService{repo: repo, actuals: actuals, store: store, extractor: extractor, signer: signer, logger: logger, config: config}
}

// Upload stores a file against an actual and verifies its content.
func (s *EvidenceService) Upload(ctx context.Context, actor *models.JWTClaims, actualID, fileName, mimeType string, data []byte) (*models.Evidence, *dto.VerificationReport, error) {
	actual, err := s.actuals.GetByID(ctx, actualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "actual not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actual")
	}
	if actor.Role == models.RoleStaff && actual.OwnerID != actor.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "actual belongs to another user")
	}

	if s.config.MaxFileSizeBytes > 0 && int64(len(data)) > s.config.MaxFileSizeBytes {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes))
	}
	if len(s.config.AllowedMIMEs) > 0 && !s.mimeAllowed(mimeType) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not accepted", mimeType))
	}

	id := uuid.NewString()
	relPath := filepath.Join(actualID, id+filepath.Ext(fileName))
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	report := s.verify(actual, fileName, data)

	verdict := models.VerificationFlagged
	if report.Passed {
		verdict = models.VerificationPassed
	}
	if report.ExtractedText == "" && len(report.Discrepancies) == 0 {
		verdict = models.VerificationSkipped
	}

	var ocrText *string
	if report.ExtractedText != "" {
		ocrText = &report.ExtractedText
	}
	var discrepancies []byte
	if len(report.Discrepancies) > 0 {
		discrepancies, _ = json.Marshal(report.Discrepancies)
	}

	ev := &models.Evidence{
		ID:                id,
		ActualID:          actualID,
		FileName:          fileName,
		StoredPath:        relPath,
		MimeType:          mimeType,
		SizeBytes:         int64(len(data)),
		OCRText:           ocrText,
		Verification:      verdict,
		DiscrepanciesJSON: discrepancies,
		UploadedBy:        actor.UserID,
	}
	if err := s.repo.Create(ctx, ev); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record evidence")
	}

	return ev, report, nil
}

// ListForActual returns evidence attached to an actual.
func (s *EvidenceService) ListForActual(ctx context.Context, actor *models.JWTClaims, actualID string) ([]models.Evidence, error) {
	actual, err := s.actuals.GetByID(ctx, actualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "actual not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actual")
	}
	if actor.Role == models.RoleStaff && actual.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "actual belongs to another user")
	}

	evs, err := s.repo.ListByActual(ctx, actualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evidence")
	}
	return evs, nil
}

// SignedDownloadURL issues a time-limited token for fetching the file.
func (s *EvidenceService) SignedDownloadURL(ctx context.Context, actor *models.JWTClaims, evidenceID string) (string, time.Time, error) {
	ev, err := s.repo.GetByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if actor.Role == models.RoleStaff && ev.UploadedBy != actor.UserID {
		actual, err := s.actuals.GetByID(ctx, ev.ActualID)
		if err != nil || actual.OwnerID != actor.UserID {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "evidence belongs to another user")
		}
	}

	token, expiresAt, err := s.signer.Generate(ev.ID, ev.StoredPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// OpenByToken validates a signed token and opens the backing file.
func (s *EvidenceService) OpenByToken(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file no longer available")
	}
	return file, filepath.Base(relPath), nil
}

// verify compares extracted text against the reported value. Numbers found
// in the document that match the actual pass; a readable document with no
// matching figure is flagged for the approver.
func (s *EvidenceService) verify(actual *models.KpiActual, fileName string, data []byte) *dto.VerificationReport {
	text, err := s.extractor.Extract(fileName, data)
	if err != nil || text == "" {
		return &dto.VerificationReport{Passed: false}
	}

	report := &dto.VerificationReport{ExtractedText: truncate(text, 2000)}
	if containsNumber(text, actual.ActualValue) {
		report.Passed = true
		return report
	}
	report.Discrepancies = append(report.Discrepancies,
		fmt.Sprintf("reported value %s not found in document", formatNumber(actual.ActualValue)))
	return report
}

func (s *EvidenceService) mimeAllowed(mimeType string) bool {
	for _, allowed := range s.config.AllowedMIMEs {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

// PlainTextExtractor reads text-like uploads directly. Binary formats
// yield no text and leave verification to the human approver.
type PlainTextExtractor struct{}

// Extract implements TextExtractor.
func (PlainTextExtractor) Extract(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".csv", ".json", ".md":
		return string(data), nil
	default:
		return "", nil
	}
}

func containsNumber(text string, value float64) bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-'
	})
	for _, f := range fields {
		parsed, err := strconv.ParseFloat(strings.Trim(f, "."), 64)
		if err != nil {
			continue
		}
		if parsed == value {
			return true
		}
	}
	return false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
