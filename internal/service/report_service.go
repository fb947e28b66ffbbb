package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/export"
	"github.com/noah-isme/kpi-hub-api/pkg/storage"
)

type reportActualRepository interface {
	ListApprovedByOwners(ctx context.Context, ownerIDs []string, cycleID string) ([]models.KpiActual, error)
}

type reportKpiReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiDefinition, error)
}

type reportUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListDirectReports(ctx context.Context, managerID string) ([]string, error)
	ListDepartmentMembers(ctx context.Context, department string) ([]string, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type reportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// Exports past this age can no longer be downloaded, their tokens having
// expired, so each generation sweeps them away.
const exportRetention = 48 * time.Hour

// ReportFormat selects the rendered output.
type ReportFormat string

const (
	FormatCSV ReportFormat = "csv"
	FormatPDF ReportFormat = "pdf"
)

// ReportResult describes a generated scorecard file.
type ReportResult struct {
	Token     string    `json:"token"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportService renders approved scorecards to downloadable files. Scope
// follows the same role rules as the dashboard.
type ReportService struct {
	actuals reportActualRepository
	kpis    reportKpiReader
	users   reportUserRepository
	store   reportFileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewReportService constructs a ReportService instance.
func NewReportService(actuals reportActualRepository, kpis reportKpiReader, users reportUserRepository, store reportFileStorage, signer *storage.SignedURLSigner, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{actuals: actuals, kpis: kpis, users: users, store: store, signer: signer, csv: csv, pdf: pdf, logger: logger}
}

// Scorecard renders the approved results for the actor's scope and returns
// a signed download token.
func (s *ReportService) Scorecard(ctx context.Context, actor *models.User, cycleID string, format ReportFormat) (*ReportResult, error) {
	ownerIDs, err := s.scope(ctx, actor)
	if err != nil {
		return nil, err
	}

	actuals, err := s.actuals.ListApprovedByOwners(ctx, ownerIDs, cycleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved actuals")
	}

	dataset := export.Dataset{
		Headers: []string{"Employee", "KPI", "Period", "Target", "Actual", "Achievement %", "Score", "Band"},
	}
	names := make(map[string]string)
	titles := make(map[string]*models.KpiDefinition)
	for _, a := range actuals {
		name, ok := names[a.OwnerID]
		if !ok {
			if u, err := s.users.FindByID(ctx, a.OwnerID); err == nil {
				name = u.FullName
			} else {
				name = a.OwnerID
			}
			names[a.OwnerID] = name
		}
		kpi, ok := titles[a.KpiID]
		if !ok {
			kpi, err = s.kpis.GetByID(ctx, a.KpiID)
			if err != nil {
				s.logger.Warn("scorecard row skipped, kpi missing", zap.String("kpi", a.KpiID))
				continue
			}
			titles[a.KpiID] = kpi
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Employee":      name,
			"KPI":           kpi.Title,
			"Period":        a.Period,
			"Target":        fmt.Sprintf("%.2f", kpi.Target),
			"Actual":        fmt.Sprintf("%.2f", a.ActualValue),
			"Achievement %": fmt.Sprintf("%.2f", a.Percentage),
			"Score":         fmt.Sprintf("%.2f", a.Score),
			"Band":          a.Band,
		})
	}

	var rendered []byte
	switch format {
	case FormatPDF:
		rendered, err = s.pdf.Render(dataset, "KPI Scorecard")
	case FormatCSV, "":
		format = FormatCSV
		rendered, err = s.csv.Render(dataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render scorecard")
	}

	fileName := fmt.Sprintf("scorecard-%s-%d.%s", sanitize(cycleID), time.Now().UTC().Unix(), format)
	relPath, err := s.store.Save(fileName, rendered)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scorecard")
	}

	if deleted, err := s.store.CleanupOlderThan(exportRetention); err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(deleted) > 0 {
		s.logger.Info("removed expired exports", zap.Int("count", len(deleted)))
	}

	token, expiresAt, err := s.signer.Generate(actor.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	return &ReportResult{
		Token:     token,
		Format:    string(format),
		Rows:      len(dataset.Rows),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenByToken validates a signed download token and opens the report file.
func (s *ReportService) OpenByToken(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report no longer available")
	}
	return file, filepath.Base(relPath), nil
}

func (s *ReportService) scope(ctx context.Context, actor *models.User) ([]string, error) {
	switch actor.Role {
	case models.RoleStaff:
		return []string{actor.ID}, nil
	case models.RoleLineManager:
		reports, err := s.users.ListDirectReports(ctx, actor.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
		}
		return append(reports, actor.ID), nil
	case models.RoleManager:
		members, err := s.users.ListDepartmentMembers(ctx, actor.Department)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list department")
		}
		if len(members) == 0 {
			members = []string{actor.ID}
		}
		return members, nil
	case models.RoleAdmin:
		all, err := s.users.ListActiveIDs(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		return all, nil
	default:
		return []string{actor.ID}, nil
	}
}

func sanitize(s string) string {
	if s == "" {
		return "all"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, s)
}
