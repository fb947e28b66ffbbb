package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

type entityKpiReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiDefinition, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error
}

type entityActualReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiActual, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error
}

// EntityStore dispatches tagged entity references onto the backing
// repositories so the approval workflow stays agnostic of entity kind.
type EntityStore struct {
	kpis    entityKpiReader
	actuals entityActualReader
}

// NewEntityStore constructs an EntityStore.
func NewEntityStore(kpis entityKpiReader, actuals entityActualReader) *EntityStore {
	return &EntityStore{kpis: kpis, actuals: actuals}
}

// OwnerOf returns the owning user of the referenced entity.
func (e *EntityStore) OwnerOf(ctx context.Context, ref models.EntityRef) (string, error) {
	switch ref.Type {
	case models.EntityKpi:
		kpi, err := e.kpis.GetByID(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return kpi.OwnerID, nil
	case models.EntityActual:
		actual, err := e.actuals.GetByID(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return actual.OwnerID, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", ref.Type)
	}
}

// UpdateEntityStatus moves the referenced entity to a new workflow status.
func (e *EntityStore) UpdateEntityStatus(ctx context.Context, ref models.EntityRef, status models.WorkflowStatus, reason *string) error {
	switch ref.Type {
	case models.EntityKpi:
		return e.kpis.UpdateStatus(ctx, ref.ID, status, reason)
	case models.EntityActual:
		return e.actuals.UpdateStatus(ctx, ref.ID, status, reason)
	default:
		return fmt.Errorf("unknown entity type %q", ref.Type)
	}
}
