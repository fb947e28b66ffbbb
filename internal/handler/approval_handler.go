package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// ApprovalHandler handles approval workflow endpoints.
type ApprovalHandler struct {
	service    *service.ApprovalService
	dashboards *service.DashboardService
	metrics    *service.MetricsService
}

// NewApprovalHandler creates a new approval handler.
func NewApprovalHandler(svc *service.ApprovalService, dashboards *service.DashboardService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, dashboards: dashboards, metrics: metrics}
}

// List godoc
// @Summary List approvals
// @Description List approvals addressed to the caller, pending first; raised=true lists approvals on the caller's own submissions
// @Tags Approvals
// @Produce json
// @Param status query string false "Status filter"
// @Param entity_type query string false "Entity type filter (KPI or ACTUAL)"
// @Param raised query bool false "List approvals raised by the caller"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.ApprovalQuery
	if status := c.Query("status"); status != "" {
		query.Status = []models.ApprovalStatus{models.ApprovalStatus(status)}
	}
	query.EntityType = models.EntityType(c.Query("entity_type"))
	if raised, err := strconv.ParseBool(c.DefaultQuery("raised", "false")); err == nil {
		query.Raised = raised
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	views, total, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Approve godoc
// @Summary Approve
// @Description Record a positive decision; approving level 1 raises level 2 unless routing collapses
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.DecisionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, h.service.Approve, "APPROVED")
}

// Reject godoc
// @Summary Reject
// @Description Record a terminal negative decision; a comment is mandatory
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.DecisionRequest true "Rejection comment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, h.service.Reject, "REJECTED")
}

type decisionFunc func(ctx context.Context, actor *models.JWTClaims, approvalID string, req dto.DecisionRequest) (*models.Approval, error)

func (h *ApprovalHandler) decide(c *gin.Context, fn decisionFunc, outcome string) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	approval, err := fn(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDecision(outcome)
	}
	if h.dashboards != nil {
		h.dashboards.Invalidate(c.Request.Context(), approval.ApproverID, claims.UserID)
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// History godoc
// @Summary Approval history
// @Description Full decision trail for one entity
// @Tags Approvals
// @Produce json
// @Param entity_type query string true "Entity type (KPI or ACTUAL)"
// @Param entity_id query string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/history [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	entityType := models.EntityType(c.Query("entity_type"))
	entityID := c.Query("entity_id")
	if (entityType != models.EntityKpi && entityType != models.EntityActual) || entityID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "entity_type and entity_id required"))
		return
	}

	history, err := h.service.History(c.Request.Context(), models.EntityRef{Type: entityType, ID: entityID})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
