package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// KpiHandler handles KPI goal definition and submission endpoints.
type KpiHandler struct {
	service *service.KpiService
	users   *service.UserService
	metrics *service.MetricsService
}

// NewKpiHandler creates a new KPI handler.
func NewKpiHandler(svc *service.KpiService, users *service.UserService, metrics *service.MetricsService) *KpiHandler {
	return &KpiHandler{service: svc, users: users, metrics: metrics}
}

// List godoc
// @Summary List KPIs
// @Description List KPI definitions visible to the caller
// @Tags KPIs
// @Produce json
// @Param cycle_id query string false "Cycle filter"
// @Param owner_id query string false "Owner filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /kpis [get]
func (h *KpiHandler) List(c *gin.Context) {
	var query dto.KpiQuery
	query.CycleID = c.Query("cycle_id")
	query.OwnerID = c.Query("owner_id")
	if status := c.Query("status"); status != "" {
		query.Status = []models.WorkflowStatus{models.WorkflowStatus(status)}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	kpis, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, kpis, pagination)
}

// Get godoc
// @Summary Get KPI
// @Tags KPIs
// @Produce json
// @Param id path string true "KPI ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /kpis/{id} [get]
func (h *KpiHandler) Get(c *gin.Context) {
	kpi, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, kpi, nil)
}

// Create godoc
// @Summary Create KPI draft
// @Tags KPIs
// @Accept json
// @Produce json
// @Param payload body dto.CreateKpiRequest true "Create payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /kpis [post]
func (h *KpiHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateKpiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	kpi, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, kpi)
}

// Update godoc
// @Summary Update KPI
// @Description Edit a KPI while its status still permits editing
// @Tags KPIs
// @Accept json
// @Produce json
// @Param id path string true "KPI ID"
// @Param payload body dto.UpdateKpiRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /kpis/{id} [put]
func (h *KpiHandler) Update(c *gin.Context) {
	var req dto.UpdateKpiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	kpi, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, kpi, nil)
}

// Validate godoc
// @Summary Preview KPI set validation
// @Description Run the set-level rules without submitting anything
// @Tags KPIs
// @Produce json
// @Param cycle_id query string true "Cycle ID"
// @Success 200 {object} response.Envelope
// @Router /kpis/validate [get]
func (h *KpiHandler) Validate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cycleID := c.Query("cycle_id")
	if cycleID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "cycle_id required"))
		return
	}

	report, err := h.service.ValidateSet(c.Request.Context(), claims.UserID, cycleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Submit godoc
// @Summary Submit KPI set
// @Description Send the caller's complete draft set for a cycle into approval
// @Tags KPIs
// @Accept json
// @Produce json
// @Param payload body dto.SubmitKpisRequest true "Submit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /kpis/submit [post]
func (h *KpiHandler) Submit(c *gin.Context) {
	owner, err := currentUser(c, h.users)
	if err != nil || owner == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitKpisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	report, err := h.service.Submit(c.Request.Context(), owner, req)
	if err != nil {
		// Validation failures carry the full rule report so the client can
		// show every violation at once.
		if report != nil {
			appErr := appErrors.FromError(err)
			c.JSON(appErr.Status, response.Envelope{Data: report, Error: appErr})
			return
		}
		response.Error(c, err)
		return
	}

	h.metrics.RecordSubmission("KPI")
	response.JSON(c, http.StatusOK, report, nil)
}

// RequestChange godoc
// @Summary Request change on an approved KPI
// @Tags KPIs
// @Accept json
// @Produce json
// @Param id path string true "KPI ID"
// @Param payload body dto.ChangeRequestPayload true "Reason payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /kpis/{id}/request-change [post]
func (h *KpiHandler) RequestChange(c *gin.Context) {
	var req dto.ChangeRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "reason required"))
		return
	}

	kpi, err := h.service.RequestChange(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, kpi, nil)
}
