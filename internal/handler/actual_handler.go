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

// ActualHandler handles result reporting endpoints.
type ActualHandler struct {
	service *service.ActualService
	users   *service.UserService
	metrics *service.MetricsService
}

// NewActualHandler creates a new actual handler.
func NewActualHandler(svc *service.ActualService, users *service.UserService, metrics *service.MetricsService) *ActualHandler {
	return &ActualHandler{service: svc, users: users, metrics: metrics}
}

// List godoc
// @Summary List actuals
// @Tags Actuals
// @Produce json
// @Param kpi_id query string false "KPI filter"
// @Param period query string false "Period filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /actuals [get]
func (h *ActualHandler) List(c *gin.Context) {
	var query dto.ActualQuery
	query.KpiID = c.Query("kpi_id")
	query.Period = c.Query("period")
	if status := c.Query("status"); status != "" {
		query.Status = []models.WorkflowStatus{models.WorkflowStatus(status)}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	actuals, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, actuals, pagination)
}

// Get godoc
// @Summary Get actual
// @Tags Actuals
// @Produce json
// @Param id path string true "Actual ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /actuals/{id} [get]
func (h *ActualHandler) Get(c *gin.Context) {
	actual, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actual, nil)
}

// Submit godoc
// @Summary Submit actual
// @Description Report an actual value for a KPI period, scoring it immediately
// @Tags Actuals
// @Accept json
// @Produce json
// @Param payload body dto.SubmitActualRequest true "Submit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /actuals [post]
func (h *ActualHandler) Submit(c *gin.Context) {
	owner, err := currentUser(c, h.users)
	if err != nil || owner == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitActualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	actual, err := h.service.Submit(c.Request.Context(), owner, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordSubmission("ACTUAL")
	response.Created(c, actual)
}

// Preview godoc
// @Summary Preview score
// @Description Score a value against a KPI without persisting anything
// @Tags Actuals
// @Produce json
// @Param kpi_id query string true "KPI ID"
// @Param value query number true "Actual value"
// @Success 200 {object} response.Envelope
// @Router /actuals/preview [get]
func (h *ActualHandler) Preview(c *gin.Context) {
	kpiID := c.Query("kpi_id")
	if kpiID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kpi_id required"))
		return
	}
	value, err := strconv.ParseFloat(c.Query("value"), 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "value must be a number"))
		return
	}

	result, err := h.service.Preview(c.Request.Context(), claimsFromContext(c), kpiID, value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
