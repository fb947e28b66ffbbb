package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/middleware"
	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// DashboardHandler handles the aggregated dashboard endpoint.
type DashboardHandler struct {
	service *service.DashboardService
	users   *service.UserService
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(svc *service.DashboardService, users *service.UserService) *DashboardHandler {
	return &DashboardHandler{service: svc, users: users}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Aggregated workflow state scoped to the caller's role
// @Tags Dashboard
// @Produce json
// @Param cycle_id query string false "Cycle filter"
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	actor, err := currentUser(c, h.users)
	if err != nil || actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, hit, err := h.service.Summary(c.Request.Context(), actor, c.Query("cycle_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
