package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// AdminHandler handles administrative maintenance endpoints.
type AdminHandler struct {
	indexing *service.IndexingService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(indexing *service.IndexingService) *AdminHandler {
	return &AdminHandler{indexing: indexing}
}

// TriggerIndexing godoc
// @Summary Trigger bulk evidence indexing
// @Description Start a background run that re-verifies every unprocessed evidence document; only one run at a time
// @Tags Admin
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/index-documents [post]
func (h *AdminHandler) TriggerIndexing(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.indexing.Trigger(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "started"}, nil)
}

// IndexingStatus godoc
// @Summary Indexing run status
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/index-documents [get]
func (h *AdminHandler) IndexingStatus(c *gin.Context) {
	status, remaining, err := h.indexing.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"run": status, "remaining": remaining}, nil)
}
