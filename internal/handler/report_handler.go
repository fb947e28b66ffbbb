package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// ReportHandler exposes scorecard export endpoints.
type ReportHandler struct {
	service *service.ReportService
	users   *service.UserService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReportService, users *service.UserService) *ReportHandler {
	return &ReportHandler{service: svc, users: users}
}

// Scorecard godoc
// @Summary Generate scorecard
// @Description Render approved results for the caller's scope as CSV or PDF and return a signed download token
// @Tags Reports
// @Produce json
// @Param cycle_id query string false "Cycle filter"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Router /reports/scorecard [get]
func (h *ReportHandler) Scorecard(c *gin.Context) {
	actor, err := currentUser(c, h.users)
	if err != nil || actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.Scorecard(c.Request.Context(), actor, c.Query("cycle_id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"download_url": "/api/v1/files/reports?token=" + result.Token,
		"format":       result.Format,
		"rows":         result.Rows,
		"expires_at":   result.ExpiresAt,
	}, nil)
}

// Download godoc
// @Summary Download report by signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/reports [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	file, name, err := h.service.OpenByToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
