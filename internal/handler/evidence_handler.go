package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// EvidenceHandler handles evidence upload and download endpoints.
type EvidenceHandler struct {
	service *service.EvidenceService
	actuals *service.ActualService
}

// NewEvidenceHandler creates a new evidence handler.
func NewEvidenceHandler(svc *service.EvidenceService, actuals *service.ActualService) *EvidenceHandler {
	return &EvidenceHandler{service: svc, actuals: actuals}
}

// Upload godoc
// @Summary Upload evidence
// @Description Attach a document to an actual; the file content is checked against the reported value
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Actual ID"
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /actuals/{id}/evidence [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a file upload is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	ev, report, err := h.service.Upload(c.Request.Context(), claims, c.Param("id"), fileHeader.Filename, mimeType, data)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The latest upload's verdict is mirrored onto the actual for listing.
	if err := h.actuals.SetVerification(c.Request.Context(), ev.ActualID, ev.Verification); err != nil {
		_ = c.Error(err)
	}

	response.Created(c, gin.H{"evidence": ev, "verification": report})
}

// List godoc
// @Summary List evidence for an actual
// @Tags Evidence
// @Produce json
// @Param id path string true "Actual ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /actuals/{id}/evidence [get]
func (h *EvidenceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	evs, err := h.service.ListForActual(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evs, nil)
}

// SignURL godoc
// @Summary Issue a signed download link
// @Tags Evidence
// @Produce json
// @Param id path string true "Evidence ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /evidence/{id}/download [get]
func (h *EvidenceHandler) SignURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, expiresAt, err := h.service.SignedDownloadURL(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/api/v1/files/evidence?token=" + token,
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download evidence by signed token
// @Tags Evidence
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/evidence [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
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
