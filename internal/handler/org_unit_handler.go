package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/service"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
	"github.com/noah-isme/kpi-hub-api/pkg/response"
)

// OrgUnitHandler handles organization structure endpoints.
type OrgUnitHandler struct {
	service *service.OrgUnitService
}

// NewOrgUnitHandler creates a new org unit handler.
func NewOrgUnitHandler(svc *service.OrgUnitService) *OrgUnitHandler {
	return &OrgUnitHandler{service: svc}
}

// List godoc
// @Summary List org units
// @Tags Organization
// @Produce json
// @Param kind query string false "Kind filter"
// @Param parent_id query string false "Parent filter"
// @Success 200 {object} response.Envelope
// @Router /org-units [get]
func (h *OrgUnitHandler) List(c *gin.Context) {
	var filter models.OrgUnitFilter
	if kind := c.Query("kind"); kind != "" {
		k := models.OrgUnitKind(kind)
		filter.Kind = &k
	}
	filter.ParentID = c.Query("parent_id")

	units, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil)
}

// Get godoc
// @Summary Get org unit
// @Tags Organization
// @Produce json
// @Param id path string true "Org unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /org-units/{id} [get]
func (h *OrgUnitHandler) Get(c *gin.Context) {
	unit, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unit, nil)
}

// Create godoc
// @Summary Create org unit
// @Tags Organization
// @Accept json
// @Produce json
// @Param payload body dto.CreateOrgUnitRequest true "Create payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /org-units [post]
func (h *OrgUnitHandler) Create(c *gin.Context) {
	var req dto.CreateOrgUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	unit, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, unit)
}

// Update godoc
// @Summary Update org unit
// @Tags Organization
// @Accept json
// @Produce json
// @Param id path string true "Org unit ID"
// @Param payload body dto.UpdateOrgUnitRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /org-units/{id} [put]
func (h *OrgUnitHandler) Update(c *gin.Context) {
	var req dto.UpdateOrgUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	unit, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unit, nil)
}

// Delete godoc
// @Summary Delete org unit
// @Tags Organization
// @Produce json
// @Param id path string true "Org unit ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /org-units/{id} [delete]
func (h *OrgUnitHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
