package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reunitehq/reunite-api/internal/models"
	"github.com/reunitehq/reunite-api/internal/service"
	"github.com/reunitehq/reunite-api/pkg/response"
)

// AdminHandler wires admin-only HTTP endpoints.
type AdminHandler struct {
	service *service.AdminService
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// Dashboard godoc
// @Summary Community dashboard counters
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// Activities godoc
// @Summary Recent activity feed
// @Tags Admin
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/activities [get]
func (h *AdminHandler) Activities(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	activities, err := h.service.ActivityFeed(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, activities, nil)
}

// ExportItems godoc
// @Summary Export item reports
// @Description Render filtered reports as CSV or PDF
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param category query string false "lost or found"
// @Param status query string false "Report status"
// @Success 200 {file} byte
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/export/items [get]
func (h *AdminHandler) ExportItems(c *gin.Context) {
	filter := models.ItemFilter{
		Category: models.ItemCategory(c.Query("category")),
		ItemType: c.Query("item_type"),
		Location: c.Query("location"),
		Status:   models.ItemStatus(c.Query("status")),
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.service.ExportItems(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
