package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reunitehq/reunite-api/internal/service"
	"github.com/reunitehq/reunite-api/pkg/config"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
	"github.com/reunitehq/reunite-api/pkg/response"
	"github.com/reunitehq/reunite-api/pkg/storage"
)

// ItemHandler wires HTTP endpoints to the item service.
type ItemHandler struct {
	service *service.ItemService
	storage *storage.LocalStorage
	uploads config.UploadsConfig
}

// NewItemHandler creates a new handler.
func NewItemHandler(svc *service.ItemService, store *storage.LocalStorage, uploads config.UploadsConfig) *ItemHandler {
	return &ItemHandler{service: svc, storage: store, uploads: uploads}
}

type reportItemPayload struct {
	Title         string `json:"title" form:"title"`
	Description   string `json:"description" form:"description"`
	Category      string `json:"category" form:"category"`
	ItemType      string `json:"item_type" form:"item_type"`
	Location      string `json:"location" form:"location"`
	ExactLocation string `json:"exact_location" form:"exact_location"`
	Date          string `json:"date" form:"date"`
	ContactInfo   string `json:"contact_info" form:"contact_info"`
	Color         string `json:"color" form:"color"`
	Brand         string `json:"brand" form:"brand"`
}

// Report godoc
// @Summary Report a lost or found item
// @Description Submit a report; matching against open counterpart reports runs immediately
// @Tags Items
// @Accept json
// @Accept mpfd
// @Produce json
// @Param payload body reportItemPayload true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /items [post]
func (h *ItemHandler) Report(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload reportItemPayload
	imagePath := ""

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report form"))
			return
		}
		path, err := h.saveImage(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		imagePath = path
	} else {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
			return
		}
	}

	date, err := parseItemDate(payload.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD or RFC3339"))
		return
	}

	item, outcome, err := h.service.Report(c.Request.Context(), claims.UserID, service.ReportItemRequest{
		Title:         payload.Title,
		Description:   payload.Description,
		Category:      payload.Category,
		ItemType:      payload.ItemType,
		Location:      payload.Location,
		ExactLocation: payload.ExactLocation,
		Date:          date,
		ContactInfo:   payload.ContactInfo,
		Color:         payload.Color,
		Brand:         payload.Brand,
		Image:         imagePath,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, gin.H{"item": item, "matching": outcome}, nil)
}

// List godoc
// @Summary Browse item reports
// @Description List reports filtered by category, type, location, status or free-text search
// @Tags Items
// @Produce json
// @Param category query string false "lost or found"
// @Param item_type query string false "Item type"
// @Param location query string false "Location"
// @Param status query string false "Report status"
// @Param search query string false "Free-text search over title and description"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /items [get]
func (h *ItemHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	items, pagination, err := h.service.List(c.Request.Context(), service.ItemListRequest{
		Category: c.Query("category"),
		ItemType: c.Query("item_type"),
		Location: c.Query("location"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// MyItems godoc
// @Summary List own reports
// @Tags Items
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /items/my [get]
func (h *ItemHandler) MyItems(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, err := h.service.MyItems(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a single report
// @Tags Items
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /items/{id} [get]
func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Claim godoc
// @Summary Claim a found item
// @Description Claim a found report; the finder is notified
// @Tags Items
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /items/{id}/claim [post]
func (h *ItemHandler) Claim(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	item, err := h.service.Claim(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Return godoc
// @Summary Mark an item returned
// @Description Finalize the handover; both parties' trust scores are rewarded
// @Tags Items
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body service.ReturnItemRequest true "Handover details"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /items/{id}/return [post]
func (h *ItemHandler) Return(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReturnItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid return payload"))
		return
	}

	item, err := h.service.Return(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Stats godoc
// @Summary Personal report statistics
// @Tags Items
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /items/stats [get]
func (h *ItemHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

func (h *ItemHandler) saveImage(c *gin.Context) (string, error) {
	file, err := c.FormFile("image")
	if err != nil {
		// The image is optional.
		return "", nil
	}
	if h.storage == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "image uploads are disabled")
	}
	if h.uploads.MaxFileSizeBytes > 0 && file.Size > h.uploads.MaxFileSizeBytes {
		return "", appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("image exceeds the %d byte limit", h.uploads.MaxFileSizeBytes))
	}
	if len(h.uploads.AllowedMIMEs) > 0 {
		contentType := file.Header.Get("Content-Type")
		allowed := false
		for _, mime := range h.uploads.AllowedMIMEs {
			if strings.EqualFold(mime, contentType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unsupported image type %q", contentType))
		}
	}

	src, err := file.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded image")
	}
	defer src.Close() //nolint:errcheck

	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	if _, err := h.storage.SaveStream(name, src); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded image")
	}
	return name, nil
}

func parseItemDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
