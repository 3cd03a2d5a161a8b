package handler

import (
	"errors"
	"net/http"
	"strconv"

	"civicreport/internal/apperr"
	"civicreport/internal/geo"
	"civicreport/internal/middleware"
	"civicreport/internal/model"
	"civicreport/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 20
	headerDeviceID   = "X-Device-ID"
)

type ReportHandler struct {
	reportService *service.ReportService
}

func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// writeError maps domain errors onto HTTP statuses. Infrastructure detail
// never leaks to clients.
func writeError(c *gin.Context, err error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}

	var terr *apperr.TransitionError
	if errors.As(err, &terr) {
		c.JSON(http.StatusConflict, gin.H{
			"error": terr.Error(),
			"from":  terr.From,
			"to":    terr.To,
		})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict, retry the request"})
	case errors.Is(err, apperr.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePage(c *gin.Context) (model.Page, error) {
	page := model.Page{Skip: 0, Limit: defaultPageLimit}

	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, apperr.Invalid("skip", "must be an integer")
		}
		page.Skip = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, apperr.Invalid("limit", "must be an integer")
		}
		page.Limit = n
	}

	if err := page.Validate(); err != nil {
		return page, err
	}
	return page, nil
}

// Handles POST /api/v1/reports.
func (h *ReportHandler) SubmitReport(c *gin.Context) {
	var req model.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := middleware.UserID(c)
	deviceID := c.GetHeader(headerDeviceID)
	if userID == nil && deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anonymous submissions require the " + headerDeviceID + " header"})
		return
	}

	report, err := h.reportService.Submit(c.Request.Context(), &req, userID, deviceID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

// Handles GET /api/v1/reports/:id.
func (h *ReportHandler) GetReport(c *gin.Context) {
	report, err := h.reportService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles GET /api/v1/reports with optional status/category filters.
func (h *ReportHandler) ListReports(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var filters model.ListFilters
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		filters.Status = &status
	}
	if raw := c.Query("category"); raw != "" {
		category, err := model.ParseCategory(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		filters.Category = &category
	}

	list, err := h.reportService.List(c.Request.Context(), filters, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Handles GET /api/v1/reports/nearby?lat=..&lng=..&radius=..
func (h *ReportHandler) NearbyReports(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		writeError(c, err)
		return
	}

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	radius, radErr := strconv.ParseFloat(c.Query("radius"), 64)

	verr := &apperr.ValidationError{}
	if latErr != nil {
		verr.Add("lat", "must be a number")
	}
	if lngErr != nil {
		verr.Add("lng", "must be a number")
	}
	if radErr != nil {
		verr.Add("radius", "must be a number")
	}
	if !verr.Empty() {
		writeError(c, verr)
		return
	}

	center, err := geo.New(lat, lng)
	if err != nil {
		writeError(c, err)
		return
	}

	list, err := h.reportService.FindNear(c.Request.Context(), center, radius, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Handles PUT /api/v1/reports/:id. Only the submitter or an official may
// edit a report's fields.
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	var req model.UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if role, _ := c.Get(middleware.ContextRole); role != middleware.RoleOfficial {
		current, err := h.reportService.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		userID := middleware.UserID(c)
		if current.UserID == nil || userID == nil || *current.UserID != *userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
	}

	report, err := h.reportService.UpdateFields(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles PUT /api/v1/reports/:id/status. Restricted to officials.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	next, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	report, err := h.reportService.UpdateStatus(c.Request.Context(), c.Param("id"), next, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles DELETE /api/v1/reports/:id.
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	if err := h.reportService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Handles GET /health.
func (h *ReportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "civicreport"})
}
