package handler

import (
	"net/http"

	"civicreport/internal/model"
	"civicreport/internal/service"

	"github.com/gin-gonic/gin"
)

type AttachmentHandler struct {
	attachmentService *service.AttachmentService
}

func NewAttachmentHandler(attachmentService *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// Handles POST /api/v1/reports/:id/attachments as multipart form data with
// a single "file" part.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file part"})
		return
	}

	if fileHeader.Size > model.MaxAttachmentSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 50 MiB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file part"})
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")

	att, err := h.attachmentService.Add(
		c.Request.Context(),
		c.Param("id"),
		fileHeader.Filename,
		mimeType,
		fileHeader.Size,
		file,
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, att)
}

// Handles GET /api/v1/reports/:id/attachments.
func (h *AttachmentHandler) List(c *gin.Context) {
	list, err := h.attachmentService.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Handles DELETE /api/v1/reports/:id/attachments/:attachmentID.
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachmentService.Remove(c.Request.Context(), c.Param("id"), c.Param("attachmentID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
