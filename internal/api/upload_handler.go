package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/service"
)

// UploadHandler handles attachment uploads.
type UploadHandler struct {
	service *service.UploadService
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Upload handles POST /uploads (multipart form, "file" field). The response
// is the attachment reference to embed in a subsequent send.
func (h *UploadHandler) Upload(c echo.Context) error {
	userID := auth.GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return Error(c, http.StatusBadRequest, "MISSING_FILE", "multipart 'file' field is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_FILE", "could not read uploaded file")
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := h.service.Upload(c.Request().Context(), userID, fileHeader.Filename, fileHeader.Size, contentType, src)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, attachment)
}
