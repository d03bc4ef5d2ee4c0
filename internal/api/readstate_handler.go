package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/service"
)

// ReadStateHandler handles read watermark endpoints.
type ReadStateHandler struct {
	service *service.ReadStateService
}

// NewReadStateHandler creates a ReadStateHandler.
func NewReadStateHandler(svc *service.ReadStateService) *ReadStateHandler {
	return &ReadStateHandler{service: svc}
}

// Ack handles PUT /conversations/:id/ack.
func (h *ReadStateHandler) Ack(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	if err := h.service.Ack(c.Request().Context(), conversationID, userID); err != nil {
		return mapServiceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Unread handles GET /conversations/:id/unread.
func (h *ReadStateHandler) Unread(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	count, err := h.service.Unread(c.Request().Context(), conversationID, userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]int{"unread_count": count})
}

// TotalUnread handles GET /users/@me/unread.
func (h *ReadStateHandler) TotalUnread(c echo.Context) error {
	userID := auth.GetUserID(c)

	total, err := h.service.TotalUnread(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]int{"total_unread": total})
}
