package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/service"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{service: svc}
}

type sendMessageRequest struct {
	Content    string             `json:"content" validate:"max=4000"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
}

// Send handles POST /conversations/:id/messages.
func (h *MessageHandler) Send(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_CONTENT", "message content too long")
	}

	msg, err := h.service.Send(c.Request().Context(), conversationID, userID, req.Content, req.Attachment)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, msg)
}

// List handles GET /conversations/:id/messages with cursor pagination.
// Listing alone does not move the read watermark; see OpenThread.
func (h *MessageHandler) List(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	var before *int64
	if s := c.QueryParam("before"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Error(c, http.StatusBadRequest, "INVALID_CURSOR", "invalid before cursor")
		}
		before = &v
	}

	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}

	messages, err := h.service.List(c.Request().Context(), conversationID, userID, before, limit)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, messages)
}

// OpenThread handles GET /conversations/:id/thread: the initial page for a
// freshly opened thread view, marking the conversation read as a side
// effect. The client then subscribes over the gateway for live updates.
func (h *MessageHandler) OpenThread(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}

	messages, err := h.service.OpenThread(c.Request().Context(), conversationID, userID, limit)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, messages)
}

// Typing handles POST /conversations/:id/typing.
func (h *MessageHandler) Typing(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid conversation ID")
	}

	userID := auth.GetUserID(c)

	if err := h.service.Typing(c.Request().Context(), conversationID, userID); err != nil {
		return mapServiceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
