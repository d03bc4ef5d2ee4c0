package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/service"
)

// ConversationHandler handles conversation resolution and the directory.
type ConversationHandler struct {
	service *service.ConversationService
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: svc}
}

type resolveConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

// Resolve handles POST /conversations.
func (h *ConversationHandler) Resolve(c echo.Context) error {
	userID := auth.GetUserID(c)

	var req resolveConversationRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "recipient_id is required")
	}

	conv, err := h.service.Resolve(c.Request().Context(), userID, req.RecipientID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, conv)
}

// List handles GET /conversations.
func (h *ConversationHandler) List(c echo.Context) error {
	userID := auth.GetUserID(c)

	summaries, err := h.service.List(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, summaries)
}
