package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/service"
)

// mapServiceError translates a service error into an HTTP response.
// Retryable failures get 503 so clients know a retry may succeed.
func mapServiceError(c echo.Context, err error) error {
	var svcErr *service.ServiceError
	if !errors.As(err, &svcErr) {
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(svcErr, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(svcErr, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(svcErr, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(svcErr, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(svcErr, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(svcErr, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	return Error(c, status, svcErr.Code, svcErr.Message)
}
