package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/core"
)

// ErrorResponse is the uniform error body of both HTTP APIs. error_kind is
// the stable taxonomy string; error_msg is safe to show to operators.
type ErrorResponse struct {
	ErrorKind core.ErrorKind `json:"error_kind"`
	ErrorMsg  string         `json:"error_msg"`
}

// kindStatus maps the error taxonomy to HTTP status codes.
func kindStatus(kind core.ErrorKind) int {
	switch kind {
	case core.KindInvalidInput:
		return http.StatusBadRequest
	case core.KindNotOwner:
		return http.StatusForbidden
	case core.KindDeviceBusy:
		return http.StatusTooManyRequests
	case core.KindHostUnreachable:
		return http.StatusBadGateway
	case core.KindInfeasible:
		return http.StatusUnprocessableEntity
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	case core.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service-layer error to the uniform error body.
func respondError(c *echo.Context, err error) error {
	kind := core.KindOf(err)
	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	if kind == core.KindInternal {
		slog.Error("Unexpected service error", "error", err)
		msg = "internal server error"
	}
	if kind == core.KindDeviceBusy {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(kindStatus(kind), &ErrorResponse{ErrorKind: kind, ErrorMsg: msg})
}

// invalidInput is the shorthand for request validation failures.
func invalidInput(c *echo.Context, format string, args ...any) error {
	return respondError(c, core.Errf(core.KindInvalidInput, format, args...))
}
