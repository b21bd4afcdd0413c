package authn

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the rejection body. Code is machine-readable: clients use
// it to decide whether to attempt a silent refresh or back off.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTokenRevoked            = "TOKEN_REVOKED"
	CodeDeviceMismatch          = "DEVICE_MISMATCH"
	CodeRefreshTokenExpired     = "REFRESH_TOKEN_EXPIRED"
	CodeRefreshTokenNotFound    = "REFRESH_TOKEN_NOT_FOUND"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeForbidden               = "FORBIDDEN"
)

func reject(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}

// rejectInternal is for token-service programming errors (signing or store
// failures). They propagate as a plain 500 so an operational failure is never
// dressed up as a security decision.
func rejectInternal(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: "authentication backend failure",
	})
}
