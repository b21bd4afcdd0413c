package authn

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Delfi2007/logisync-sub000/services/audit"
	"github.com/Delfi2007/logisync-sub000/services/fingerprint"
	"github.com/Delfi2007/logisync-sub000/services/logging"
	"github.com/Delfi2007/logisync-sub000/services/token"
	"go.uber.org/zap"
)

// authFailure is a verification outcome that has not been rendered yet, so
// OptionalAuth can discard it without committing a response. An empty code
// marks a backend failure rather than an authentication decision.
type authFailure struct {
	status  int
	code    string
	message string
}

func (f *authFailure) render(c echo.Context) error {
	if f.code == "" {
		return rejectInternal(c)
	}
	return reject(c, f.status, f.code, f.message)
}

// RequireAuth gates a request on a valid, unrevoked, device-bound access
// token. On success the identity claims are attached to the context and a
// suspicious-device classification is logged without blocking the request.
func RequireAuth(tokens *token.Service, auditor *audit.Dispatcher, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, failure := authenticate(c, tokens, logger)
			if failure != nil {
				return failure.render(c)
			}

			observeDevice(c, claims, auditor, logger)

			c.Set(identityKey, claims)
			return next(c)
		}
	}
}

// OptionalAuth runs the same pipeline but degrades silently: any failure
// leaves the request anonymous instead of rejecting it.
func OptionalAuth(tokens *token.Service, auditor *audit.Dispatcher, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, failure := authenticate(c, tokens, logger)
			if failure != nil {
				return next(c)
			}

			observeDevice(c, claims, auditor, logger)

			c.Set(identityKey, claims)
			return next(c)
		}
	}
}

func authenticate(c echo.Context, tokens *token.Service, logger *logging.Service) (*token.Claims, *authFailure) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return nil, &authFailure{http.StatusUnauthorized, CodeAuthRequired, "Authorization header required"}
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, &authFailure{http.StatusUnauthorized, CodeAuthRequired, "Invalid authorization header format"}
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return nil, &authFailure{http.StatusUnauthorized, CodeAuthRequired, "Access token required"}
	}

	claims, err := tokens.VerifyAccess(tokenString)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return nil, &authFailure{http.StatusUnauthorized, CodeTokenExpired, "Access token has expired"}
		case errors.Is(err, token.ErrTokenRevoked):
			return nil, &authFailure{http.StatusUnauthorized, CodeTokenRevoked, "Access token has been revoked"}
		case errors.Is(err, token.ErrTokenInvalid):
			return nil, &authFailure{http.StatusUnauthorized, CodeTokenInvalid, "Invalid access token"}
		default:
			logger.Error("access token verification failed", zap.Error(err))
			return nil, &authFailure{status: http.StatusInternalServerError}
		}
	}

	if derived := fingerprint.DeviceID(c.Request()); derived != claims.DeviceID {
		logger.Warn("device binding mismatch",
			zap.Uint("user_id", claims.UserID),
			zap.String("token_device", claims.DeviceID),
			zap.String("request_device", derived))
		return nil, &authFailure{http.StatusUnauthorized, CodeDeviceMismatch, "Token is bound to a different device"}
	}

	return claims, nil
}

func observeDevice(c echo.Context, claims *token.Claims, auditor *audit.Dispatcher, logger *logging.Service) {
	assessment := fingerprint.Classify(c.Request())
	if !assessment.Suspicious {
		return
	}

	logger.Warn("suspicious device detected",
		zap.Uint("user_id", claims.UserID),
		zap.Strings("reasons", assessment.Reasons))

	auditor.Emit(c.Request().Context(), audit.Event{
		Timestamp: time.Now(),
		EventType: audit.EventSuspiciousDevice,
		UserID:    claims.UserID,
		DeviceID:  claims.DeviceID,
		IP:        fingerprint.ClientIP(c.Request()),
		Success:   true,
		Reason:    strings.Join(assessment.Reasons, "; "),
	})
}

// RequireRefresh mirrors the access path but reads the token from the
// HTTP-only refresh cookie. On success only the user and device ids are
// attached: the role must be re-resolved from the identity store because it
// can change between refreshes.
func RequireRefresh(tokens *token.Service, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(tokens.RefreshCookieName())
			if err != nil || cookie.Value == "" {
				return reject(c, http.StatusUnauthorized, CodeAuthRequired, "Refresh token cookie required")
			}

			id, err := tokens.VerifyRefresh(cookie.Value)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrRefreshTokenExpired):
					return reject(c, http.StatusUnauthorized, CodeRefreshTokenExpired, "Refresh token has expired")
				case errors.Is(err, token.ErrRefreshTokenNotFound):
					return reject(c, http.StatusUnauthorized, CodeRefreshTokenNotFound, "Refresh token not recognised")
				case errors.Is(err, token.ErrTokenRevoked):
					return reject(c, http.StatusUnauthorized, CodeTokenRevoked, "Refresh token has been revoked")
				case errors.Is(err, token.ErrTokenInvalid):
					return reject(c, http.StatusUnauthorized, CodeTokenInvalid, "Invalid refresh token")
				default:
					logger.Error("refresh token verification failed", zap.Error(err))
					return rejectInternal(c)
				}
			}

			if derived := fingerprint.DeviceID(c.Request()); derived != id.DeviceID {
				logger.Warn("refresh device binding mismatch",
					zap.Uint("user_id", id.UserID),
					zap.String("token_device", id.DeviceID),
					zap.String("request_device", derived))
				return reject(c, http.StatusUnauthorized, CodeDeviceMismatch, "Token is bound to a different device")
			}

			c.Set(refreshIdentityKey, id)
			return next(c)
		}
	}
}
