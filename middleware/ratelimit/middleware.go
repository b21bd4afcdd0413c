package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Delfi2007/logisync-sub000/middleware/authn"
	"github.com/Delfi2007/logisync-sub000/services/fingerprint"
)

// Middleware applies one tier through the governor. Runs before
// authentication on public tiers, so the identity key falls back to the
// client IP when no identity has been attached yet.
func Middleware(governor *Governor, tier Tier) echo.MiddlewareFunc {
	if governor == nil {
		governor = NewGovernor(nil)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := tier.Name + ":" + IdentityKey(c)

			decision := governor.Allow(key, tier.Rate, tier.Period)
			setHeaders(c, decision.Limit, decision.Remaining, decision.Reset)

			if !decision.Allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))

				return c.JSON(http.StatusTooManyRequests, authn.ErrorResponse{
					Error:   http.StatusText(http.StatusTooManyRequests),
					Message: "Rate limit exceeded, slow down",
					Code:    tier.Code,
				})
			}

			err := next(c)

			if tier.Mode == CountFailures {
				failed := err != nil || c.Response().Status >= 400
				if !failed {
					// Successful attempts don't count against this tier.
					governor.Forgive(key)
				}
			}

			return err
		}
	}
}

// IdentityKey prefers the authenticated user id and falls back to the client
// IP for unauthenticated traffic.
func IdentityKey(c echo.Context) string {
	if userID := authn.GetUserID(c); userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}

	ip := fingerprint.ClientIP(c.Request())
	if ip == "" {
		ip = "fallback"
	}
	return "ip:" + ip
}

func setHeaders(c echo.Context, limit, remaining int, resetTime time.Time) {
	h := c.Response().Header()
	h.Set("RateLimit-Limit", strconv.Itoa(limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}
