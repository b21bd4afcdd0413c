package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Delfi2007/logisync-sub000/middleware/authn"
	"github.com/Delfi2007/logisync-sub000/services/token"
)

func testTier(rate int, mode CountMode) Tier {
	return Tier{
		Name:   "test",
		Rate:   rate,
		Period: time.Minute,
		Mode:   mode,
		Code:   "RATE_LIMIT_EXCEEDED",
	}
}

func invoke(mw echo.MiddlewareFunc, handler echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	return rec, mw(handler)(c)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func failHandler(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
}

func TestMiddlewareLimiting(t *testing.T) {
	t.Run("sets rate headers on admitted requests", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(5, CountAll))

		rec, err := invoke(mw, okHandler, "203.0.113.1")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("RateLimit-Reset"))
	})

	t.Run("rejects over the limit with tier code and Retry-After", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), Tier{
			Name:   "login",
			Rate:   2,
			Period: time.Minute,
			Mode:   CountAll,
			Code:   "LOGIN_RATE_LIMIT",
		})

		for n := 0; n < 2; n++ {
			rec, err := invoke(mw, okHandler, "203.0.113.2")
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec, err := invoke(mw, okHandler, "203.0.113.2")
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		var body authn.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "LOGIN_RATE_LIMIT", body.Code)
	})

	t.Run("middleware and governor share one admission window", func(t *testing.T) {
		g := NewGovernor(NewMemoryStore())
		mw := Middleware(g, testTier(2, CountAll))

		rec, err := invoke(mw, okHandler, "198.51.100.9")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rec.Code)

		// A direct admission against the same key consumes the same window.
		d := g.Allow("test:ip:198.51.100.9", 2, time.Minute)
		require.True(t, d.Allowed)

		rec, err = invoke(mw, okHandler, "198.51.100.9")
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(1, CountAll))

		rec, _ := invoke(mw, okHandler, "203.0.113.3")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec, _ = invoke(mw, okHandler, "203.0.113.3")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec, _ = invoke(mw, okHandler, "203.0.113.4")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMiddlewareCountFailures(t *testing.T) {
	t.Run("successes are refunded", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(2, CountFailures))

		// Far more successes than the window allows.
		for n := 0; n < 10; n++ {
			rec, err := invoke(mw, okHandler, "198.51.100.1")
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("failed responses count", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(2, CountFailures))

		for n := 0; n < 2; n++ {
			rec, err := invoke(mw, failHandler, "198.51.100.2")
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec, err := invoke(mw, failHandler, "198.51.100.2")
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("handler errors count", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(1, CountFailures))
		boom := func(c echo.Context) error { return errors.New("boom") }

		_, err := invoke(mw, boom, "198.51.100.3")
		assert.Error(t, err)

		rec, err := invoke(mw, okHandler, "198.51.100.3")
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("success after failures refunds only itself", func(t *testing.T) {
		mw := Middleware(NewGovernor(NewMemoryStore()), testTier(3, CountFailures))

		for n := 0; n < 2; n++ {
			rec, _ := invoke(mw, failHandler, "198.51.100.4")
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec, _ := invoke(mw, okHandler, "198.51.100.4")
		assert.Equal(t, http.StatusOK, rec.Code)

		// The two failures are still on the books.
		rec, _ = invoke(mw, failHandler, "198.51.100.4")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		rec, _ = invoke(mw, failHandler, "198.51.100.4")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestIdentityKey(t *testing.T) {
	e := echo.New()

	t.Run("prefers authenticated user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("_auth_identity", &token.Claims{UserID: 42, Role: "staff"})

		assert.Equal(t, "user:42", IdentityKey(c))
	})

	t.Run("falls back to client ip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		c := e.NewContext(req, httptest.NewRecorder())

		assert.Equal(t, "ip:203.0.113.9", IdentityKey(c))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:54321"
		c := e.NewContext(req, httptest.NewRecorder())

		assert.Equal(t, "ip:192.0.2.10", IdentityKey(c))
	})
}
