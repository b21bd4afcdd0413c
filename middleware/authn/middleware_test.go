package authn

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Delfi2007/logisync-sub000/config"
	"github.com/Delfi2007/logisync-sub000/services/audit"
	"github.com/Delfi2007/logisync-sub000/services/fingerprint"
	"github.com/Delfi2007/logisync-sub000/services/token"
	"github.com/Delfi2007/logisync-sub000/testutils"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTokenService(t *testing.T) (*token.Service, *config.Config) {
	t.Helper()
	cfg := testutils.GetTestConfig()
	return token.NewService(cfg, token.NewMemoryStore(), nil), cfg
}

func browserRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	return req
}

// issueFor mints a pair bound to the device fingerprint the request derives.
func issueFor(t *testing.T, svc *token.Service, req *http.Request, userID uint, role string) *token.Pair {
	t.Helper()
	pair, err := svc.Issue(token.Identity{
		UserID:   userID,
		Role:     role,
		DeviceID: fingerprint.DeviceID(req),
	})
	require.NoError(t, err)
	return pair
}

func perform(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, bool) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := mw(func(c echo.Context) error {
		reached = true
		return c.String(http.StatusOK, "ok")
	})

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, reached
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		svc, _ := newTokenService(t)
		rec, reached := perform(RequireAuth(svc, nil, nil), browserRequest())

		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeAuthRequired, decodeError(t, rec).Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		req.Header.Set("Authorization", "Token abc")

		rec, reached := perform(RequireAuth(svc, nil, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeAuthRequired, decodeError(t, rec).Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		req.Header.Set("Authorization", "Bearer garbage")

		rec, reached := perform(RequireAuth(svc, nil, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeTokenInvalid, decodeError(t, rec).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		svc, cfg := newTokenService(t)
		cfg.JWT.AccessExpiry = -time.Minute

		req := browserRequest()
		pair := issueFor(t, svc, req, 7, "staff")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		rec, reached := perform(RequireAuth(svc, nil, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeTokenExpired, decodeError(t, rec).Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		pair := issueFor(t, svc, req, 7, "staff")
		require.NoError(t, svc.Revoke(pair.AccessToken))
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		rec, reached := perform(RequireAuth(svc, nil, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeTokenRevoked, decodeError(t, rec).Code)
	})

	t.Run("device mismatch", func(t *testing.T) {
		svc, _ := newTokenService(t)
		pair := issueFor(t, svc, browserRequest(), 7, "staff")

		// Same token presented from a different browser context.
		req := browserRequest()
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		rec, reached := perform(RequireAuth(svc, nil, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeDeviceMismatch, decodeError(t, rec).Code)
	})

	t.Run("success attaches identity", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		pair := issueFor(t, svc, req, 42, "admin")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		var claims *token.Claims
		handler := RequireAuth(svc, nil, nil)(func(c echo.Context) error {
			claims = GetIdentity(c)
			return c.String(http.StatusOK, "ok")
		})
		require.NoError(t, handler(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, claims)
		assert.Equal(t, uint(42), claims.UserID)
		assert.Equal(t, "admin", claims.Role)
		assert.Equal(t, uint(42), GetUserID(c))
	})

	t.Run("suspicious device is audited but not blocked", func(t *testing.T) {
		svc, _ := newTokenService(t)
		sink := audit.NewChannelSink(4)
		dispatcher := audit.NewDispatcher(config.AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
		defer dispatcher.Close()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", "curl/8.4.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		pair := issueFor(t, svc, req, 9, "staff")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		rec, reached := perform(RequireAuth(svc, dispatcher, nil), req)
		assert.True(t, reached)
		assert.Equal(t, http.StatusOK, rec.Code)

		select {
		case event := <-sink.Events():
			assert.Equal(t, audit.EventSuspiciousDevice, event.EventType)
			assert.Equal(t, uint(9), event.UserID)
			assert.Equal(t, "203.0.113.7", event.IP)
		case <-time.After(time.Second):
			t.Fatal("expected a suspicious-device audit event")
		}
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("failure degrades to anonymous", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		req.Header.Set("Authorization", "Bearer garbage")

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := OptionalAuth(svc, nil, nil)(func(c echo.Context) error {
			assert.Nil(t, GetIdentity(c))
			return c.String(http.StatusOK, "anonymous")
		})
		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token degrades to anonymous", func(t *testing.T) {
		svc, _ := newTokenService(t)

		rec, reached := perform(OptionalAuth(svc, nil, nil), browserRequest())
		assert.True(t, reached)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		pair := issueFor(t, svc, req, 42, "admin")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := OptionalAuth(svc, nil, nil)(func(c echo.Context) error {
			require.NotNil(t, GetIdentity(c))
			return c.String(http.StatusOK, "ok")
		})
		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireRefresh(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		svc, _ := newTokenService(t)

		rec, reached := perform(RequireRefresh(svc, nil), browserRequest())
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeAuthRequired, decodeError(t, rec).Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		req.AddCookie(&http.Cookie{Name: svc.RefreshCookieName(), Value: "never-issued"})

		rec, reached := perform(RequireRefresh(svc, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeRefreshTokenNotFound, decodeError(t, rec).Code)
	})

	t.Run("rotated token is revoked", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		pair := issueFor(t, svc, req, 9, "staff")
		_, err := svc.Rotate(pair.RefreshToken, "staff")
		require.NoError(t, err)

		req.AddCookie(&http.Cookie{Name: svc.RefreshCookieName(), Value: pair.RefreshToken})

		rec, reached := perform(RequireRefresh(svc, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeTokenRevoked, decodeError(t, rec).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		svc, cfg := newTokenService(t)
		cfg.JWT.RefreshExpiry = -time.Hour

		req := browserRequest()
		pair := issueFor(t, svc, req, 9, "staff")
		req.AddCookie(&http.Cookie{Name: svc.RefreshCookieName(), Value: pair.RefreshToken})

		rec, reached := perform(RequireRefresh(svc, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeRefreshTokenExpired, decodeError(t, rec).Code)
	})

	t.Run("device mismatch", func(t *testing.T) {
		svc, _ := newTokenService(t)
		pair := issueFor(t, svc, browserRequest(), 9, "staff")

		req := browserRequest()
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0")
		req.AddCookie(&http.Cookie{Name: svc.RefreshCookieName(), Value: pair.RefreshToken})

		rec, reached := perform(RequireRefresh(svc, nil), req)
		assert.False(t, reached)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeDeviceMismatch, decodeError(t, rec).Code)
	})

	t.Run("success attaches user and device only", func(t *testing.T) {
		svc, _ := newTokenService(t)
		req := browserRequest()
		pair := issueFor(t, svc, req, 9, "staff")
		req.AddCookie(&http.Cookie{Name: svc.RefreshCookieName(), Value: pair.RefreshToken})

		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := RequireRefresh(svc, nil)(func(c echo.Context) error {
			id := GetRefreshIdentity(c)
			require.NotNil(t, id)
			assert.Equal(t, uint(9), id.UserID)
			assert.Equal(t, fingerprint.DeviceID(c.Request()), id.DeviceID)
			assert.Nil(t, GetIdentity(c), "full claims must not be attached on the refresh path")
			return c.String(http.StatusOK, "ok")
		})
		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
