package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

type Claims struct {
	UserID   uint   `json:"user_id"`
	Role     string `json:"role,omitempty"`
	DeviceID string `json:"device_id"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Identity is the input to Issue: who the pair is for and which device
// fingerprint it is bound to.
type Identity struct {
	UserID   uint
	Role     string
	DeviceID string
}

// RefreshIdentity is what VerifyRefresh returns. Role is deliberately absent:
// roles can change between refreshes and must be re-resolved from the
// authoritative identity store before calling Rotate.
type RefreshIdentity struct {
	UserID   uint
	DeviceID string
}

type Pair struct {
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	AccessExpirySeconds int    `json:"access_expiry_seconds"`
}

// Record is the server-side registry entry for one refresh token, keyed by
// the sha256 hash of the raw token. The raw token is never stored.
type Record struct {
	UserID    uint
	DeviceID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RoleResolver is implemented by the identity store. The refresh flow calls
// it to attach a current role before rotating a pair.
type RoleResolver interface {
	ResolveRole(userID uint) (string, error)
}
