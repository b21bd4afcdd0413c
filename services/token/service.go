package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Delfi2007/logisync-sub000/config"
	"github.com/Delfi2007/logisync-sub000/services/logging"
	"go.uber.org/zap"
)

var (
	ErrTokenInvalid         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token has expired")
)

// Service is the sole authority for minting, verifying, rotating and revoking
// tokens. Access and refresh tokens are signed with distinct secrets so that
// possession of one never derives the other.
type Service struct {
	config *config.Config
	store  Store
	logger *logging.Service

	// mu serializes rotation so a refresh token is consumed exactly once
	// even under concurrent replay attempts.
	mu sync.Mutex
}

func NewService(cfg *config.Config, store Store, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

func (s *Service) GetAccessExpirySeconds() int {
	return int(s.config.JWT.AccessExpiry.Seconds())
}

func (s *Service) GetRefreshExpirySeconds() int {
	return int(s.config.JWT.RefreshExpiry.Seconds())
}

func (s *Service) RefreshCookieName() string {
	return s.config.JWT.RefreshCookie
}

// Issue mints an access/refresh pair for the identity and registers the
// refresh token. The pair is always produced as a unit.
func (s *Service) Issue(id Identity) (*Pair, error) {
	now := time.Now()

	accessToken, err := s.signToken(Claims{
		UserID:   id.UserID,
		Role:     id.Role,
		DeviceID: id.DeviceID,
		TokenUse: useAccess,
	}, now, s.config.JWT.AccessExpiry, s.config.JWT.AccessSecret)
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshExpiresAt := now.Add(s.config.JWT.RefreshExpiry)
	refreshToken, err := s.signToken(Claims{
		UserID:   id.UserID,
		DeviceID: id.DeviceID,
		TokenUse: useRefresh,
	}, now, s.config.JWT.RefreshExpiry, s.config.JWT.RefreshSecret)
	if err != nil {
		s.logger.Error("failed to sign refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	err = s.store.PutRefresh(hashToken(refreshToken), Record{
		UserID:    id.UserID,
		DeviceID:  id.DeviceID,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		s.logger.Error("failed to register refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to register refresh token: %w", err)
	}

	s.logger.Debug("token pair issued",
		zap.Uint("user_id", id.UserID),
		zap.String("role", id.Role),
		zap.String("device_id", id.DeviceID))

	return &Pair{
		AccessToken:         accessToken,
		RefreshToken:        refreshToken,
		AccessExpirySeconds: s.GetAccessExpirySeconds(),
	}, nil
}

// VerifyAccess validates an access token and returns its claims. Revocation
// wins over every other failure so a revoked token never downgrades to a
// softer error.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	revoked, err := s.store.IsRevoked(hashToken(tokenString))
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation status: %w", err)
	}
	if revoked {
		s.logger.Warn("access token rejected - revoked")
		return nil, ErrTokenRevoked
	}

	claims, err := s.parseToken(tokenString, s.config.JWT.AccessSecret)
	if err != nil {
		return nil, err
	}

	if claims.TokenUse != useAccess {
		s.logger.Warn("access token rejected - wrong token use",
			zap.String("token_use", claims.TokenUse))
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// VerifyRefresh validates a refresh token against the registry and returns
// the identity it was minted for. An expired registry entry is removed as a
// side effect; the sweep converts such entries to revocations before removal
// when it gets there first.
func (s *Service) VerifyRefresh(tokenString string) (*RefreshIdentity, error) {
	_, rec, err := s.lookupRefresh(tokenString)
	if err != nil {
		return nil, err
	}

	return &RefreshIdentity{UserID: rec.UserID, DeviceID: rec.DeviceID}, nil
}

func (s *Service) lookupRefresh(tokenString string) (string, *Record, error) {
	hash := hashToken(tokenString)

	revoked, err := s.store.IsRevoked(hash)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check revocation status: %w", err)
	}
	if revoked {
		s.logger.Warn("refresh token rejected - revoked")
		return "", nil, ErrTokenRevoked
	}

	rec, err := s.store.GetRefresh(hash)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if rec == nil {
		s.logger.Warn("refresh token rejected - not found")
		return "", nil, ErrRefreshTokenNotFound
	}

	if time.Now().After(rec.ExpiresAt) {
		s.logger.Warn("refresh token rejected - expired",
			zap.Uint("user_id", rec.UserID),
			zap.Time("expired_at", rec.ExpiresAt))
		if err := s.store.DeleteRefresh(hash); err != nil {
			s.logger.Error("failed to delete stale refresh token", zap.Error(err))
		}
		return "", nil, ErrRefreshTokenExpired
	}

	claims, err := s.parseToken(tokenString, s.config.JWT.RefreshSecret)
	if err != nil {
		return "", nil, err
	}
	if claims.TokenUse != useRefresh || claims.UserID != rec.UserID || claims.DeviceID != rec.DeviceID {
		s.logger.Warn("refresh token rejected - claims disagree with registry",
			zap.Uint("user_id", rec.UserID))
		return "", nil, ErrTokenInvalid
	}

	return hash, rec, nil
}

// Rotate consumes a refresh token and mints a replacement pair for the same
// user and device with the freshly supplied role. The old token is revoked
// before the new pair is issued; if revocation fails nothing is issued.
func (s *Service) Rotate(oldRefreshToken string, role string) (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, rec, err := s.lookupRefresh(oldRefreshToken)
	if err != nil {
		return nil, err
	}

	return s.rotateLocked(hash, rec, role)
}

// rotateLocked revokes the consumed token and issues the replacement pair.
// Callers must hold s.mu.
func (s *Service) rotateLocked(hash string, rec *Record, role string) (*Pair, error) {
	if err := s.store.AddRevoked(hash, rec.ExpiresAt); err != nil {
		s.logger.Error("rotation aborted - failed to revoke old refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to revoke old refresh token: %w", err)
	}
	if err := s.store.DeleteRefresh(hash); err != nil {
		s.logger.Error("failed to deregister rotated refresh token", zap.Error(err))
	}

	pair, err := s.Issue(Identity{UserID: rec.UserID, Role: role, DeviceID: rec.DeviceID})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refresh token rotated",
		zap.Uint("user_id", rec.UserID),
		zap.String("device_id", rec.DeviceID))

	return pair, nil
}

// RotateResolving is Rotate for callers that don't carry the role themselves:
// the fresh role is read from the identity store so a role change since login
// lands in the new pair. A resolver failure consumes nothing.
func (s *Service) RotateResolving(oldRefreshToken string, resolver RoleResolver) (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, rec, err := s.lookupRefresh(oldRefreshToken)
	if err != nil {
		return nil, err
	}

	role, err := resolver.ResolveRole(rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role for user %d: %w", rec.UserID, err)
	}

	return s.rotateLocked(hash, rec, role)
}

// Revoke unconditionally moves a token into the revocation set and removes
// any registry entry. Idempotent.
func (s *Service) Revoke(tokenString string) error {
	hash := hashToken(tokenString)

	expiresAt := s.tokenExpiry(tokenString)
	if err := s.store.AddRevoked(hash, expiresAt); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if err := s.store.DeleteRefresh(hash); err != nil {
		return fmt.Errorf("failed to deregister revoked token: %w", err)
	}

	s.logger.Info("token revoked", zap.Time("expires_at", expiresAt))
	return nil
}

// RevokeAllForUser revokes every active refresh token belonging to a user.
// Used for "logout everywhere" and forced re-authentication after a password
// or role change.
func (s *Service) RevokeAllForUser(userID uint) error {
	return s.revokeMatching(userID, "")
}

// RevokeAllForDevice revokes every active refresh token a user holds on one
// device.
func (s *Service) RevokeAllForDevice(userID uint, deviceID string) error {
	return s.revokeMatching(userID, deviceID)
}

func (s *Service) revokeMatching(userID uint, deviceID string) error {
	recs, err := s.store.ListRefresh(userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	for hash, rec := range recs {
		if err := s.store.AddRevoked(hash, rec.ExpiresAt); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if err := s.store.DeleteRefresh(hash); err != nil {
			return fmt.Errorf("failed to deregister refresh token: %w", err)
		}
	}

	s.logger.Info("revoked user refresh tokens",
		zap.Uint("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Int("count", len(recs)))

	return nil
}

// SweepExpired moves expired registry entries into the revocation set and
// evicts revocations whose original expiry passed longer than the configured
// retention ago. Runs off the request path.
func (s *Service) SweepExpired() error {
	res, err := s.store.Sweep(time.Now(), s.config.Revocation.Retention)
	if err != nil {
		s.logger.Error("token sweep failed", zap.Error(err))
		return fmt.Errorf("token sweep failed: %w", err)
	}

	if res.ExpiredRefresh > 0 || res.EvictedRevoked > 0 {
		s.logger.Info("token sweep completed",
			zap.Int("expired_refresh", res.ExpiredRefresh),
			zap.Int("evicted_revoked", res.EvictedRevoked))
	}

	return nil
}

func (s *Service) StartSweepWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.SweepExpired(); err != nil {
				s.logger.Error("sweep worker failed", zap.Error(err))
			}
		}
	}()

	s.logger.Info("started token sweep worker", zap.Duration("interval", interval))
}

func (s *Service) signToken(claims Claims, now time.Time, expiry time.Duration, secret string) (string, error) {
	jti := uuid.New().String()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.config.JWT.Issuer,
		Subject:   fmt.Sprintf("%d", claims.UserID),
		Audience:  []string{s.config.JWT.Issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *Service) parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		// A bad signature must stay "invalid" even when the token is also
		// time-expired, so the expiry check only applies to clean parses.
		if errors.Is(err, jwt.ErrTokenExpired) &&
			!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
			!errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenExpired
		}
		s.logger.Warn("token validation failed", zap.Error(err))
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// tokenExpiry extracts the expiry for revocation bookkeeping. The registry
// record wins; otherwise the unverified exp claim is good enough since it
// only bounds how long the revocation entry is retained.
func (s *Service) tokenExpiry(tokenString string) time.Time {
	if rec, err := s.store.GetRefresh(hashToken(tokenString)); err == nil && rec != nil {
		return rec.ExpiresAt
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err == nil {
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}

	return time.Now().Add(s.config.JWT.RefreshExpiry)
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
