package token

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Delfi2007/logisync-sub000/services/logging"
	"go.uber.org/zap"
)

type RefreshTokenRow struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	DeviceID  string    `json:"device_id" gorm:"size:64;index"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

func (RefreshTokenRow) TableName() string {
	return "refresh_tokens"
}

type RevokedTokenRow struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (RevokedTokenRow) TableName() string {
	return "revoked_tokens"
}

// GormStore is the persistent Store backend. It survives process restarts,
// which the in-memory store trades away for zero configuration.
type GormStore struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewGormStore(db *gorm.DB, logger *logging.Service) *GormStore {
	return &GormStore{db: db, logger: logger}
}

func (g *GormStore) PutRefresh(hash string, rec Record) error {
	row := RefreshTokenRow{
		TokenHash: hash,
		UserID:    rec.UserID,
		DeviceID:  rec.DeviceID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if err := g.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (g *GormStore) GetRefresh(hash string) (*Record, error) {
	var row RefreshTokenRow
	err := g.db.Where("token_hash = ?", hash).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &Record{
		UserID:    row.UserID,
		DeviceID:  row.DeviceID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (g *GormStore) DeleteRefresh(hash string) error {
	if err := g.db.Where("token_hash = ?", hash).Delete(&RefreshTokenRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

func (g *GormStore) ListRefresh(userID uint, deviceID string) (map[string]Record, error) {
	query := g.db.Where("user_id = ?", userID)
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	var rows []RefreshTokenRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		out[row.TokenHash] = Record{
			UserID:    row.UserID,
			DeviceID:  row.DeviceID,
			CreatedAt: row.CreatedAt,
			ExpiresAt: row.ExpiresAt,
		}
	}
	return out, nil
}

func (g *GormStore) AddRevoked(hash string, expiresAt time.Time) error {
	var row RevokedTokenRow
	err := g.db.Where(RevokedTokenRow{TokenHash: hash}).
		Attrs(RevokedTokenRow{ExpiresAt: expiresAt}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	// Membership is one-way; re-revoking must never shorten retention but a
	// later expiry extends it, matching the in-memory backend.
	if expiresAt.After(row.ExpiresAt) {
		if err := g.db.Model(&row).Update("expires_at", expiresAt).Error; err != nil {
			return fmt.Errorf("failed to extend revocation retention: %w", err)
		}
	}
	return nil
}

func (g *GormStore) IsRevoked(hash string) (bool, error) {
	var count int64
	err := g.db.Model(&RevokedTokenRow{}).Where("token_hash = ?", hash).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check revocation status: %w", err)
	}
	return count > 0, nil
}

func (g *GormStore) Sweep(now time.Time, retention time.Duration) (SweepResult, error) {
	var res SweepResult

	var expired []RefreshTokenRow
	if err := g.db.Where("expires_at < ?", now).Find(&expired).Error; err != nil {
		return res, fmt.Errorf("failed to query expired refresh tokens: %w", err)
	}

	for _, row := range expired {
		if err := g.AddRevoked(row.TokenHash, row.ExpiresAt); err != nil {
			return res, err
		}
	}

	result := g.db.Where("expires_at < ?", now).Delete(&RefreshTokenRow{})
	if result.Error != nil {
		return res, fmt.Errorf("failed to delete expired refresh tokens: %w", result.Error)
	}
	res.ExpiredRefresh = int(result.RowsAffected)

	evicted := g.db.Where("expires_at < ?", now.Add(-retention)).Delete(&RevokedTokenRow{})
	if evicted.Error != nil {
		return res, fmt.Errorf("failed to evict stale revocations: %w", evicted.Error)
	}
	res.EvictedRevoked = int(evicted.RowsAffected)

	if g.logger != nil && (res.ExpiredRefresh > 0 || res.EvictedRevoked > 0) {
		g.logger.Info("swept token store",
			zap.Int("expired_refresh", res.ExpiredRefresh),
			zap.Int("evicted_revoked", res.EvictedRevoked))
	}

	return res, nil
}
