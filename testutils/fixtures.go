package testutils

import (
	"time"

	"github.com/Delfi2007/logisync-sub000/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
		},
		JWT: config.JWTConfig{
			AccessSecret:  "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6",
			RefreshSecret: "z9y8x7w6v5u4t3s2r1q0p9o8n7m6l5k4",
			Algorithm:     "HS256",
			Issuer:        "logisync-core",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			RefreshCookie: "refresh_token",
		},
		Revocation: config.RevocationConfig{
			SweepInterval: time.Hour,
			Retention:     24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:             true,
			Store:               "memory",
			GeneralRate:         120,
			GeneralPeriod:       time.Minute,
			LoginRate:           5,
			LoginPeriod:         15 * time.Minute,
			PasswordResetRate:   3,
			PasswordResetPeriod: time.Hour,
			RegistrationRate:    10,
			RegistrationPeriod:  time.Hour,
			UploadRate:          20,
			UploadPeriod:        10 * time.Minute,
			SensitiveRate:       10,
			SensitivePeriod:     10 * time.Minute,
		},
		Audit: config.AuditConfig{
			Enabled:    true,
			BufferSize: 16,
			DropIfFull: true,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}
