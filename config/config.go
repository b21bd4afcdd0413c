package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Log        LogConfig        `envPrefix:"LOGISYNC_LOG_"`
	JWT        JWTConfig        `envPrefix:"LOGISYNC_JWT_"`
	Revocation RevocationConfig `envPrefix:"LOGISYNC_REVOCATION_"`
	RateLimit  RateLimitConfig  `envPrefix:"LOGISYNC_RATELIMIT_"`
	Audit      AuditConfig      `envPrefix:"LOGISYNC_AUDIT_"`
	Database   DatabaseConfig   `envPrefix:"LOGISYNC_DB_"`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	OutputPath string `env:"OUTPUT" envDefault:"stdout"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	Algorithm     string        `env:"ALGORITHM" envDefault:"HS256"`
	Issuer        string        `env:"ISSUER" envDefault:"logisync"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	RefreshCookie string        `env:"REFRESH_COOKIE" envDefault:"refresh_token"`
}

type RevocationConfig struct {
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	// Retention is how long a revoked entry outlives the token's own
	// expiry before the sweep evicts it.
	Retention time.Duration `env:"RETENTION" envDefault:"24h"`
}

type RateLimitConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Store   string `env:"STORE" envDefault:"memory"`

	GeneralRate   int           `env:"GENERAL_RATE" envDefault:"120"`
	GeneralPeriod time.Duration `env:"GENERAL_PERIOD" envDefault:"1m"`

	LoginRate   int           `env:"LOGIN_RATE" envDefault:"5"`
	LoginPeriod time.Duration `env:"LOGIN_PERIOD" envDefault:"15m"`

	PasswordResetRate   int           `env:"PASSWORD_RESET_RATE" envDefault:"3"`
	PasswordResetPeriod time.Duration `env:"PASSWORD_RESET_PERIOD" envDefault:"1h"`

	RegistrationRate   int           `env:"REGISTRATION_RATE" envDefault:"10"`
	RegistrationPeriod time.Duration `env:"REGISTRATION_PERIOD" envDefault:"1h"`

	UploadRate   int           `env:"UPLOAD_RATE" envDefault:"20"`
	UploadPeriod time.Duration `env:"UPLOAD_PERIOD" envDefault:"10m"`

	SensitiveRate   int           `env:"SENSITIVE_RATE" envDefault:"10"`
	SensitivePeriod time.Duration `env:"SENSITIVE_PERIOD" envDefault:"10m"`
}

type AuditConfig struct {
	Enabled    bool `env:"ENABLED" envDefault:"true"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return cfg.Validate()
}

func (c *Config) Validate() error {
	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}
	if err := validateRateLimitConfig(&c.RateLimit); err != nil {
		return err
	}
	return validateRevocationConfig(&c.Revocation)
}

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func validateJWTConfig(cfg *JWTConfig) error {
	if cfg.Algorithm != "HS256" {
		return fmt.Errorf("unsupported JWT algorithm: %s (supported: HS256)", cfg.Algorithm)
	}

	for _, key := range []string{cfg.AccessSecret, cfg.RefreshSecret} {
		if len(key) < 32 {
			return errors.New("JWT secret key must be at least 32 characters long")
		}
		lower := strings.ToLower(key)
		for _, pattern := range weakSecretPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("JWT secret key contains weak patterns (%q)", pattern)
			}
		}
	}

	// Holding the access secret must not be enough to mint refresh tokens.
	if cfg.AccessSecret == cfg.RefreshSecret {
		return errors.New("JWT access and refresh secrets must differ")
	}

	if cfg.AccessExpiry <= 0 {
		return errors.New("JWT access expiry must be positive")
	}
	if cfg.RefreshExpiry <= cfg.AccessExpiry {
		return errors.New("JWT refresh expiry must exceed access expiry")
	}

	return nil
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	rates := map[string]int{
		"general":        cfg.GeneralRate,
		"login":          cfg.LoginRate,
		"password reset": cfg.PasswordResetRate,
		"registration":   cfg.RegistrationRate,
		"upload":         cfg.UploadRate,
		"sensitive":      cfg.SensitiveRate,
	}
	for name, rate := range rates {
		if rate <= 0 {
			return fmt.Errorf("%s rate limit must be positive", name)
		}
	}

	periods := map[string]time.Duration{
		"general":        cfg.GeneralPeriod,
		"login":          cfg.LoginPeriod,
		"password reset": cfg.PasswordResetPeriod,
		"registration":   cfg.RegistrationPeriod,
		"upload":         cfg.UploadPeriod,
		"sensitive":      cfg.SensitivePeriod,
	}
	for name, period := range periods {
		if period <= 0 {
			return fmt.Errorf("%s rate limit period must be positive", name)
		}
	}

	return nil
}

func validateRevocationConfig(cfg *RevocationConfig) error {
	if cfg.SweepInterval <= 0 {
		return errors.New("revocation sweep interval must be positive")
	}
	if cfg.Retention < 0 {
		return errors.New("revocation retention must not be negative")
	}
	return nil
}
