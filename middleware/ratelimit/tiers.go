package ratelimit

import (
	"time"

	"github.com/Delfi2007/logisync-sub000/config"
)

type CountMode string

const (
	// CountAll counts every request against the window.
	CountAll CountMode = "all"
	// CountFailures counts a request only when it ends in a 4xx/5xx, so
	// legitimate logins never exhaust the window.
	CountFailures CountMode = "failures"
)

// Tier is one independently configured governor: its counters are keyed by
// (tier name, identity) so tiers never interfere with each other.
type Tier struct {
	Name   string
	Rate   int
	Period time.Duration
	Mode   CountMode
	Code   string
}

func GeneralTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "general",
		Rate:   cfg.GeneralRate,
		Period: cfg.GeneralPeriod,
		Mode:   CountAll,
		Code:   "RATE_LIMIT_EXCEEDED",
	}
}

func LoginTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "login",
		Rate:   cfg.LoginRate,
		Period: cfg.LoginPeriod,
		Mode:   CountFailures,
		Code:   "LOGIN_RATE_LIMIT",
	}
}

func PasswordResetTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "password_reset",
		Rate:   cfg.PasswordResetRate,
		Period: cfg.PasswordResetPeriod,
		Mode:   CountAll,
		Code:   "PASSWORD_RESET_RATE_LIMIT",
	}
}

func RegistrationTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "registration",
		Rate:   cfg.RegistrationRate,
		Period: cfg.RegistrationPeriod,
		Mode:   CountAll,
		Code:   "REGISTRATION_RATE_LIMIT",
	}
}

func UploadTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "upload",
		Rate:   cfg.UploadRate,
		Period: cfg.UploadPeriod,
		Mode:   CountAll,
		Code:   "UPLOAD_RATE_LIMIT",
	}
}

func SensitiveTier(cfg *config.RateLimitConfig) Tier {
	return Tier{
		Name:   "sensitive",
		Rate:   cfg.SensitiveRate,
		Period: cfg.SensitivePeriod,
		Mode:   CountFailures,
		Code:   "SENSITIVE_OPERATION_RATE_LIMIT",
	}
}
