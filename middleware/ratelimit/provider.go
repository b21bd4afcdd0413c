package ratelimit

import (
	"github.com/Delfi2007/logisync-sub000/config"
	"go.uber.org/fx"
)

func NewStore(cfg *config.RateLimitConfig) Store {
	switch cfg.Store {
	case "memory":
		fallthrough
	default:
		return NewMemoryStore()
	}
}

func ProvideStore(cfg *config.Config) Store {
	return NewStore(&cfg.RateLimit)
}

func ProvideGovernor(store Store) *Governor {
	return NewGovernor(store)
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideGovernor),
)
