// Package logisync assembles the session security core: token issuance and
// rotation, device binding, request-rate governance and the authentication
// middleware that ties them together per request. The surrounding CRUD API
// mounts these pieces through the fx options below.
package logisync

import (
	"go.uber.org/fx"

	"github.com/Delfi2007/logisync-sub000/config"
	"github.com/Delfi2007/logisync-sub000/database"
	"github.com/Delfi2007/logisync-sub000/middleware/ratelimit"
	"github.com/Delfi2007/logisync-sub000/services/audit"
	"github.com/Delfi2007/logisync-sub000/services/logging"
	"github.com/Delfi2007/logisync-sub000/services/token"
)

// Core wires every in-memory service. Pass a nil config to New to load one
// from the environment.
var Core = fx.Options(
	logging.Module,
	audit.Module,
	token.Module,
	ratelimit.Module,
)

func New(cfg *config.Config) fx.Option {
	return fx.Options(
		config.NewProvider(cfg),
		Core,
	)
}

// Persistence adds the gorm-backed token store. Without it the core runs on
// in-memory state, which is authoritative for a single-process deployment.
var Persistence = fx.Options(
	database.Module,
	fx.Supply(database.WithModels(&token.RefreshTokenRow{}, &token.RevokedTokenRow{})),
)
