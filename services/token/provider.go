package token

import (
	"github.com/Delfi2007/logisync-sub000/config"
	"github.com/Delfi2007/logisync-sub000/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionalDB struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func ProvideStore(cfg *config.Config, logger *logging.Service, optDB OptionalDB) Store {
	if optDB.DB != nil {
		logger.Info("using persistent token store")
		return NewGormStore(optDB.DB, logger)
	}

	logger.Info("using in-memory token store")
	return NewMemoryStore()
}

func ProvideService(cfg *config.Config, store Store, logger *logging.Service) *Service {
	return NewService(cfg, store, logger)
}

func StartSweepWorkerIfEnabled(cfg *config.Config, svc *Service, logger *logging.Service) {
	if cfg.Revocation.SweepInterval <= 0 {
		logger.Debug("token sweep worker disabled")
		return
	}

	logger.Debug("starting token sweep worker",
		zap.Duration("interval", cfg.Revocation.SweepInterval))
	svc.StartSweepWorker(cfg.Revocation.SweepInterval)
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideService),
	fx.Invoke(StartSweepWorkerIfEnabled),
)
