package audit

import (
	"context"

	"github.com/Delfi2007/logisync-sub000/config"
	"github.com/Delfi2007/logisync-sub000/services/logging"
	"go.uber.org/fx"
)

type OptionalSink struct {
	fx.In
	Sink Sink `optional:"true"`
}

func ProvideDispatcher(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service, optSink OptionalSink) *Dispatcher {
	sink := optSink.Sink
	if sink == nil {
		sink = NewZapSink(logger)
	}

	dispatcher := NewDispatcher(cfg.Audit, sink)
	if dispatcher == nil {
		logger.Debug("audit dispatcher disabled in configuration")
		return nil
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			dispatcher.Close()
			return nil
		},
	})

	return dispatcher
}

var Module = fx.Options(
	fx.Provide(ProvideDispatcher),
)
