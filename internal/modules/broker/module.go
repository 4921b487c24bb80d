package broker

import (
	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Module отдаёт единственный service.Broker на весь процесс.
// paper и live различаются только здесь, дальше все работают с интерфейсом.
func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config) service.Broker {
				if cfg.Mode == config.ModeLive {
					logger.Info("[broker] live mode, bridge=%s account=%s", cfg.Bridge.BaseURL, cfg.Bridge.Account)
					return service.NewClient(
						cfg.Bridge.BaseURL,
						cfg.Bridge.APIKey,
						cfg.Bridge.APISecret,
						cfg.Bridge.Account,
						cfg.Bridge.Timeout,
					)
				}
				logger.Info("[broker] paper mode, start equity %.2f", cfg.Paper.StartEquity)
				return service.NewPaper(cfg.Symbols, cfg.Paper.StartEquity)
			},

			service.NewInstrumentCache,
		),
	)
}
