package monitor

import (
	"context"

	"go.uber.org/fx"

	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	executorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	journalsvc "github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/monitor/service"
	notifysvc "github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
)

func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			func(cfg *config.Config) service.Tap {
				size := cfg.Feed.QueueSize
				if size <= 0 {
					size = 4096
				}
				return make(service.Tap, size)
			},

			func(cfg *config.Config, book *portfoliosvc.Book, b brokersvc.Broker,
				cache *brokersvc.InstrumentCache, ex *executorsvc.Executor,
				jrnl *journalsvc.Writer, n notifysvc.Notifier) *service.Monitor {
				return service.New(service.Settings{
					Trailing:       cfg.Trailing,
					MaxDrawdownPct: cfg.Risk.MaxDrawdownPct,
					EquityEvery:    cfg.Supervisor.PingInterval,
				}, book, b, ex, cache, jrnl, n)
			},
		),

		fx.Invoke(func(sup *supsvc.Supervisor, mon *service.Monitor, tap service.Tap) {
			sup.AttachLiquidator(mon)
			sup.Register("monitor", func(ctx context.Context) error {
				return mon.Run(ctx, tap)
			})
			sup.Register("equity_breaker", mon.EquityLoop)
			sup.Register("reconciler", mon.RefreshLoop)
		}),
	)
}
