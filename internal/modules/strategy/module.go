package strategy

import (
	"context"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	feedsvc "github.com/xentristech/tradingpro-sub001/internal/modules/feed/service"
	healthsvc "github.com/xentristech/tradingpro-sub001/internal/modules/health/service"
	journalsvc "github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	monitorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/monitor/service"
	notifysvc "github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/strategy/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

func newSignalsChan(cfg *config.Config) chan models.Signal {
	size := cfg.Feed.QueueSize
	if size <= 0 {
		size = 4096
	}
	return make(chan models.Signal, size)
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			newSignalsChan, // chan models.Signal

			func(cfg *config.Config) service.Engine {
				return service.NewScored(service.ScoredConfig{
					EMAFast:          cfg.Strategy.EMAFast,
					EMASlow:          cfg.Strategy.EMASlow,
					MACDFast:         cfg.Strategy.MACDFast,
					MACDSlow:         cfg.Strategy.MACDSlow,
					MACDSignal:       cfg.Strategy.MACDSignal,
					RSIPeriod:        cfg.Strategy.RSIPeriod,
					ATRPeriod:        cfg.Strategy.ATRPeriod,
					ADXPeriod:        cfg.Strategy.ADXPeriod,
					BuyScore:         cfg.Strategy.BuyScore,
					SellScore:        cfg.Strategy.SellScore,
					WeightTrend:      cfg.Strategy.WeightTrend,
					WeightMomentum:   cfg.Strategy.WeightMomentum,
					WeightOscillator: cfg.Strategy.WeightOscillator,
					WeightStrength:   cfg.Strategy.WeightStrength,
				})
			},

			func(cfg *config.Config) *service.Advisor {
				if !cfg.AI.Enabled {
					return nil
				}
				return service.NewAdvisor(cfg.AI.URL, cfg.AI.Timeout, cfg.AI.Weight)
			},

			func(cfg *config.Config, engine service.Engine, advisor *service.Advisor,
				n notifysvc.Notifier, jrnl *journalsvc.Writer, state *healthsvc.State,
				out chan models.Signal, tap monitorsvc.Tap) *service.Hub {
				return service.NewHub(service.HubConfig{
					Symbols:       cfg.Symbols,
					BuyScore:      cfg.Strategy.BuyScore,
					SellScore:     cfg.Strategy.SellScore,
					ProgressEvery: cfg.Strategy.WarmupProgressEvery,
					DropPolicy:    cfg.Feed.DropPolicy,
				}, engine, advisor, n, jrnl, state, out, tap)
			},
		),

		fx.Invoke(func(sup *supsvc.Supervisor, hub *service.Hub, stream feedsvc.Stream) {
			sup.Register("strategy_hub", func(ctx context.Context) error {
				logger.Info("[STRAT] hub loop started")
				defer logger.Info("[STRAT] hub loop stopped")
				for {
					select {
					case <-ctx.Done():
						return nil
					case c, ok := <-stream:
						if !ok {
							return nil
						}
						hub.OnCandle(ctx, c)
					}
				}
			})
		}),
	)
}
