package feed

import (
	"context"

	"go.uber.org/fx"

	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/feed/service"
	healthsvc "github.com/xentristech/tradingpro-sub001/internal/modules/health/service"
	notifysvc "github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			func(cfg *config.Config) service.Stream {
				size := cfg.Feed.QueueSize
				if size <= 0 {
					size = 4096
				}
				return make(service.Stream, size)
			},

			func(cfg *config.Config, n notifysvc.Notifier, state *healthsvc.State, b brokersvc.Broker) *service.Client {
				// в paper-режиме каждая свеча двигает отметку цены брокера
				var marker service.PriceMarker
				if m, ok := b.(service.PriceMarker); ok {
					marker = m
				}
				return service.NewClient(service.Config{
					WSURL:     cfg.Bridge.WSURL,
					Symbols:   cfg.Symbols,
					Timeframe: cfg.Timeframe,
				}, n, state, marker)
			},
		),

		fx.Invoke(func(sup *supsvc.Supervisor, client *service.Client, out service.Stream) {
			sup.Register("feed", func(ctx context.Context) error {
				return client.Run(ctx, out)
			})
		}),
	)
}
