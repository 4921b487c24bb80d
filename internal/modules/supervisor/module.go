package supervisor

import (
	"context"

	"go.uber.org/fx"

	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	notifysvc "github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
)

// Module поднимает супервизор ПОСЛЕДНИМ в списке модулей: к моменту его
// OnStart все воркеры уже зарегистрированы через Invoke своих модулей.
func Module() fx.Option {
	return fx.Module("supervisor",
		fx.Provide(
			func(cfg *config.Config, n notifysvc.Notifier, b brokersvc.Broker) *service.Supervisor {
				return service.New(service.Settings{
					RestartBase:  cfg.Supervisor.RestartBase,
					RestartMax:   cfg.Supervisor.RestartMax,
					MaxRestarts:  cfg.Supervisor.MaxRestarts,
					Window:       cfg.Supervisor.Window,
					PingInterval: cfg.Supervisor.PingInterval,
				}, n, b)
			},
		),

		fx.Invoke(func(lc fx.Lifecycle, sup *service.Supervisor) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// контекст OnStart живёт только на время старта,
					// воркерам нужен свой
					sup.Start(context.Background())
					return nil
				},
				OnStop: func(ctx context.Context) error {
					sup.Stop()
					return nil
				},
			})
		}),
	)
}
