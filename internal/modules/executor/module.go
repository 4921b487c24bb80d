package executor

import (
	"context"

	"go.uber.org/fx"

	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	journalsvc "github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	notifysvc "github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(
			func(cfg *config.Config, b brokersvc.Broker, book *portfoliosvc.Book,
				jrnl *journalsvc.Writer, n notifysvc.Notifier, sup *supsvc.Supervisor) *service.Executor {
				return service.New(service.Settings{
					RetryBase:   cfg.Executor.RetryBase,
					RetryMax:    cfg.Executor.RetryMax,
					MaxAttempts: cfg.Executor.MaxAttempts,
					AckTimeout:  cfg.Executor.AckTimeout,
					Cooldown:    cfg.Risk.CooldownPerSym,
				}, b, book, jrnl, n, sup)
			},
		),

		// после рестарта память процесса не авторитетна: первым делом
		// сверяемся с брокером
		fx.Invoke(func(lc fx.Lifecycle, ex *service.Executor) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					logger.Info("[EXEC] reconciling open orders against broker state")
					ex.ReconcileOpenOrders(ctx)
					return nil
				},
			})
		}),
	)
}
