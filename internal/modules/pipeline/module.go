package pipeline

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	executorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	journalsvc "github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/pipeline/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	risksvc "github.com/xentristech/tradingpro-sub001/internal/modules/risk/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("pipeline",
		fx.Provide(
			func(risk *risksvc.Engine, book *portfoliosvc.Book, insts *brokersvc.InstrumentCache,
				exec *executorsvc.Executor, jrnl *journalsvc.Writer) *service.Pipeline {
				return service.New(risk, book, insts, exec, jrnl)
			},
		),

		// справочник инструментов: первая загрузка до старта, дальше фоновое обновление
		fx.Invoke(func(lc fx.Lifecycle, insts *brokersvc.InstrumentCache) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := insts.Load(ctx); err != nil {
						// без справочника торговать можно: размер посчитается
						// по дефолтным параметрам символа
						logger.Warn("[PIPE] instrument cache load: %v", err)
					}
					return nil
				},
			})
		}),

		fx.Invoke(func(sup *supsvc.Supervisor, pipe *service.Pipeline, signals chan models.Signal, insts *brokersvc.InstrumentCache) {
			sup.Register("pipeline", func(ctx context.Context) error {
				return pipe.Run(ctx, signals)
			})
			sup.Register("instrument_refresh", func(ctx context.Context) error {
				return insts.RefreshLoop(ctx, time.Hour)
			})
		}),
	)
}
