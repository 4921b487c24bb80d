package journal

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	"github.com/xentristech/tradingpro-sub001/pkg/db"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Module поднимает журнал. Драйвер выбирается конфигом: jsonl для
// одиночного процесса и replay, postgres когда нужен общий аудит.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, txm *db.PgTxManager, lc fx.Lifecycle) (*service.Writer, error) {
				var (
					store service.Store
					err   error
				)
				switch cfg.Journal.Driver {
				case "postgres":
					if txm == nil {
						return nil, fmt.Errorf("journal: postgres driver without db_dsn")
					}
					store, err = service.NewPGStore(ctx, txm)
				default:
					store, err = service.NewJSONLStore(cfg.Journal.Dir)
				}
				if err != nil {
					return nil, fmt.Errorf("journal init: %w", err)
				}

				w := service.NewWriter(store, cfg.Journal.RecordBars)
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						logger.Info("[journal] closing store")
						return w.Close()
					},
				})
				return w, nil
			},
		),
	)
}
