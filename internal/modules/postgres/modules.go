package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/pkg/db"
)

// Module регистрирует *db.PgTxManager как fx-провайдер. Без db_dsn отдаёт
// nil: jsonl-журналу база не нужна, заставлять поднимать postgres ради
// paper-прогона неправильно.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, lc fx.Lifecycle) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					return nil, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
		),
	)
}
