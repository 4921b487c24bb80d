package portfolio

import (
	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
)

func Module() fx.Option {
	return fx.Module("portfolio",
		fx.Provide(
			func(cfg *config.Config) *service.Book {
				start := cfg.Paper.StartEquity
				if cfg.Mode == config.ModeLive {
					// реальный equity подтянет первый опрос счёта,
					// до него торговые решения не принимаются
					start = 0
				}
				return service.NewBook(start)
			},
		),
	)
}
