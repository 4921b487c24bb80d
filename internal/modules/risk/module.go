package risk

import (
	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/risk/service"
)

func Module() fx.Option {
	return fx.Module("risk",
		fx.Provide(
			func(cfg *config.Config) *service.Engine {
				return service.NewEngine(service.Settings{
					RiskPct:          cfg.Risk.RiskPct,
					MaxRiskPct:       cfg.Risk.MaxRiskPct,
					MaxOpenPositions: cfg.Risk.MaxOpenPositions,
					PortfolioRiskPct: cfg.Risk.PortfolioRiskPct,
					RewardRR:         cfg.Risk.RewardRR,
					StopATRMult:      cfg.Risk.StopATRMult,
				})
			},
		),
	)
}
