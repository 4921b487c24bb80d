package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/modules/broker"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/executor"
	"github.com/xentristech/tradingpro-sub001/internal/modules/feed"
	"github.com/xentristech/tradingpro-sub001/internal/modules/health"
	"github.com/xentristech/tradingpro-sub001/internal/modules/journal"
	"github.com/xentristech/tradingpro-sub001/internal/modules/monitor"
	"github.com/xentristech/tradingpro-sub001/internal/modules/notify"
	"github.com/xentristech/tradingpro-sub001/internal/modules/pipeline"
	"github.com/xentristech/tradingpro-sub001/internal/modules/portfolio"
	"github.com/xentristech/tradingpro-sub001/internal/modules/postgres"
	"github.com/xentristech/tradingpro-sub001/internal/modules/risk"
	"github.com/xentristech/tradingpro-sub001/internal/modules/strategy"
	"github.com/xentristech/tradingpro-sub001/internal/modules/supervisor"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
	"github.com/xentristech/tradingpro-sub001/pkg/tracing"
)

const serviceName = "trading-engine"

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := logger.Init(cfg.Dev); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.SetServiceName(serviceName)

	if cfg.Tracing.Enabled {
		tracing.SetServiceName(serviceName)
		_, closeTracer, err := tracing.InitTracer(tracing.Config{
			Host: cfg.Tracing.Host,
			Port: cfg.Tracing.Port,
		})
		if err != nil {
			logger.Fatal("tracing: %v", err)
		}
		defer closeTracer()
	}

	logger.Info("[MAIN] starting %s mode=%s symbols=%v tf=%s", serviceName, cfg.Mode, cfg.Symbols, cfg.Timeframe)

	app := fx.New(
		fx.Provide(
			func() context.Context { return context.Background() },
			func() *config.Config { return cfg },
		),

		postgres.Module(),
		journal.Module(),
		notify.Module(),
		broker.Module(),
		portfolio.Module(),
		health.Module(),
		feed.Module(),
		strategy.Module(),
		risk.Module(),
		executor.Module(),
		monitor.Module(),
		pipeline.Module(),

		// супервизор строго последним: его OnStart стартует воркеры,
		// зарегистрированные Invoke-ами всех модулей выше
		supervisor.Module(),
	)

	app.Run()
}
