package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	"github.com/xentristech/tradingpro-sub001/internal/modules/health/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
)

func NewMux(cfg *config.Config, state *service.State, book *portfoliosvc.Book, sup *supsvc.Supervisor) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: граф поднят и фид отдаёт данные
		if !state.Ready() || !state.FeedConnected() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// короткий JSON для отладки
		resp := map[string]any{
			"ready":         state.Ready(),
			"feedConnected": state.FeedConnected(),
			"uptimeSec":     int64(state.Uptime().Seconds()),
			"lastBarUnix": func() int64 {
				t := state.LastBar()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/statez", func(w http.ResponseWriter, r *http.Request) {
		// полный снимок движка: портфель, воркеры, последние сигналы.
		// Всё из снапшотов, торговый путь не трогаем.
		snap := models.EngineSnapshot{
			Mode:      cfg.Mode,
			Paused:    sup.Paused(),
			Portfolio: book.Snapshot(),
			Workers:   sup.Health(),
			Signals:   state.RecentSignals(),
			TakenAt:   time.Now(),
		}
		writeJSON(w, snap)
	})

	mux.Handle("/metrics", metrics.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(b)
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, state *service.State, mux *http.ServeMux) {
	addr := fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.AdminPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
