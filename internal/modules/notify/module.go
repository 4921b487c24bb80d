package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/internal/modules/config"
	executorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	monitorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/monitor/service"
	"github.com/xentristech/tradingpro-sub001/internal/modules/notify/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	supsvc "github.com/xentristech/tradingpro-sub001/internal/modules/supervisor/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// engineControls отдаёт телеграм-командам ровно те рычаги, что есть у
// оператора: статус, позиции, аварийное закрытие, сброс breaker, пауза.
type engineControls struct {
	mode string
	book *portfoliosvc.Book
	mon  *monitorsvc.Monitor
	exec *executorsvc.Executor
	sup  *supsvc.Supervisor
}

func (c *engineControls) StatusText() string {
	snap := c.book.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "⚙️ Движок [%s]\n", c.mode)
	fmt.Fprintf(&b, "Equity: %.2f | HWM: %.2f | DD: %.2f%%\n", snap.Equity, snap.HighWater, snap.Drawdown)
	fmt.Fprintf(&b, "Позиций: %d | Риск открытых: %.2f\n", snap.OpenCount(), snap.OpenRisk)
	if snap.BreakerOn {
		fmt.Fprintf(&b, "⛔️ BREAKER ВЗВЕДЁН с %s\n", snap.BreakerAt.Format(time.RFC3339))
	}
	if c.sup.Paused() {
		b.WriteString("⏸ Торговля на паузе\n")
	}
	if c.sup.BrokerDown() {
		b.WriteString("🔌 Связь с брокером потеряна, ордера на паузе\n")
	}

	b.WriteString("\nВоркеры:\n")
	for _, w := range c.sup.Health() {
		fmt.Fprintf(&b, "- %s: %s", w.Name, w.State)
		if w.Restarts > 0 {
			fmt.Fprintf(&b, " (рестартов: %d)", w.Restarts)
		}
		if w.LastError != "" {
			fmt.Fprintf(&b, " err=%s", w.LastError)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (c *engineControls) PositionsText() string {
	snap := c.book.Snapshot()
	if len(snap.Positions) == 0 {
		return "📭 Открытых позиций нет"
	}

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range snap.Positions {
		fmt.Fprintf(&b, "- %s [%s] %.4f @ %.5f SL=%.5f TP=%.5f MFE=%.2fR %s (%d баров)\n",
			p.Symbol, p.Side, p.Size, p.Entry, p.Stop, p.Target, p.MFER(), p.State, p.BarsHeld)
	}
	return b.String()
}

func (c *engineControls) CloseAll(ctx context.Context, reason string) int {
	if reason == "" {
		reason = models.CloseOperator
	}
	return c.mon.ForceCloseAll(ctx, reason)
}

func (c *engineControls) CancelOrder(ctx context.Context, clientID string) error {
	return c.exec.Cancel(ctx, clientID)
}

func (c *engineControls) ResetBreaker() bool { return c.book.ResetBreaker() }
func (c *engineControls) Pause()             { c.sup.Pause() }
func (c *engineControls) Resume()            { c.sup.Resume() }
func (c *engineControls) Paused() bool       { return c.sup.Paused() }

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) service.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Warn("[NOTIFY] telegram не сконфигурирован, уведомления в stdout")
					return service.NewStdout()
				}
				tg, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Error("[NOTIFY] telegram init: %v, падаю в stdout", err)
					return service.NewStdout()
				}
				return tg
			},
		),

		// команды подключаются после сборки графа: нотифайер нужен модулям
		// раньше, чем существуют монитор и супервизор
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, n service.Notifier,
			book *portfoliosvc.Book, mon *monitorsvc.Monitor,
			exec *executorsvc.Executor, sup *supsvc.Supervisor) {

			tg, ok := n.(*service.Telegram)
			if !ok {
				return
			}
			tg.AttachControls(&engineControls{
				mode: cfg.Mode,
				book: book,
				mon:  mon,
				exec: exec,
				sup:  sup,
			})

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return tg.Start(context.Background())
				},
				OnStop: func(ctx context.Context) error {
					tg.Stop()
					return nil
				},
			})
		}),
	)
}
