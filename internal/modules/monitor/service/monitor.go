package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/helper"
	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Tap — свечи для монитора, ответвление от хаба.
type Tap chan models.Candle

type ServiceNotifier interface {
	Sendf(format string, args ...any)
}

type Journal interface {
	Position(ctx context.Context, p models.Position) error
	Breaker(ctx context.Context, note string) error
}

// OrderGate — путь монитора к ордерам. Реализуется executor-ом; напрямую
// к брокеру монитор не ходит, путь записи ордеров один.
type OrderGate interface {
	ModifyStops(ctx context.Context, symbol string, stop, target float64) error
	CloseSymbol(ctx context.Context, symbol string, size float64, force bool) (brokersvc.OrderAck, error)
}

type Instruments interface {
	Instrument(symbol string) models.Instrument
}

type Settings struct {
	Trailing       models.TrailingConfig
	MaxDrawdownPct float64
	EquityEvery    time.Duration
	RefreshEvery   time.Duration
}

// Monitor владеет жизнью открытых позиций: MFE, трейлинг, безубыток,
// тайм-стоп, принудительная ликвидация. Единственная точка аварийного
// закрытия — ForceCloseAll; breaker, команда оператора и fatal-обработчик
// просят один и тот же переход.
type Monitor struct {
	st     Settings
	book   *portfoliosvc.Book
	broker brokersvc.Broker
	orders OrderGate
	insts  Instruments
	jrnl   Journal
	n      ServiceNotifier
}

func New(st Settings, book *portfoliosvc.Book, broker brokersvc.Broker,
	orders OrderGate, insts Instruments, jrnl Journal, n ServiceNotifier) *Monitor {
	if st.EquityEvery <= 0 {
		st.EquityEvery = 15 * time.Second
	}
	if st.RefreshEvery <= 0 {
		st.RefreshEvery = 30 * time.Second
	}
	return &Monitor{st: st, book: book, broker: broker, orders: orders, insts: insts, jrnl: jrnl, n: n}
}

// Run — основной цикл: свечи открытых символов двигают MFE и решения
// сопровождения.
func (m *Monitor) Run(ctx context.Context, tap Tap) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-tap:
			if !ok {
				return nil
			}
			m.OnCandle(ctx, c)
		}
	}
}

func (m *Monitor) OnCandle(ctx context.Context, c models.Candle) {
	pos, ok := m.book.Position(c.Symbol)
	if !ok || pos.State == models.PosClosing || pos.State == models.PosClosed {
		return
	}

	// MFE и счётчик баров под замком книги
	m.book.UpdatePosition(c.Symbol, func(p *models.Position) {
		if p.Side == models.SideBuy {
			if c.High > p.MFE {
				p.MFE = c.High
			}
		} else {
			if p.MFE == 0 || c.Low < p.MFE {
				p.MFE = c.Low
			}
		}
		p.BarsHeld++
	})

	pos, _ = m.book.Position(c.Symbol)
	dec := decideTrail(pos, m.st.Trailing)

	switch {
	case dec.close:
		m.closeOne(ctx, pos, dec.reason, false)

	case dec.partialFrac > 0:
		m.partialClose(ctx, pos, dec.partialFrac)

	case dec.moveStop:
		m.moveStop(ctx, pos, dec)
	}
}

func (m *Monitor) moveStop(ctx context.Context, pos models.Position, dec trailDecision) {
	newStop := dec.newStop
	if m.insts != nil {
		tick := m.insts.Instrument(pos.Symbol).TickSize
		// округление в сторону прибыли, чтобы не ослабить стоп тиком
		if pos.Side == models.SideBuy {
			newStop = helper.RoundUpToTick(newStop, tick)
		} else {
			newStop = helper.RoundDownToTick(newStop, tick)
		}
	}

	if err := m.orders.ModifyStops(ctx, pos.Symbol, newStop, pos.Target); err != nil {
		logger.Warn("[MON] %s move stop -> %.5f failed: %v", pos.Symbol, newStop, err)
		return
	}

	m.book.UpdatePosition(pos.Symbol, func(p *models.Position) {
		p.Stop = newStop
		p.State = dec.newState
		if dec.setBE {
			p.MovedToBE = true
		}
	})
	if p, ok := m.book.Position(pos.Symbol); ok {
		m.journalPosition(ctx, p)
	}

	logger.Info("[MON] %s stop -> %.5f (%s, state=%s)", pos.Symbol, newStop, dec.reason, dec.newState)
	if m.n != nil {
		m.n.Sendf("🛡 [%s] SL обновлён -> %.5f | %s", pos.Symbol, newStop, dec.reason)
	}
}

func (m *Monitor) partialClose(ctx context.Context, pos models.Position, frac float64) {
	closeSize := pos.Size * frac
	ack, err := m.orders.CloseSymbol(ctx, pos.Symbol, closeSize, false)
	if err != nil {
		logger.Warn("[MON] %s partial close failed: %v", pos.Symbol, err)
		return
	}

	m.book.UpdatePosition(pos.Symbol, func(p *models.Position) {
		p.TookPartial = true
		if p.Size > closeSize {
			p.Size -= closeSize
		}
	})
	if p, ok := m.book.Position(pos.Symbol); ok {
		m.journalPosition(ctx, p)
	}

	if m.n != nil {
		m.n.Sendf("💰 [%s] Частичная фиксация %.4f @ %.5f", pos.Symbol, closeSize, ack.FillPrice)
	}
}

// closeOne проводит позицию через CLOSING -> CLOSED. force=true игнорирует
// паузу торговли: аварийный выход из риска важнее любых пауз.
func (m *Monitor) closeOne(ctx context.Context, pos models.Position, reason string, force bool) {
	prev := pos.State
	m.book.UpdatePosition(pos.Symbol, func(p *models.Position) {
		p.State = models.PosClosing
	})
	if p, ok := m.book.Position(pos.Symbol); ok {
		m.journalPosition(ctx, p)
	}

	ack, err := m.orders.CloseSymbol(ctx, pos.Symbol, pos.Size, force)
	if err != nil {
		logger.Error("[MON] %s close (%s) failed: %v", pos.Symbol, reason, err)
		if m.n != nil {
			m.n.Sendf("🆘 [%s] Закрытие (%s) не удалось: %v", pos.Symbol, reason, err)
		}
		// откат состояния: CLOSING пропускается в OnCandle, повторную
		// попытку даст следующая свеча или refresh
		m.book.UpdatePosition(pos.Symbol, func(p *models.Position) {
			p.State = prev
		})
		return
	}

	closed, ok := m.book.ClosePosition(pos.Symbol, reason, ack.FillPrice, time.Now())
	if ok {
		m.journalPosition(ctx, closed)
	}
	metrics.PositionsOpen.Set(float64(m.book.Snapshot().OpenCount()))

	logger.Info("[MON] %s closed @ %.5f (%s)", pos.Symbol, ack.FillPrice, reason)
	if m.n != nil {
		m.n.Sendf("🚪 [%s] Позиция закрыта @ %.5f | %s", pos.Symbol, ack.FillPrice, reason)
	}
}

// ForceCloseAll — единая точка принудительной ликвидации. Возвращает
// число позиций, по которым запрошено закрытие.
func (m *Monitor) ForceCloseAll(ctx context.Context, reason string) int {
	symbols := m.book.OpenSymbols()
	if len(symbols) == 0 {
		return 0
	}

	logger.Warn("[MON] force close all: %d positions, reason=%s", len(symbols), reason)
	if m.n != nil {
		m.n.Sendf("🚨 Принудительное закрытие %d позиций: %s", len(symbols), reason)
	}

	n := 0
	for _, sym := range symbols {
		pos, ok := m.book.Position(sym)
		if !ok || pos.State == models.PosClosed {
			continue
		}
		m.closeOne(ctx, pos, reason, true)
		n++
	}
	return n
}

// ForceClose закрывает одну позицию по команде оператора.
func (m *Monitor) ForceClose(ctx context.Context, symbol, reason string) error {
	pos, ok := m.book.Position(symbol)
	if !ok {
		return fmt.Errorf("monitor: no open position on %s", symbol)
	}
	m.closeOne(ctx, pos, reason, true)
	return nil
}

// EquityLoop опрашивает счёт и взводит circuit breaker на просадке.
// Срабатывание ликвидирует всё и блокирует новые сигналы до ручного
// сброса оператором.
func (m *Monitor) EquityLoop(ctx context.Context) error {
	t := time.NewTicker(m.st.EquityEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			callCtx, cancel := context.WithTimeout(ctx, m.st.EquityEvery)
			acc, err := m.broker.Account(callCtx)
			cancel()
			if err != nil {
				logger.Warn("[MON] account poll: %v", err)
				continue
			}

			if tripped := m.book.UpdateEquity(acc.Equity, m.st.MaxDrawdownPct); tripped {
				metrics.BreakerActive.Set(1)
				snap := m.book.Snapshot()
				note := fmt.Sprintf("trip: drawdown %.2f%% >= %.2f%%, equity %.2f, hwm %.2f",
					snap.Drawdown, m.st.MaxDrawdownPct, snap.Equity, snap.HighWater)
				if m.jrnl != nil {
					_ = m.jrnl.Breaker(ctx, note)
				}
				logger.Error("[MON] circuit breaker tripped: %s", note)
				if m.n != nil {
					m.n.Sendf("⛔️ CIRCUIT BREAKER: просадка %.2f%%. Все позиции закрываются, новые сигналы заблокированы до /reset.", snap.Drawdown)
				}
				m.ForceCloseAll(ctx, models.CloseBreaker)
				continue
			}

			// breaker взведён, а позиции ещё живы: закрытие не прошло
			// с первого раза, добиваем на каждом тике
			if snap := m.book.Snapshot(); snap.BreakerOn && snap.OpenCount() > 0 {
				logger.Warn("[MON] breaker active, %d positions still open", snap.OpenCount())
				m.ForceCloseAll(ctx, models.CloseBreaker)
			}
		}
	}
}

// RefreshLoop сверяет книгу с истиной брокера: позиции, закрытые на его
// стороне (стоп/тейк в терминале), архивируются как закрытые извне.
func (m *Monitor) RefreshLoop(ctx context.Context) error {
	t := time.NewTicker(m.st.RefreshEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := m.refreshOnce(ctx); err != nil {
				logger.Warn("[MON] refresh positions: %v", err)
			}
		}
	}
}

func (m *Monitor) refreshOnce(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, m.st.RefreshEvery)
	defer cancel()

	brokerPos, err := m.broker.Positions(callCtx)
	if err != nil {
		return err
	}

	alive := map[string]brokersvc.BrokerPosition{}
	for _, bp := range brokerPos {
		alive[bp.Symbol] = bp
	}

	for _, sym := range m.book.OpenSymbols() {
		bp, ok := alive[sym]
		if !ok {
			// брокер позицию больше не видит: стоп или тейк исполнился
			pos, exists := m.book.Position(sym)
			if !exists {
				continue
			}
			reason := closeReasonFromLevels(pos)
			closed, archived := m.book.ClosePosition(sym, reason, pos.Stop, time.Now())
			if archived {
				m.journalPosition(ctx, closed)
				if m.n != nil {
					m.n.Sendf("🚪 [%s] Позиция закрыта на стороне брокера (%s)", sym, reason)
				}
			}
			continue
		}
		// размер мог уменьшиться (частичное исполнение на стороне брокера)
		if bp.Size > 0 {
			m.book.UpdatePosition(sym, func(p *models.Position) {
				if bp.Size < p.Size {
					p.Size = bp.Size
				}
			})
		}
	}
	metrics.PositionsOpen.Set(float64(m.book.Snapshot().OpenCount()))
	return nil
}

// closeReasonFromLevels — по последнему MFE не восстановить точную причину,
// но если цена дотягивалась до тейка, вероятнее он.
func closeReasonFromLevels(p models.Position) string {
	if p.Target > 0 {
		if p.Side == models.SideBuy && p.MFE >= p.Target {
			return models.CloseTargetHit
		}
		if p.Side == models.SideSell && p.MFE > 0 && p.MFE <= p.Target {
			return models.CloseTargetHit
		}
	}
	return models.CloseExternal
}

func (m *Monitor) journalPosition(ctx context.Context, p models.Position) {
	if m.jrnl == nil {
		return
	}
	if err := m.jrnl.Position(ctx, p); err != nil {
		logger.Warn("[MON] journal position %s: %v", p.Symbol, err)
	}
}
