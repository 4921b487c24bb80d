package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	"github.com/xentristech/tradingpro-sub001/pkg/backoff"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

var (
	// ErrDuplicateOrder — по символу уже есть живой ордер или позиция.
	// Это штатный исход, а не сбой: инвариант "одна позиция на символ".
	ErrDuplicateOrder = errors.New("executor: duplicate order for symbol")
	ErrCoolingOff     = errors.New("executor: symbol is cooling off")
	ErrOpsPaused      = errors.New("executor: order ops paused")
)

type Gate interface {
	OrderOpsAllowed() bool
}

type ServiceNotifier interface {
	Sendf(format string, args ...any)
}

type Journal interface {
	Order(ctx context.Context, o models.Order) error
	Position(ctx context.Context, p models.Position) error
}

type Settings struct {
	RetryBase   time.Duration
	RetryMax    time.Duration
	MaxAttempts int
	AckTimeout  time.Duration
	Cooldown    time.Duration
}

// Executor — единственный писатель ордеров. Всё что трогает брокера
// (вход, перестановка стопов, закрытие) идёт через него; монитор и
// пайплайн к брокеру напрямую не ходят.
type Executor struct {
	st     Settings
	broker brokersvc.Broker
	book   *portfoliosvc.Book
	jrnl   Journal
	n      ServiceNotifier
	gate   Gate

	mu        sync.Mutex
	ambiguous map[string]models.Order // clientID -> отправлен, ack не увидели
}

func New(st Settings, broker brokersvc.Broker, book *portfoliosvc.Book, jrnl Journal, n ServiceNotifier, gate Gate) *Executor {
	if st.MaxAttempts <= 0 {
		st.MaxAttempts = 5
	}
	if st.RetryBase <= 0 {
		st.RetryBase = time.Second
	}
	if st.RetryMax <= 0 {
		st.RetryMax = 30 * time.Second
	}
	if st.AckTimeout <= 0 {
		st.AckTimeout = 10 * time.Second
	}
	if st.Cooldown <= 0 {
		st.Cooldown = time.Minute
	}
	return &Executor{
		st:        st,
		broker:    broker,
		book:      book,
		jrnl:      jrnl,
		n:         n,
		gate:      gate,
		ambiguous: map[string]models.Order{},
	}
}

// Submit превращает одобренное решение в рыночный ордер. Идемпотентность
// двухслойная: pending-замок книги не пускает второй сабмит по символу,
// а clientID не даёт брокеру исполнить повтор после обрыва.
// Исчерпанные ретраи — жёсткая ошибка наверх, супервизору.
func (e *Executor) Submit(ctx context.Context, d models.RiskDecision) (models.Order, error) {
	if !d.Approved {
		return models.Order{}, fmt.Errorf("executor: submit of a rejected decision %s", d.Symbol)
	}
	if e.gate != nil && !e.gate.OrderOpsAllowed() {
		return models.Order{}, ErrOpsPaused
	}

	var out models.Order
	err := e.book.WithSymbol(d.Symbol, func() error {
		now := time.Now()
		if e.book.OnCooldown(d.Symbol, now) {
			return ErrCoolingOff
		}
		if !e.book.MarkPending(d.Symbol) {
			return ErrDuplicateOrder
		}

		order := models.Order{
			ClientID:  uuid.NewString(),
			Symbol:    d.Symbol,
			Side:      d.Side,
			Size:      d.Size,
			Stop:      d.Stop,
			Target:    d.Target,
			Status:    models.OrderPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		e.journalOrder(ctx, order)

		final, err := e.placeWithRetry(ctx, order, d)
		out = final
		return err
	})
	return out, err
}

func (e *Executor) placeWithRetry(ctx context.Context, order models.Order, d models.RiskDecision) (models.Order, error) {
	bo := backoff.Backoff{Base: e.st.RetryBase, Max: e.st.RetryMax, Factor: 2, Jitter: 0.2}
	req := brokersvc.OrderRequest{
		ClientID: order.ClientID,
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Size:     order.Size,
		Stop:     order.Stop,
		Target:   order.Target,
		Comment:  fmt.Sprintf("risk=%.2f", d.RiskAmount),
	}

	sent := false
	for attempt := 1; attempt <= e.st.MaxAttempts; attempt++ {
		order.Attempts = attempt

		callCtx, cancel := context.WithTimeout(ctx, e.st.AckTimeout)
		ack, err := e.broker.PlaceMarket(callCtx, req)
		cancel()

		if err == nil {
			return e.resolveAck(ctx, order, d, ack)
		}

		// пропускаемые условия рынка: не ошибка, символ просто откладывается
		if errors.Is(err, brokersvc.ErrSymbolNotFound) || errors.Is(err, brokersvc.ErrMarketClosed) {
			logger.Info("[EXEC] %s skippable: %v", order.Symbol, err)
			return e.finishCancelled(ctx, order, err.Error()), nil
		}

		if brokersvc.IsRejection(err) {
			// брокер видел запрос и явно отказал
			logger.Warn("[EXEC] %s broker rejection (attempt %d/%d): %v",
				order.Symbol, attempt, e.st.MaxAttempts, err)
			if attempt == e.st.MaxAttempts {
				return e.finishRejected(ctx, order, err.Error()), nil
			}
		} else {
			// транспорт: отправка могла дойти, выясняем судьбу до повтора
			sent = true
			order.Status = models.OrderSubmitted
			logger.Warn("[EXEC] %s ambiguous send (attempt %d/%d): %v",
				order.Symbol, attempt, e.st.MaxAttempts, err)

			if resolved, ok := e.tryReconcileOnce(ctx, order, d); ok {
				return resolved, nil
			}
		}

		if attempt < e.st.MaxAttempts {
			metrics.OrderRetries.Inc()
			if err := bo.Sleep(ctx, attempt); err != nil {
				break
			}
		}
	}

	// ретраи кончились. Если хоть одна отправка ушла в неизвестность,
	// pending остаётся: ReconcileOpenOrders дорешает судьбу по истине
	// брокера, снимать замок до этого нельзя.
	e.book.SetCooldown(order.Symbol, time.Now().Add(e.st.Cooldown))
	if sent {
		e.rememberAmbiguous(order)
		e.journalOrder(ctx, order)
	} else {
		e.book.ClearPending(order.Symbol)
	}
	if e.n != nil {
		e.n.Sendf("🆘 [%s] Ордер не подтверждён после %d попыток, символ в кулдауне", order.Symbol, e.st.MaxAttempts)
	}
	return order, fmt.Errorf("executor: %s submit failed after %d attempts", order.Symbol, e.st.MaxAttempts)
}

// tryReconcileOnce спрашивает брокера, дошла ли неоднозначная отправка.
// ok=false значит ордера на той стороне нет и повтор с тем же clientID безопасен.
func (e *Executor) tryReconcileOnce(ctx context.Context, order models.Order, d models.RiskDecision) (models.Order, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.st.AckTimeout)
	defer cancel()

	ack, err := e.broker.OrderByClientID(callCtx, order.ClientID)
	if err != nil {
		if errors.Is(err, brokersvc.ErrOrderNotFound) {
			return models.Order{}, false
		}
		// брокер недоступен: неизвестность сохраняется, решит общий reconcile
		return models.Order{}, false
	}
	resolved, err := e.resolveAck(ctx, order, d, ack)
	if err != nil {
		return models.Order{}, false
	}
	return resolved, true
}

func (e *Executor) resolveAck(ctx context.Context, order models.Order, d models.RiskDecision, ack brokersvc.OrderAck) (models.Order, error) {
	order.BrokerID = ack.BrokerID
	order.UpdatedAt = time.Now()

	switch ack.Status {
	case brokersvc.AckFilled:
		order.Status = models.OrderFilled
		order.FillPrice = ack.FillPrice
		e.forgetAmbiguous(order.ClientID)
		e.journalOrder(ctx, order)
		metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Status)).Inc()

		pos := positionFromFill(order, d)
		if err := e.book.OpenPosition(pos); err != nil {
			// замок по символу держим мы, сюда попадать не должно
			return order, fmt.Errorf("executor: record position %s: %w", order.Symbol, err)
		}
		metrics.PositionsOpen.Set(float64(e.book.Snapshot().OpenCount()))
		e.journalPosition(ctx, pos)
		if e.n != nil {
			e.n.Sendf("📈 [%s] %s %.4f @ %.5f | SL %.5f | TP %.5f | риск $%.2f",
				pos.Symbol, pos.Side, pos.Size, pos.Entry, pos.Stop, pos.Target, pos.RiskAmount)
		}
		return order, nil

	case brokersvc.AckRejected:
		return e.finishRejected(ctx, order, ack.Reason), nil

	default:
		// ack "pending": брокер думает. Замок остаётся, судьбу решит reconcile.
		order.Status = models.OrderSubmitted
		e.rememberAmbiguous(order)
		e.journalOrder(ctx, order)
		return order, nil
	}
}

func (e *Executor) finishRejected(ctx context.Context, order models.Order, reason string) models.Order {
	order.Status = models.OrderRejected
	order.Reason = reason
	order.UpdatedAt = time.Now()

	e.forgetAmbiguous(order.ClientID)
	e.book.ClearPending(order.Symbol)
	e.book.SetCooldown(order.Symbol, time.Now().Add(e.st.Cooldown))
	e.journalOrder(ctx, order)
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Status)).Inc()
	if e.n != nil {
		e.n.Sendf("⛔️ [%s] Ордер отклонён брокером: %s", order.Symbol, reason)
	}
	return order
}

func (e *Executor) finishCancelled(ctx context.Context, order models.Order, reason string) models.Order {
	order.Status = models.OrderCancelled
	order.Reason = reason
	order.UpdatedAt = time.Now()

	e.forgetAmbiguous(order.ClientID)
	e.book.ClearPending(order.Symbol)
	e.book.SetCooldown(order.Symbol, time.Now().Add(e.st.Cooldown))
	e.journalOrder(ctx, order)
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Status)).Inc()
	return order
}

// ModifyStops переставляет SL/TP открытой позиции. Вызывается монитором,
// уважает паузу торговли.
func (e *Executor) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	if e.gate != nil && !e.gate.OrderOpsAllowed() {
		return ErrOpsPaused
	}
	return e.withRetry(ctx, "modify "+symbol, func(callCtx context.Context) error {
		return e.broker.ModifyStops(callCtx, symbol, stop, target)
	})
}

// CloseSymbol закрывает позицию по рынку. force=true (аварийное закрытие,
// circuit breaker) игнорирует паузу: выйти из риска важнее.
func (e *Executor) CloseSymbol(ctx context.Context, symbol string, size float64, force bool) (brokersvc.OrderAck, error) {
	if !force && e.gate != nil && !e.gate.OrderOpsAllowed() {
		return brokersvc.OrderAck{}, ErrOpsPaused
	}
	var ack brokersvc.OrderAck
	err := e.withRetry(ctx, "close "+symbol, func(callCtx context.Context) error {
		var err error
		ack, err = e.broker.CloseMarket(callCtx, symbol, size)
		return err
	})
	return ack, err
}

func (e *Executor) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	bo := backoff.Backoff{Base: e.st.RetryBase, Max: e.st.RetryMax, Factor: 2, Jitter: 0.2}
	var last error
	for attempt := 1; attempt <= e.st.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.st.AckTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if brokersvc.IsRejection(err) || errors.Is(err, brokersvc.ErrOrderNotFound) {
			// повторять бессмысленно
			return err
		}
		last = err
		logger.Warn("[EXEC] %s failed (attempt %d/%d): %v", op, attempt, e.st.MaxAttempts, err)
		if attempt < e.st.MaxAttempts {
			metrics.OrderRetries.Inc()
			if err := bo.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("executor: %s failed after %d attempts: %w", op, e.st.MaxAttempts, last)
}

// Cancel снимает один неоднозначный ордер по команде оператора. Отменить
// можно только то, чего брокер не видел: исполненный ордер уже позиция,
// её закрывает монитор.
func (e *Executor) Cancel(ctx context.Context, clientID string) error {
	e.mu.Lock()
	order, ok := e.ambiguous[clientID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: no pending order %s", clientID)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.st.AckTimeout)
	defer cancel()

	ack, err := e.broker.OrderByClientID(callCtx, order.ClientID)
	if err != nil {
		if errors.Is(err, brokersvc.ErrOrderNotFound) {
			e.finishCancelled(ctx, order, "cancelled by operator")
			return nil
		}
		return fmt.Errorf("executor: cancel %s: %w", order.Symbol, err)
	}

	// брокер ордер видел, отменять поздно: фиксируем его исход.
	// Исходного решения риска уже нет, восстанавливаем сумму из стопа.
	riskDist := ack.FillPrice - order.Stop
	if order.Side == models.SideSell {
		riskDist = order.Stop - ack.FillPrice
	}
	if _, err := e.resolveAck(ctx, order, models.RiskDecision{
		Symbol: order.Symbol, Side: order.Side,
		Stop: order.Stop, Target: order.Target, Size: order.Size,
		RiskAmount: order.Size * riskDist,
	}, ack); err != nil {
		return err
	}
	return fmt.Errorf("executor: %s already %s at broker, not cancellable", order.Symbol, ack.Status)
}

// ReconcileOpenOrders дорешивает судьбу неоднозначных отправок по истине
// брокера. Вызывается на старте (память процесса после рестарта не
// авторитетна) и периодически.
func (e *Executor) ReconcileOpenOrders(ctx context.Context) {
	e.mu.Lock()
	pendingAcks := make([]models.Order, 0, len(e.ambiguous))
	for _, o := range e.ambiguous {
		pendingAcks = append(pendingAcks, o)
	}
	e.mu.Unlock()

	for _, order := range pendingAcks {
		callCtx, cancel := context.WithTimeout(ctx, e.st.AckTimeout)
		ack, err := e.broker.OrderByClientID(callCtx, order.ClientID)
		cancel()

		if err != nil {
			if errors.Is(err, brokersvc.ErrOrderNotFound) {
				// отправка не дошла: ордера нет, замок можно снять
				logger.Info("[EXEC] reconcile %s: order %s never reached broker", order.Symbol, order.ClientID)
				e.finishCancelled(ctx, order, "lost in transit")
			}
			continue
		}

		d := models.RiskDecision{
			Symbol: order.Symbol,
			Side:   order.Side,
			Stop:   order.Stop,
			Target: order.Target,
			Size:   order.Size,
		}
		if _, err := e.resolveAck(ctx, order, d, ack); err != nil {
			logger.Error("[EXEC] reconcile %s: %v", order.Symbol, err)
		}
	}
}

func (e *Executor) rememberAmbiguous(order models.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ambiguous[order.ClientID] = order
}

func (e *Executor) forgetAmbiguous(clientID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ambiguous, clientID)
}

func positionFromFill(order models.Order, d models.RiskDecision) models.Position {
	riskDist := order.FillPrice - order.Stop
	if order.Side == models.SideSell {
		riskDist = order.Stop - order.FillPrice
	}
	return models.Position{
		Symbol:        order.Symbol,
		Side:          order.Side,
		Size:          order.Size,
		Entry:         order.FillPrice,
		Stop:          order.Stop,
		Target:        order.Target,
		RiskDist:      riskDist,
		RiskAmount:    d.RiskAmount,
		State:         models.PosOpened,
		MFE:           order.FillPrice,
		OrderClientID: order.ClientID,
		OpenedAt:      order.UpdatedAt,
	}
}

func (e *Executor) journalOrder(ctx context.Context, o models.Order) {
	if e.jrnl == nil {
		return
	}
	if err := e.jrnl.Order(ctx, o); err != nil {
		logger.Warn("[EXEC] journal order %s: %v", o.Symbol, err)
	}
}

func (e *Executor) journalPosition(ctx context.Context, p models.Position) {
	if e.jrnl == nil {
		return
	}
	if err := e.jrnl.Position(ctx, p); err != nil {
		logger.Warn("[EXEC] journal position %s: %v", p.Symbol, err)
	}
}
