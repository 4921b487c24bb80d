package service

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Book — единственный владелец состояния портфеля: позиции, equity,
// high-water mark, circuit breaker, pending-заявки. Мутации только через
// его методы; наружу уходят копии-снапшоты через atomic pointer, читатели
// не берут блокировок.
type Book struct {
	mu sync.Mutex

	equity    float64
	highWater float64

	breakerOn bool
	breakerAt time.Time

	positions map[string]*models.Position
	pending   map[string]bool
	cooldown  map[string]time.Time

	symMu map[string]*sync.Mutex

	snap atomic.Pointer[models.PortfolioSnapshot]
}

func NewBook(startEquity float64) *Book {
	b := &Book{
		equity:    startEquity,
		highWater: startEquity,
		positions: map[string]*models.Position{},
		pending:   map[string]bool{},
		cooldown:  map[string]time.Time{},
		symMu:     map[string]*sync.Mutex{},
	}
	b.publishLocked()
	return b
}

// WithSymbol — эксклюзивная секция по символу. Весь путь
// решение -> отправка -> фиксация позиции идёт внутри неё, поэтому
// две заявки по одному символу невозможны в принципе.
func (b *Book) WithSymbol(symbol string, fn func() error) error {
	b.mu.Lock()
	l, ok := b.symMu[symbol]
	if !ok {
		l = &sync.Mutex{}
		b.symMu[symbol] = l
	}
	b.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}

// UpdateEquity двигает equity и high-water. Возвращает true когда просадка
// от пика дошла до cap и breaker только что взвёлся.
func (b *Book) UpdateEquity(equity, maxDrawdownPct float64) (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.equity = equity
	if equity > b.highWater {
		b.highWater = equity
	}
	if !b.breakerOn && b.highWater > 0 {
		dd := (b.highWater - equity) / b.highWater * 100
		if dd >= maxDrawdownPct {
			b.breakerOn = true
			b.breakerAt = time.Now()
			tripped = true
		}
	}
	b.publishLocked()
	return tripped
}

func (b *Book) BreakerActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.breakerOn
}

// ResetBreaker — только по явной команде оператора, автосброса нет.
func (b *Book) ResetBreaker() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.breakerOn {
		return false
	}
	b.breakerOn = false
	b.breakerAt = time.Time{}
	// новый отсчёт просадки от текущего equity
	b.highWater = b.equity
	b.publishLocked()
	return true
}

func (b *Book) MarkPending(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending[symbol] {
		return false
	}
	if _, exists := b.positions[symbol]; exists {
		return false
	}
	b.pending[symbol] = true
	b.publishLocked()
	return true
}

func (b *Book) ClearPending(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, symbol)
	b.publishLocked()
}

func (b *Book) SetCooldown(symbol string, until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cooldown[symbol] = until
}

func (b *Book) OnCooldown(symbol string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.cooldown[symbol])
}

// OpenPosition фиксирует новую позицию. Вторая позиция по символу — ошибка
// вызывающего: pending обязан был не пустить её раньше.
func (b *Book) OpenPosition(p models.Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[p.Symbol]; exists {
		return fmt.Errorf("book: position on %s already open", p.Symbol)
	}
	if p.State == "" {
		p.State = models.PosOpened
	}
	cp := p
	b.positions[p.Symbol] = &cp
	delete(b.pending, p.Symbol)
	b.publishLocked()
	return nil
}

// UpdatePosition мутирует позицию под общим замком и публикует снапшот.
func (b *Book) UpdatePosition(symbol string, fn func(p *models.Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return false
	}
	fn(p)
	b.publishLocked()
	return true
}

func (b *Book) ClosePosition(symbol, reason string, price float64, at time.Time) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	p.State = models.PosClosed
	p.CloseReason = reason
	p.ClosePrice = price
	p.ClosedAt = at
	closed := *p
	delete(b.positions, symbol)
	b.publishLocked()
	return closed, true
}

func (b *Book) Position(symbol string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

func (b *Book) OpenSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.positions))
	for s := range b.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot — лок-фри чтение последнего опубликованного состояния.
func (b *Book) Snapshot() models.PortfolioSnapshot {
	return *b.snap.Load()
}

func (b *Book) publishLocked() {
	snap := models.PortfolioSnapshot{
		Equity:    b.equity,
		HighWater: b.highWater,
		BreakerOn: b.breakerOn,
		BreakerAt: b.breakerAt,
		TakenAt:   time.Now(),
	}
	if b.highWater > 0 {
		snap.Drawdown = (b.highWater - b.equity) / b.highWater * 100
		if snap.Drawdown < 0 {
			snap.Drawdown = 0
		}
	}

	snap.Positions = make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		snap.Positions = append(snap.Positions, *p)
		snap.OpenRisk += p.RiskAmount
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})

	snap.PendingSym = make([]string, 0, len(b.pending))
	for s := range b.pending {
		snap.PendingSym = append(snap.PendingSym, s)
	}
	sort.Strings(snap.PendingSym)

	b.snap.Store(&snap)
}
