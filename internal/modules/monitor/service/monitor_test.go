package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	risksvc "github.com/xentristech/tradingpro-sub001/internal/modules/risk/service"
)

type fakeGate struct {
	mu         sync.Mutex
	stopMoves  []float64
	closes     []float64 // размеры закрытий
	closePrice float64
	failCloses int // столько первых CloseSymbol вернут ошибку
}

func (g *fakeGate) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopMoves = append(g.stopMoves, stop)
	return nil
}

func (g *fakeGate) CloseSymbol(ctx context.Context, symbol string, size float64, force bool) (brokersvc.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCloses > 0 {
		g.failCloses--
		return brokersvc.OrderAck{}, errors.New("broker unavailable")
	}
	g.closes = append(g.closes, size)
	return brokersvc.OrderAck{Status: brokersvc.AckFilled, FillPrice: g.closePrice, At: time.Now()}, nil
}

type fakeNote struct{}

func (fakeNote) Sendf(format string, args ...any) {}

type fakeJrnl struct {
	mu        sync.Mutex
	positions []models.Position
	breakers  []string
}

func (j *fakeJrnl) Position(ctx context.Context, p models.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.positions = append(j.positions, p)
	return nil
}

func (j *fakeJrnl) Breaker(ctx context.Context, note string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.breakers = append(j.breakers, note)
	return nil
}

// stubBroker нужен только RefreshLoop/EquityLoop; остальные методы не зовутся.
type stubBroker struct {
	positions []brokersvc.BrokerPosition
	equity    float64
}

func (s *stubBroker) Connect(ctx context.Context) error { return nil }
func (s *stubBroker) Account(ctx context.Context) (models.AccountInfo, error) {
	return models.AccountInfo{Equity: s.equity, Balance: s.equity}, nil
}
func (s *stubBroker) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return nil, nil
}
func (s *stubBroker) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	return models.Quote{}, nil
}
func (s *stubBroker) PlaceMarket(ctx context.Context, req brokersvc.OrderRequest) (brokersvc.OrderAck, error) {
	return brokersvc.OrderAck{}, nil
}
func (s *stubBroker) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	return nil
}
func (s *stubBroker) CloseMarket(ctx context.Context, symbol string, size float64) (brokersvc.OrderAck, error) {
	return brokersvc.OrderAck{}, nil
}
func (s *stubBroker) Positions(ctx context.Context) ([]brokersvc.BrokerPosition, error) {
	return s.positions, nil
}
func (s *stubBroker) OrderByClientID(ctx context.Context, clientID string) (brokersvc.OrderAck, error) {
	return brokersvc.OrderAck{}, brokersvc.ErrOrderNotFound
}

func testTrailing() models.TrailingConfig {
	return models.TrailingConfig{
		Enabled:         true,
		BETriggerR:      0.6,
		BEOffsetR:       0.0,
		TrailTriggerR:   1.0,
		LockTriggerR:    0.9,
		LockOffsetR:     0.3,
		MinImproveR:     0.10,
		TimeStopBars:    12,
		TimeStopMinMFER: 0.3,
	}
}

func newTestMonitor(t *testing.T, book *portfoliosvc.Book, gate *fakeGate) (*Monitor, *fakeJrnl) {
	t.Helper()
	jrnl := &fakeJrnl{}
	mon := New(Settings{
		Trailing:       testTrailing(),
		MaxDrawdownPct: 2.0,
	}, book, &stubBroker{}, gate, nil, jrnl, fakeNote{})
	return mon, jrnl
}

func openLong(t *testing.T, book *portfoliosvc.Book, symbol string, entry, stop float64) {
	t.Helper()
	err := book.OpenPosition(models.Position{
		Symbol:   symbol,
		Side:     models.SideBuy,
		Size:     1,
		Entry:    entry,
		Stop:     stop,
		Target:   entry + 3*(entry-stop),
		RiskDist: entry - stop,
		State:    models.PosOpened,
		MFE:      entry,
		OpenedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
}

func bar(symbol string, high, low, close float64) models.Candle {
	return models.Candle{
		Symbol: symbol, Timeframe: "15m",
		Open: close, High: high, Low: low, Close: close,
		End: time.Now(),
	}
}

func TestStopOnlyTightensNeverWeakens(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{}
	mon, _ := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900) // R = 0.0100

	// цена идёт вверх, потом откатывается: стоп не должен откатиться следом
	highs := []float64{1.1070, 1.1110, 1.1160, 1.1050, 1.1030}
	for _, h := range highs {
		mon.OnCandle(ctx, bar("EURUSD", h, h-0.002, h-0.001))
	}

	prev := 0.0
	for i, s := range gate.stopMoves {
		if s < prev {
			t.Fatalf("stop weakened at move %d: %.5f -> %.5f", i, prev, s)
		}
		prev = s
	}

	pos, ok := book.Position("EURUSD")
	if !ok {
		t.Fatal("position gone")
	}
	if pos.Stop < 1.0900 {
		t.Fatalf("stop below initial: %.5f", pos.Stop)
	}
}

func TestBreakevenSetExactlyOnce(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{}
	mon, _ := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	// 0.7R: достаточно для BE, мало для lock/trail
	mon.OnCandle(ctx, bar("EURUSD", 1.1070, 1.1040, 1.1060))

	pos, _ := book.Position("EURUSD")
	if !pos.MovedToBE {
		t.Fatal("expected MovedToBE after 0.7R")
	}
	if pos.State != models.PosBreakeven {
		t.Fatalf("state = %s, want BREAKEVEN_SET", pos.State)
	}
	if pos.Stop != 1.1000 {
		t.Fatalf("BE stop = %.5f, want entry", pos.Stop)
	}

	moves := len(gate.stopMoves)
	// тот же MFE ещё раз: улучшения нет, перестановки быть не должно
	mon.OnCandle(ctx, bar("EURUSD", 1.1069, 1.1040, 1.1060))
	if len(gate.stopMoves) != moves {
		t.Fatalf("stop re-moved without improvement: %d -> %d", moves, len(gate.stopMoves))
	}
}

func TestTrailingFollowsMFE(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{}
	mon, _ := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	// 2R хода: стоп обязан встать в 1R позади лучшей цены
	mon.OnCandle(ctx, bar("EURUSD", 1.1200, 1.1150, 1.1190))

	pos, _ := book.Position("EURUSD")
	if pos.State != models.PosTrailing {
		t.Fatalf("state = %s, want TRAILING", pos.State)
	}
	want := 1.1200 - 0.0100
	if math.Abs(pos.Stop-want) > 1e-9 {
		t.Fatalf("trail stop = %.5f, want %.5f", pos.Stop, want)
	}
}

func TestTimeStopClosesStalePosition(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{closePrice: 1.1005}
	mon, jrnl := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	// 12 баров почти без движения: MFE так и не дошёл до 0.3R
	for i := 0; i < 12; i++ {
		mon.OnCandle(ctx, bar("EURUSD", 1.1010, 1.0995, 1.1005))
	}

	pos, ok := book.Position("EURUSD")
	if ok && !pos.Closed() {
		t.Fatalf("expected time-stop close, state = %s", pos.State)
	}
	if len(gate.closes) != 1 {
		t.Fatalf("close calls = %d, want 1", len(gate.closes))
	}

	found := false
	jrnl.mu.Lock()
	for _, p := range jrnl.positions {
		if p.CloseReason == models.CloseTimeStop {
			found = true
		}
	}
	jrnl.mu.Unlock()
	if !found {
		t.Fatal("time_stop close not journaled")
	}
}

func TestPartialCloseHappensOnce(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{closePrice: 1.1090}
	cfg := testTrailing()
	cfg.PartialEnabled = true
	cfg.PartialTriggerR = 0.9
	cfg.PartialCloseFrac = 0.5
	jrnl := &fakeJrnl{}
	mon := New(Settings{Trailing: cfg, MaxDrawdownPct: 2.0},
		book, &stubBroker{}, gate, nil, jrnl, fakeNote{})
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	mon.OnCandle(ctx, bar("EURUSD", 1.1095, 1.1080, 1.1090)) // 0.95R
	mon.OnCandle(ctx, bar("EURUSD", 1.1096, 1.1080, 1.1090))

	if len(gate.closes) != 1 {
		t.Fatalf("partial close calls = %d, want 1", len(gate.closes))
	}
	pos, _ := book.Position("EURUSD")
	if !pos.TookPartial {
		t.Fatal("TookPartial not set")
	}
	if pos.Size != 0.5 {
		t.Fatalf("size after partial = %.2f, want 0.5", pos.Size)
	}
}

func TestBreakerTripClosesAllAndBlocksNewEntries(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{closePrice: 1.0950}
	mon, jrnl := newTestMonitor(t, book, gate)
	ctx := context.Background()

	for _, sym := range []string{"EURUSD", "GBPUSD", "XAUUSD"} {
		openLong(t, book, sym, 1.1000, 1.0900)
	}

	// просадка 3% от high-water при пороге 2%
	if tripped := book.UpdateEquity(9700, 2.0); !tripped {
		t.Fatal("expected breaker trip at 3% drawdown")
	}
	n := mon.ForceCloseAll(ctx, models.CloseBreaker)
	if n != 3 {
		t.Fatalf("force-closed %d, want 3", n)
	}
	if got := book.Snapshot().OpenCount(); got != 0 {
		t.Fatalf("open positions after breaker = %d", got)
	}

	jrnl.mu.Lock()
	closedByBreaker := 0
	for _, p := range jrnl.positions {
		if p.CloseReason == models.CloseBreaker && p.State == models.PosClosed {
			closedByBreaker++
		}
	}
	jrnl.mu.Unlock()
	if closedByBreaker != 3 {
		t.Fatalf("journaled breaker closes = %d, want 3", closedByBreaker)
	}

	// пока breaker взведён, риск отклоняет любой сигнал
	eng := risksvc.NewEngine(risksvc.Settings{
		RiskPct: 1, MaxRiskPct: 2, MaxOpenPositions: 3, PortfolioRiskPct: 5,
	})
	sig := models.Signal{
		Symbol: "EURUSD", Side: models.SideBuy, Score: 80, Price: 1.1000,
		Indicators: models.IndicatorValues{ATR: 0.0050}, At: time.Now(),
	}
	inst := models.Instrument{Symbol: "EURUSD", ContractSize: 1, TradeAllowed: true}
	d := eng.Assess(sig, book.Snapshot(), inst)
	if d.Approved || d.Reason != models.RejectBreakerActive {
		t.Fatalf("want breaker rejection, got approved=%v reason=%q", d.Approved, d.Reason)
	}

	// сбрасывается только явно, оператором
	if !book.ResetBreaker() {
		t.Fatal("ResetBreaker returned false")
	}
	d = eng.Assess(sig, book.Snapshot(), inst)
	if !d.Approved && d.Reason == models.RejectBreakerActive {
		t.Fatal("breaker still rejecting after reset")
	}
}

func TestFailedCloseRetriedOnNextCandle(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{closePrice: 1.1005, failCloses: 1}
	mon, _ := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	// 12 вялых баров: тайм-стоп решает закрыть, брокер недоступен
	for i := 0; i < 12; i++ {
		mon.OnCandle(ctx, bar("EURUSD", 1.1010, 1.0995, 1.1005))
	}

	pos, ok := book.Position("EURUSD")
	if !ok {
		t.Fatal("position gone after failed close")
	}
	if pos.State == models.PosClosing {
		t.Fatalf("state stuck in %s after failed close", pos.State)
	}
	if len(gate.closes) != 0 {
		t.Fatalf("close recorded despite broker error: %d", len(gate.closes))
	}

	// следующая свеча: тайм-стоп всё ещё в силе, закрытие проходит
	mon.OnCandle(ctx, bar("EURUSD", 1.1010, 1.0995, 1.1005))

	pos, ok = book.Position("EURUSD")
	if ok && !pos.Closed() {
		t.Fatalf("expected close on retry, state = %s", pos.State)
	}
	if len(gate.closes) != 1 {
		t.Fatalf("close calls after recovery = %d, want 1", len(gate.closes))
	}
}

func TestForceCloseAllRetriesAfterBrokerError(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{closePrice: 1.0950, failCloses: 1}
	mon, _ := newTestMonitor(t, book, gate)
	ctx := context.Background()

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	if tripped := book.UpdateEquity(9700, 2.0); !tripped {
		t.Fatal("expected breaker trip")
	}

	// первая ликвидация упирается в брокера: позиция должна остаться
	// в доступном для повтора состоянии
	mon.ForceCloseAll(ctx, models.CloseBreaker)
	pos, ok := book.Position("EURUSD")
	if !ok {
		t.Fatal("position gone after failed liquidation")
	}
	if pos.State == models.PosClosing || pos.Closed() {
		t.Fatalf("state after failed liquidation = %s", pos.State)
	}

	// повтор с тика equity-цикла добивает позицию
	mon.ForceCloseAll(ctx, models.CloseBreaker)
	if got := book.Snapshot().OpenCount(); got != 0 {
		t.Fatalf("open after retry = %d, want 0", got)
	}
}

func TestRefreshArchivesExternallyClosed(t *testing.T) {
	book := portfoliosvc.NewBook(10000)
	gate := &fakeGate{}
	jrnl := &fakeJrnl{}
	broker := &stubBroker{equity: 10000} // брокер позиций не видит
	mon := New(Settings{Trailing: testTrailing(), MaxDrawdownPct: 2.0},
		book, broker, gate, nil, jrnl, fakeNote{})

	openLong(t, book, "EURUSD", 1.1000, 1.0900)

	if err := mon.refreshOnce(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := book.Snapshot().OpenCount(); got != 0 {
		t.Fatalf("open after refresh = %d, want 0", got)
	}
	if len(gate.closes) != 0 {
		t.Fatal("refresh must not send close orders for already-closed positions")
	}
}
