package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
)

// fakeBroker отдаёт заранее заданную последовательность исходов PlaceMarket.
type fakeBroker struct {
	mu       sync.Mutex
	outcomes []error // nil => fill
	placed   int
	acks     map[string]brokersvc.OrderAck
	rejectAs string // причина reject вместо fill
}

func newFakeBroker(outcomes ...error) *fakeBroker {
	return &fakeBroker{outcomes: outcomes, acks: map[string]brokersvc.OrderAck{}}
}

func (f *fakeBroker) Connect(ctx context.Context) error { return nil }
func (f *fakeBroker) Account(ctx context.Context) (models.AccountInfo, error) {
	return models.AccountInfo{Equity: 10000}, nil
}
func (f *fakeBroker) Instruments(ctx context.Context) ([]models.Instrument, error) { return nil, nil }
func (f *fakeBroker) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	return models.Quote{}, nil
}
func (f *fakeBroker) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	return nil
}
func (f *fakeBroker) CloseMarket(ctx context.Context, symbol string, size float64) (brokersvc.OrderAck, error) {
	return brokersvc.OrderAck{Status: brokersvc.AckFilled, FillPrice: 100}, nil
}
func (f *fakeBroker) Positions(ctx context.Context) ([]brokersvc.BrokerPosition, error) {
	return nil, nil
}

func (f *fakeBroker) PlaceMarket(ctx context.Context, req brokersvc.OrderRequest) (brokersvc.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// тот же clientID после обрыва отдаёт прежний результат
	if ack, ok := f.acks[req.ClientID]; ok {
		return ack, nil
	}

	idx := f.placed
	f.placed++
	if idx < len(f.outcomes) && f.outcomes[idx] != nil {
		return brokersvc.OrderAck{}, f.outcomes[idx]
	}

	if f.rejectAs != "" {
		ack := brokersvc.OrderAck{ClientID: req.ClientID, Status: brokersvc.AckRejected, Reason: f.rejectAs, At: time.Now()}
		f.acks[req.ClientID] = ack
		return ack, nil
	}

	ack := brokersvc.OrderAck{
		ClientID:  req.ClientID,
		BrokerID:  fmt.Sprintf("t-%d", idx),
		Status:    brokersvc.AckFilled,
		FillPrice: 5000,
		At:        time.Now(),
	}
	f.acks[req.ClientID] = ack
	return ack, nil
}

func (f *fakeBroker) OrderByClientID(ctx context.Context, clientID string) (brokersvc.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ack, ok := f.acks[clientID]; ok {
		return ack, nil
	}
	return brokersvc.OrderAck{}, brokersvc.ErrOrderNotFound
}

type fakeJournal struct {
	mu     sync.Mutex
	orders []models.Order
	poss   []models.Position
}

func (j *fakeJournal) Order(ctx context.Context, o models.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, o)
	return nil
}

func (j *fakeJournal) Position(ctx context.Context, p models.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.poss = append(j.poss, p)
	return nil
}

func (j *fakeJournal) filledOrders() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, o := range j.orders {
		if o.Status == models.OrderFilled {
			n++
		}
	}
	return n
}

func fastSettings() Settings {
	return Settings{
		RetryBase:   time.Millisecond,
		RetryMax:    5 * time.Millisecond,
		MaxAttempts: 5,
		AckTimeout:  time.Second,
		Cooldown:    time.Minute,
	}
}

func approvedDecision(symbol string) models.RiskDecision {
	return models.RiskDecision{
		Symbol:     symbol,
		Side:       models.SideBuy,
		Approved:   true,
		Size:       0.54,
		Entry:      5000,
		Stop:       4815,
		Target:     5277.5,
		RiskAmount: 100,
	}
}

func TestSubmitRetriesThenFillsExactlyOnce(t *testing.T) {
	transient := errors.New("dial tcp: i/o timeout")
	fb := newFakeBroker(transient, transient, nil)
	book := portfoliosvc.NewBook(10000)
	jrnl := &fakeJournal{}
	ex := New(fastSettings(), fb, book, jrnl, nil, nil)

	order, err := ex.Submit(context.Background(), approvedDecision("US500"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != models.OrderFilled {
		t.Fatalf("order status = %s, want FILLED", order.Status)
	}
	if order.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", order.Attempts)
	}
	if got := jrnl.filledOrders(); got != 1 {
		t.Fatalf("journal has %d FILLED orders, want exactly 1", got)
	}
	if _, ok := book.Position("US500"); !ok {
		t.Fatal("filled order must open a position in the book")
	}
}

func TestSubmitIsIdempotentPerSymbol(t *testing.T) {
	fb := newFakeBroker()
	book := portfoliosvc.NewBook(10000)
	jrnl := &fakeJournal{}
	ex := New(fastSettings(), fb, book, jrnl, nil, nil)

	if _, err := ex.Submit(context.Background(), approvedDecision("EURUSD")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := ex.Submit(context.Background(), approvedDecision("EURUSD"))
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("second submit error = %v, want ErrDuplicateOrder", err)
	}
	if got := jrnl.filledOrders(); got != 1 {
		t.Fatalf("journal has %d FILLED orders after duplicate submit, want 1", got)
	}
}

func TestBrokerRejectionCoolsSymbolOff(t *testing.T) {
	fb := newFakeBroker()
	fb.rejectAs = "not enough margin"
	book := portfoliosvc.NewBook(10000)
	ex := New(fastSettings(), fb, book, &fakeJournal{}, nil, nil)

	order, err := ex.Submit(context.Background(), approvedDecision("XAUUSD"))
	if err != nil {
		t.Fatalf("rejection is a recorded outcome, not an error: %v", err)
	}
	if order.Status != models.OrderRejected {
		t.Fatalf("order status = %s, want REJECTED", order.Status)
	}
	if !book.OnCooldown("XAUUSD", time.Now()) {
		t.Fatal("rejected symbol must be cooling off")
	}
	if book.Snapshot().HasPending("XAUUSD") {
		t.Fatal("pending lock must be released after rejection")
	}

	_, err = ex.Submit(context.Background(), approvedDecision("XAUUSD"))
	if !errors.Is(err, ErrCoolingOff) {
		t.Fatalf("submit during cooldown = %v, want ErrCoolingOff", err)
	}
}

func TestMarketClosedIsSkippableNotFatal(t *testing.T) {
	closed := fmt.Errorf("%w: weekend", brokersvc.ErrMarketClosed)
	fb := newFakeBroker(closed)
	book := portfoliosvc.NewBook(10000)
	ex := New(fastSettings(), fb, book, &fakeJournal{}, nil, nil)

	order, err := ex.Submit(context.Background(), approvedDecision("US500"))
	if err != nil {
		t.Fatalf("market closed must not surface as failure: %v", err)
	}
	if order.Status != models.OrderCancelled {
		t.Fatalf("order status = %s, want CANCELLED", order.Status)
	}
	if book.Snapshot().HasPending("US500") {
		t.Fatal("pending lock must be released")
	}
}

func TestExhaustedRetriesSurfaceHardFailure(t *testing.T) {
	transient := errors.New("connection reset")
	fb := newFakeBroker(transient, transient, transient, transient, transient)
	book := portfoliosvc.NewBook(10000)
	ex := New(fastSettings(), fb, book, &fakeJournal{}, nil, nil)

	_, err := ex.Submit(context.Background(), approvedDecision("GBPUSD"))
	if err == nil {
		t.Fatal("exhausted retries must surface a hard failure")
	}
	// отправки уходили в неизвестность: замок остаётся до reconcile
	if !book.Snapshot().HasPending("GBPUSD") {
		t.Fatal("ambiguous sends must keep the pending lock")
	}

	ex.ReconcileOpenOrders(context.Background())
	if book.Snapshot().HasPending("GBPUSD") {
		t.Fatal("reconcile found no broker-side order, pending must be released")
	}
}

type closedGate struct{}

func (closedGate) OrderOpsAllowed() bool { return false }

func TestPausedGateBlocksSubmit(t *testing.T) {
	ex := New(fastSettings(), newFakeBroker(), portfoliosvc.NewBook(10000), &fakeJournal{}, nil, closedGate{})

	_, err := ex.Submit(context.Background(), approvedDecision("US500"))
	if !errors.Is(err, ErrOpsPaused) {
		t.Fatalf("submit with closed gate = %v, want ErrOpsPaused", err)
	}
}
