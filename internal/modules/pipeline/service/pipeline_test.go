package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	executorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	risksvc "github.com/xentristech/tradingpro-sub001/internal/modules/risk/service"
)

type memJournal struct {
	mu        sync.Mutex
	decisions []models.RiskDecision
	orders    []models.Order
	positions []models.Position
}

func (j *memJournal) Decision(ctx context.Context, d models.RiskDecision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *memJournal) Order(ctx context.Context, o models.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, o)
	return nil
}

func (j *memJournal) Position(ctx context.Context, p models.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.positions = append(j.positions, p)
	return nil
}

type openGate struct{}

func (openGate) OrderOpsAllowed() bool { return true }

type silentNote struct{}

func (silentNote) Sendf(format string, args ...any) {}

// Сценарий на живых частях: paper-брокер, настоящая книга, настоящий
// риск и исполнитель. Сигнал проходит весь путь до открытой позиции.
func newTestPipeline(t *testing.T) (*Pipeline, *portfoliosvc.Book, *brokersvc.Paper, *memJournal) {
	t.Helper()

	book := portfoliosvc.NewBook(10000)
	paper := brokersvc.NewPaper([]string{"EURUSD"}, 10000)
	jrnl := &memJournal{}

	risk := risksvc.NewEngine(risksvc.Settings{
		RiskPct:          1,
		MaxRiskPct:       2,
		MaxOpenPositions: 3,
		PortfolioRiskPct: 5,
		RewardRR:         1.5,
		StopATRMult:      1.0,
	})
	exec := executorsvc.New(executorsvc.Settings{
		RetryBase: time.Millisecond,
		RetryMax:  5 * time.Millisecond,
	}, paper, book, jrnl, silentNote{}, openGate{})
	insts := brokersvc.NewInstrumentCache(paper)

	return New(risk, book, insts, exec, jrnl), book, paper, jrnl
}

func buySignal(at time.Time) models.Signal {
	return models.Signal{
		Symbol:     "EURUSD",
		Timeframe:  "15m",
		Side:       models.SideBuy,
		Score:      82,
		Price:      1.1000,
		Indicators: models.IndicatorValues{ATR: 0.0050},
		At:         at,
	}
}

func TestApprovedSignalOpensPosition(t *testing.T) {
	pipe, book, paper, jrnl := newTestPipeline(t)
	paper.MarkPrice("EURUSD", 1.1000)

	pipe.OnSignal(context.Background(), buySignal(time.Now()))

	snap := book.Snapshot()
	if snap.OpenCount() != 1 {
		t.Fatalf("open positions = %d, want 1", snap.OpenCount())
	}
	p := snap.Positions[0]
	if p.Side != models.SideBuy || p.Symbol != "EURUSD" {
		t.Fatalf("unexpected position: %+v", p)
	}
	if p.Stop >= p.Entry {
		t.Fatalf("long stop %.5f not below entry %.5f", p.Stop, p.Entry)
	}

	jrnl.mu.Lock()
	defer jrnl.mu.Unlock()
	if len(jrnl.decisions) != 1 || !jrnl.decisions[0].Approved {
		t.Fatalf("want 1 approved decision, got %+v", jrnl.decisions)
	}
}

func TestSecondSignalSameSymbolRejected(t *testing.T) {
	pipe, book, paper, jrnl := newTestPipeline(t)
	paper.MarkPrice("EURUSD", 1.1000)
	ctx := context.Background()

	t0 := time.Now()
	pipe.OnSignal(ctx, buySignal(t0))
	pipe.OnSignal(ctx, buySignal(t0.Add(15*time.Minute)))

	if got := book.Snapshot().OpenCount(); got != 1 {
		t.Fatalf("open positions = %d, want 1", got)
	}

	jrnl.mu.Lock()
	defer jrnl.mu.Unlock()
	if len(jrnl.decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(jrnl.decisions))
	}
	if jrnl.decisions[1].Approved || jrnl.decisions[1].Reason != models.RejectPositionExists {
		t.Fatalf("second decision = %+v, want position_exists rejection", jrnl.decisions[1])
	}
}

func TestSupersededSignalRejectedAsStale(t *testing.T) {
	pipe, _, paper, jrnl := newTestPipeline(t)
	paper.MarkPrice("EURUSD", 1.1000)
	ctx := context.Background()

	t1 := time.Now()
	pipe.OnSignal(ctx, buySignal(t1))
	// сигнал старого бара пришёл после нового: решение по нему не принимается
	pipe.OnSignal(ctx, buySignal(t1.Add(-15*time.Minute)))

	jrnl.mu.Lock()
	defer jrnl.mu.Unlock()
	if len(jrnl.decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(jrnl.decisions))
	}
	if jrnl.decisions[1].Approved || jrnl.decisions[1].Reason != models.RejectStaleSignal {
		t.Fatalf("second decision = %+v, want stale_signal rejection", jrnl.decisions[1])
	}
}

func TestNeutralSignalNeverTrades(t *testing.T) {
	pipe, book, paper, jrnl := newTestPipeline(t)
	paper.MarkPrice("EURUSD", 1.1000)

	sig := buySignal(time.Now())
	sig.Side = models.SideNeutral
	sig.Score = 50
	pipe.OnSignal(context.Background(), sig)

	if got := book.Snapshot().OpenCount(); got != 0 {
		t.Fatalf("open positions = %d, want 0", got)
	}
	jrnl.mu.Lock()
	defer jrnl.mu.Unlock()
	if len(jrnl.decisions) != 1 || jrnl.decisions[0].Approved {
		t.Fatal("neutral signal must be journaled as rejected")
	}
}
