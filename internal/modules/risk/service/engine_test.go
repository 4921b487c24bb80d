package service

import (
	"math"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

func testSettings() Settings {
	return Settings{
		RiskPct:          1.0,
		MaxRiskPct:       2.0,
		MaxOpenPositions: 5,
		PortfolioRiskPct: 5.0,
		RewardRR:         1.5,
		StopATRMult:      1.0,
	}
}

func buySignal(symbol string, price, atr float64) models.Signal {
	return models.Signal{
		Symbol: symbol,
		Side:   models.SideBuy,
		Score:  72,
		Price:  price,
		At:     time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
		Indicators: models.IndicatorValues{
			ATR: atr,
		},
	}
}

func flatSnap(equity float64) models.PortfolioSnapshot {
	return models.PortfolioSnapshot{Equity: equity, HighWater: equity}
}

func tickInst() models.Instrument {
	return models.Instrument{Symbol: "US500", TickSize: 0.01, ContractSize: 1, TradeAllowed: true}
}

func TestSizingLosesExactlyApprovedRisk(t *testing.T) {
	// депозит 10000, риск 1% = 100, стоп 185 пунктов:
	// полный вынос стопа должен стоить ровно 100
	e := NewEngine(testSettings())

	d := e.Assess(buySignal("US500", 5000, 185), flatSnap(10000), tickInst())
	if !d.Approved {
		t.Fatalf("expected approval, got reject %q", d.Reason)
	}

	lossAtStop := d.Size * (d.Entry - d.Stop)
	if math.Abs(lossAtStop-100) > 1e-9 {
		t.Fatalf("loss at stop = %v, want exactly 100", lossAtStop)
	}
	if math.Abs(d.RiskAmount-100) > 1e-9 {
		t.Fatalf("risk amount = %v, want 100", d.RiskAmount)
	}
	if d.Stop != 4815 {
		t.Fatalf("stop = %v, want 4815", d.Stop)
	}
	if math.Abs(d.Target-(5000+1.5*185)) > 0.01+1e-9 {
		t.Fatalf("target = %v, want about %v", d.Target, 5000+1.5*185)
	}
}

func TestLotStepNeverRaisesRisk(t *testing.T) {
	e := NewEngine(testSettings())
	inst := tickInst()
	inst.LotStep = 0.1
	inst.MinLot = 0.1

	d := e.Assess(buySignal("US500", 5000, 185), flatSnap(10000), inst)
	if !d.Approved {
		t.Fatalf("expected approval, got %q", d.Reason)
	}
	// 100/185 = 0.5405..., шаг 0.1 -> 0.5
	if math.Abs(d.Size-0.5) > 1e-9 {
		t.Fatalf("size = %v, want 0.5", d.Size)
	}
	if d.RiskAmount > 100+1e-9 {
		t.Fatalf("rounded size must not exceed approved risk, got %v", d.RiskAmount)
	}
}

func TestMinLotAboveBudgetRejects(t *testing.T) {
	e := NewEngine(testSettings())
	inst := tickInst()
	inst.LotStep = 1
	inst.MinLot = 1 // целый лот стоил бы 185 при бюджете 100

	d := e.Assess(buySignal("US500", 5000, 185), flatSnap(10000), inst)
	if d.Approved {
		t.Fatalf("must reject when min lot exceeds risk budget")
	}
	if d.Reason != models.RejectRiskCap {
		t.Fatalf("reason = %q, want %q", d.Reason, models.RejectRiskCap)
	}
}

func TestBreakerBlocksEverything(t *testing.T) {
	e := NewEngine(testSettings())
	snap := flatSnap(10000)
	snap.BreakerOn = true

	d := e.Assess(buySignal("US500", 5000, 185), snap, tickInst())
	if d.Approved {
		t.Fatalf("breaker must block approvals")
	}
	if d.Reason != models.RejectBreakerActive {
		t.Fatalf("reason = %q, want %q", d.Reason, models.RejectBreakerActive)
	}
}

func TestBlockedInstrumentRejected(t *testing.T) {
	e := NewEngine(testSettings())
	inst := tickInst()
	inst.TradeAllowed = false

	d := e.Assess(buySignal("US500", 5000, 185), flatSnap(10000), inst)
	if d.Approved {
		t.Fatal("blocked instrument must not be approved")
	}
	if d.Reason != models.RejectSymbolBlocked {
		t.Fatalf("reason = %q, want %q", d.Reason, models.RejectSymbolBlocked)
	}
}

func TestRejectLadder(t *testing.T) {
	e := NewEngine(testSettings())

	pos := func(sym string, risk float64) models.Position {
		return models.Position{Symbol: sym, Side: models.SideBuy, Size: 1, RiskAmount: risk, State: models.PosOpened}
	}

	cases := []struct {
		name   string
		sig    models.Signal
		snap   models.PortfolioSnapshot
		reason string
	}{
		{
			name:   "neutral signal",
			sig:    models.Signal{Symbol: "US500", Side: models.SideNeutral, Price: 5000},
			snap:   flatSnap(10000),
			reason: models.RejectNoDirection,
		},
		{
			name: "position already open",
			sig:  buySignal("US500", 5000, 185),
			snap: models.PortfolioSnapshot{
				Equity:    10000,
				Positions: []models.Position{pos("US500", 100)},
			},
			reason: models.RejectPositionExists,
		},
		{
			name: "order in flight",
			sig:  buySignal("US500", 5000, 185),
			snap: models.PortfolioSnapshot{
				Equity:     10000,
				PendingSym: []string{"US500"},
			},
			reason: models.RejectPositionExists,
		},
		{
			name: "max positions",
			sig:  buySignal("US500", 5000, 185),
			snap: models.PortfolioSnapshot{
				Equity: 10000,
				Positions: []models.Position{
					pos("A", 10), pos("B", 10), pos("C", 10), pos("D", 10), pos("E", 10),
				},
			},
			reason: models.RejectMaxPositions,
		},
		{
			name:   "no equity",
			sig:    buySignal("US500", 5000, 185),
			snap:   flatSnap(0),
			reason: models.RejectZeroEquity,
		},
		{
			name:   "zero atr",
			sig:    buySignal("US500", 5000, 0),
			snap:   flatSnap(10000),
			reason: models.RejectInvalidStop,
		},
		{
			name: "portfolio risk cap",
			sig:  buySignal("US500", 5000, 185),
			snap: models.PortfolioSnapshot{
				Equity:    10000,
				OpenRisk:  450,
				Positions: []models.Position{pos("A", 150), pos("B", 150), pos("C", 150)},
			},
			reason: models.RejectPortfolioRisk,
		},
	}

	for _, tc := range cases {
		d := e.Assess(tc.sig, tc.snap, tickInst())
		if d.Approved {
			t.Fatalf("%s: expected reject", tc.name)
		}
		if d.Reason != tc.reason {
			t.Fatalf("%s: reason = %q, want %q", tc.name, d.Reason, tc.reason)
		}
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	e := NewEngine(testSettings())
	sig := buySignal("US500", 5000, 185)
	snap := flatSnap(10000)

	a := e.Assess(sig, snap, tickInst())
	b := e.Assess(sig, snap, tickInst())
	if a != b {
		t.Fatalf("same input produced different decisions:\n%+v\n%+v", a, b)
	}
}

func TestApprovedSumStaysUnderPortfolioCap(t *testing.T) {
	// последовательность одобрений никогда не выводит суммарный риск за 5%
	e := NewEngine(testSettings())
	snap := flatSnap(10000)

	symbols := []string{"A", "B", "C", "D", "E", "F", "G"}
	for _, sym := range symbols {
		d := e.Assess(buySignal(sym, 5000, 185), snap, tickInst())
		if !d.Approved {
			continue
		}
		snap.Positions = append(snap.Positions, models.Position{
			Symbol: sym, Side: d.Side, Size: d.Size, RiskAmount: d.RiskAmount, State: models.PosOpened,
		})
		snap.OpenRisk += d.RiskAmount

		limit := snap.Equity * 5.0 / 100
		if snap.OpenRisk > limit+1e-9 {
			t.Fatalf("approved risk %v exceeds portfolio cap %v", snap.OpenRisk, limit)
		}
	}
	if len(snap.Positions) == 0 {
		t.Fatalf("sanity: at least one approval expected")
	}
}
