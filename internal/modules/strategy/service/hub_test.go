package service

import (
	"os"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(true); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func queuedSignal(symbol string, at time.Time) models.Signal {
	return models.Signal{
		Symbol: symbol, Side: models.SideBuy, Score: 70, Price: 1.1,
		Reason: "score>=buy", At: at,
	}
}

func drain(out chan models.Signal) []models.Signal {
	var got []models.Signal
	for {
		select {
		case s := <-out:
			got = append(got, s)
		default:
			return got
		}
	}
}

func TestQueueFullSameSymbolReplacedByNewerBar(t *testing.T) {
	out := make(chan models.Signal, 2)
	h := NewHub(HubConfig{DropPolicy: "drop_same_symbol"}, nil, nil, nil, nil, nil, out, nil)

	t0 := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(15 * time.Minute)

	out <- queuedSignal("EURUSD", t0)
	out <- queuedSignal("GBPUSD", t0)

	h.dropOnFull(queuedSignal("EURUSD", t1))

	got := drain(out)
	if len(got) != 2 {
		t.Fatalf("queue size after replace = %d, want 2", len(got))
	}
	for _, s := range got {
		switch s.Symbol {
		case "EURUSD":
			if !s.At.Equal(t1) {
				t.Fatalf("EURUSD signal at %s, want replaced by %s", s.At, t1)
			}
		case "GBPUSD":
			if !s.At.Equal(t0) {
				t.Fatalf("GBPUSD signal disturbed: at %s", s.At)
			}
		default:
			t.Fatalf("unexpected symbol %s", s.Symbol)
		}
	}
}

func TestQueueFullOtherSymbolsKeptNewestDropped(t *testing.T) {
	out := make(chan models.Signal, 1)
	h := NewHub(HubConfig{DropPolicy: "drop_same_symbol"}, nil, nil, nil, nil, nil, out, nil)

	t0 := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	out <- queuedSignal("GBPUSD", t0)

	// своего символа в очереди нет и мест нет: новый теряется, чужой живёт
	h.dropOnFull(queuedSignal("EURUSD", t0.Add(15*time.Minute)))

	got := drain(out)
	if len(got) != 1 || got[0].Symbol != "GBPUSD" {
		t.Fatalf("queue after drop = %+v, want single GBPUSD", got)
	}
}

func TestQueueFullDropOldestMakesRoom(t *testing.T) {
	out := make(chan models.Signal, 1)
	h := NewHub(HubConfig{DropPolicy: "drop_oldest"}, nil, nil, nil, nil, nil, out, nil)

	t0 := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	out <- queuedSignal("GBPUSD", t0)

	h.dropOnFull(queuedSignal("EURUSD", t0.Add(15*time.Minute)))

	got := drain(out)
	if len(got) != 1 || got[0].Symbol != "EURUSD" {
		t.Fatalf("queue after drop_oldest = %+v, want single EURUSD", got)
	}
}
