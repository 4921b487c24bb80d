package service

import (
	"context"
	"testing"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

func TestJSONLAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	at := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	sig := models.Signal{Symbol: "EURUSD", Side: models.SideBuy, Score: 71, At: at}
	ord := models.Order{
		ClientID: "c-1", Symbol: "EURUSD", Side: models.SideBuy,
		Status: models.OrderFilled, UpdatedAt: at.Add(time.Second),
	}

	ctx := context.Background()
	if err := store.Append(ctx, models.JournalEntry{Kind: models.EntrySignal, At: sig.At, Symbol: sig.Symbol, Signal: &sig}); err != nil {
		t.Fatalf("append signal: %v", err)
	}
	if err := store.Append(ctx, models.JournalEntry{Kind: models.EntryOrder, At: ord.UpdatedAt, Symbol: ord.Symbol, Order: &ord}); err != nil {
		t.Fatalf("append order: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Kind != models.EntrySignal || got[0].Signal == nil || got[0].Signal.Score != 71 {
		t.Fatalf("first entry mangled: %+v", got[0])
	}
	if got[1].Kind != models.EntryOrder || got[1].Order == nil || got[1].Order.Status != models.OrderFilled {
		t.Fatalf("second entry mangled: %+v", got[1])
	}
}

func TestWriterSkipsCandlesUnlessEnabled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	w := NewWriter(store, false)

	c := models.Candle{Symbol: "EURUSD", Close: 1.1, End: time.Now()}
	if err := w.Candle(context.Background(), c); err != nil {
		t.Fatalf("candle: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candles written with record_bars=false: %d entries", len(got))
	}
}
