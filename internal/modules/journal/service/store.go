package service

import (
	"context"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Store — append-only. Никаких update/delete: журнал это история,
// история не переписывается.
type Store interface {
	Append(ctx context.Context, e models.JournalEntry) error
	Close() error
}

// Writer — типизированная обёртка над Store. Все рабочие пишут через неё,
// чтобы Kind/At/Symbol заполнялись одинаково.
type Writer struct {
	store Store
	bars  bool // писать ли свечи (нужно только для replay)
}

func NewWriter(store Store, recordBars bool) *Writer {
	return &Writer{store: store, bars: recordBars}
}

func (w *Writer) Candle(ctx context.Context, c models.Candle) error {
	if !w.bars {
		return nil
	}
	return w.store.Append(ctx, models.JournalEntry{
		Kind:   models.EntryCandle,
		At:     c.End,
		Symbol: c.Symbol,
		Candle: &c,
	})
}

func (w *Writer) Signal(ctx context.Context, s models.Signal) error {
	return w.store.Append(ctx, models.JournalEntry{
		Kind:   models.EntrySignal,
		At:     s.At,
		Symbol: s.Symbol,
		Signal: &s,
	})
}

func (w *Writer) Decision(ctx context.Context, d models.RiskDecision) error {
	return w.store.Append(ctx, models.JournalEntry{
		Kind:     models.EntryDecision,
		At:       d.SignalAt,
		Symbol:   d.Symbol,
		Decision: &d,
	})
}

func (w *Writer) Order(ctx context.Context, o models.Order) error {
	return w.store.Append(ctx, models.JournalEntry{
		Kind:   models.EntryOrder,
		At:     o.UpdatedAt,
		Symbol: o.Symbol,
		Order:  &o,
	})
}

func (w *Writer) Position(ctx context.Context, p models.Position) error {
	at := p.ClosedAt
	if at.IsZero() {
		at = time.Now()
	}
	return w.store.Append(ctx, models.JournalEntry{
		Kind:     models.EntryPosition,
		At:       at,
		Symbol:   p.Symbol,
		Position: &p,
	})
}

func (w *Writer) Breaker(ctx context.Context, note string) error {
	return w.store.Append(ctx, models.JournalEntry{
		Kind: models.EntryBreaker,
		At:   time.Now(),
		Note: note,
	})
}

func (w *Writer) Close() error { return w.store.Close() }
