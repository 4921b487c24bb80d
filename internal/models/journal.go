package models

import "time"

type EntryKind string

const (
	EntryCandle   EntryKind = "candle" // пишется только при record_bars, нужен для replay
	EntrySignal   EntryKind = "signal"
	EntryDecision EntryKind = "decision"
	EntryOrder    EntryKind = "order"
	EntryPosition EntryKind = "position"
	EntryBreaker  EntryKind = "breaker"
)

// JournalEntry — одна строка append-only журнала. Payload заполняется
// ровно одним полем по Kind. Ничего не обновляется и не удаляется.
type JournalEntry struct {
	Kind   EntryKind `json:"kind"`
	At     time.Time `json:"at"`
	Symbol string    `json:"symbol,omitempty"`

	Candle   *Candle       `json:"candle,omitempty"`
	Signal   *Signal       `json:"signal,omitempty"`
	Decision *RiskDecision `json:"decision,omitempty"`
	Order    *Order        `json:"order,omitempty"`
	Position *Position     `json:"position,omitempty"`
	Note     string        `json:"note,omitempty"` // для breaker: trip/reset + причина
}
