package models

import "time"

type PositionState string

const (
	PosOpened    PositionState = "OPENED"
	PosTrailing  PositionState = "TRAILING"
	PosBreakeven PositionState = "BREAKEVEN_SET"
	PosClosing   PositionState = "CLOSING"
	PosClosed    PositionState = "CLOSED"
)

// Причины закрытия, уходят в журнал.
const (
	CloseStopHit   = "stop_hit"
	CloseTargetHit = "target_hit"
	CloseTimeStop  = "time_stop"
	CloseEmergency = "emergency_close"
	CloseBreaker   = "circuit_breaker"
	CloseOperator  = "operator_request"
	CloseExternal  = "closed_externally" // позиция исчезла на стороне брокера
)

// Position создаётся на FILLED и дальше принадлежит монитору.
// Stop двигается только в сторону прибыли, ослабление запрещено.
type Position struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Size   float64 `json:"size"`
	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`

	// RiskDist — дистанция до первоначального стопа, 1R. База всех
	// трейлинг-порогов.
	RiskDist   float64 `json:"risk_dist"`
	RiskAmount float64 `json:"risk_amount"`

	State       PositionState `json:"state"`
	MFE         float64       `json:"mfe"` // лучшая цена в нашу сторону
	MovedToBE   bool          `json:"moved_to_be"`
	TookPartial bool          `json:"took_partial"`
	BarsHeld    int           `json:"bars_held"`

	OrderClientID string `json:"order_client_id"`

	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
	ClosePrice  float64   `json:"close_price,omitempty"`
}

func (p *Position) Closed() bool { return p.State == PosClosed }

// MFER — максимальный ход в нашу сторону в единицах R.
func (p *Position) MFER() float64 {
	if p.RiskDist <= 0 {
		return 0
	}
	if p.Side == SideBuy {
		return (p.MFE - p.Entry) / p.RiskDist
	}
	return (p.Entry - p.MFE) / p.RiskDist
}
