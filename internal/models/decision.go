package models

import "time"

// Причины отказа риск-менеджера. Машиночитаемые, уходят в журнал и в алерты.
const (
	RejectBreakerActive  = "circuit_breaker_active"
	RejectMaxPositions   = "max_positions"
	RejectPositionExists = "position_exists"
	RejectSymbolBlocked  = "symbol_not_allowed"
	RejectInvalidStop    = "invalid_stop_distance"
	RejectRiskCap        = "risk_cap_exceeded"
	RejectPortfolioRisk  = "portfolio_risk_cap"
	RejectZeroEquity     = "no_equity"
	RejectStaleSignal    = "stale_signal"
	RejectNoDirection    = "no_direction"
)

// RiskDecision — вердикт по одному сигналу. Неизменяемый, пишется в журнал
// и при Approved уходит в executor как заявка.
type RiskDecision struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	SignalAt time.Time `json:"signal_at"` // ссылка на сигнал: symbol+at

	Approved   bool    `json:"approved"`
	Reason     string  `json:"reason,omitempty"` // при отказе: одна из Reject* констант
	Size       float64 `json:"size"`
	Entry      float64 `json:"entry"` // ожидаемая цена входа (close сигнальной свечи)
	Stop       float64 `json:"stop"`
	Target     float64 `json:"target"`
	RiskAmount float64 `json:"risk_amount"` // сколько денег теряем при выносе стопа
}
