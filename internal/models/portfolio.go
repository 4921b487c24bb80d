package models

import "time"

// PortfolioSnapshot — копия состояния портфеля на момент вызова.
// Снимок делает владелец состояния; читатели (risk, health, телеграм)
// работают с копией и никого не блокируют.
type PortfolioSnapshot struct {
	Equity     float64    `json:"equity"`
	HighWater  float64    `json:"high_water"`
	Drawdown   float64    `json:"drawdown_pct"` // от high-water, в процентах
	OpenRisk   float64    `json:"open_risk"`    // суммарный риск открытых позиций, $
	BreakerOn  bool       `json:"breaker_on"`
	BreakerAt  time.Time  `json:"breaker_at,omitempty"`
	Positions  []Position `json:"positions"`
	PendingSym []string   `json:"pending_symbols"` // символы с заявкой в полёте
	TakenAt    time.Time  `json:"taken_at"`
}

func (s PortfolioSnapshot) OpenCount() int { return len(s.Positions) }

func (s PortfolioSnapshot) HasOpen(symbol string) bool {
	for i := range s.Positions {
		if s.Positions[i].Symbol == symbol {
			return true
		}
	}
	return false
}

func (s PortfolioSnapshot) HasPending(symbol string) bool {
	for _, p := range s.PendingSym {
		if p == symbol {
			return true
		}
	}
	return false
}
