package models

import "time"

// Candle — закрытая свеча одного символа на одном таймфрейме.
// Feed гарантирует монотонный End по символу; дубликаты отбрасываются на входе.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}
