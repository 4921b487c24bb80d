package models

import "time"

// Side как в раннере: "BUY"/"SELL", "NEUTRAL" для сигналов без направления.
type Side string

const (
	SideNone    Side = ""
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideNeutral Side = "NEUTRAL"
)

// IndicatorValues — значения индикаторов на момент сигнала.
// Пишутся в журнал как есть, чтобы replay мог сверить расчёт.
type IndicatorValues struct {
	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	RSI        float64 `json:"rsi"`
	ATR        float64 `json:"atr"`
	ADX        float64 `json:"adx"`
}

// Signal — результат оценки одного закрытого бара.
// Неизменяемый: новый бар порождает новый сигнал, старый вытесняется.
// At берётся из End свечи, не из часов, поэтому replay даёт байт-в-байт
// те же сигналы.
type Signal struct {
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Side       Side            `json:"side"`
	Score      float64         `json:"score"` // 0..100
	Price      float64         `json:"price"` // close свечи
	Indicators IndicatorValues `json:"indicators"`
	Reason     string          `json:"reason"`
	At         time.Time       `json:"at"`

	// Примесь внешнего скоринга. При AIUsed=false Score чисто технический
	// и полностью воспроизводится в replay.
	AIScore float64 `json:"ai_score,omitempty"`
	AIUsed  bool    `json:"ai_used,omitempty"`
}

const (
	SignalReasonWarmup = "insufficient_data"
)
