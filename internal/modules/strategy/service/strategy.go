package service

import "github.com/xentristech/tradingpro-sub001/internal/models"

type Engine interface {
	// Свеча всегда даёт сигнал: на прогреве NEUTRAL/score 0 с причиной
	// insufficient_data, ошибок из OnCandle не бывает.
	// becameReady==true когда символ только что закончил прогрев.
	OnCandle(c models.Candle) (sig models.Signal, becameReady bool)

	IsReady(symbol string) bool
	Dump(symbol string) string
	Name() string
}
