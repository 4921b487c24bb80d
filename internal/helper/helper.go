package helper

import (
	"math"
	"strings"
	"time"
)

func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "30m":
		return "30m"
	case "15m":
		return "15m"
	case "5m":
		return "5m"
	case "1m":
		return "1m"
	default:
		return s
	}
}

// TFDuration — длительность таймфрейма, для вычисления End закрытой свечи.
func TFDuration(tf string) time.Duration {
	switch NormTF(tf) {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// FloorToLotStep — объём вниз до шага лота, чтобы не превысить одобренный риск.
func FloorToLotStep(sz, step float64) float64 {
	if step <= 0 {
		return sz
	}
	return math.Floor(sz/step+1e-9) * step
}
