package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Advisor — внешний скоринг поверх техники. Любой его отказ (таймаут,
// мусор в ответе, 5xx) не фатален: сигнал уходит на чистой технике.
type Advisor struct {
	http   *http.Client
	url    string
	weight float64 // доля AI в итоговом скоре, 0..1
}

func NewAdvisor(url string, timeout time.Duration, weight float64) *Advisor {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	return &Advisor{
		http:   &http.Client{Timeout: timeout},
		url:    url,
		weight: weight,
	}
}

type adviceRequest struct {
	Symbol     string                 `json:"symbol"`
	Timeframe  string                 `json:"timeframe"`
	Price      float64                `json:"price"`
	Side       string                 `json:"side"`
	Score      float64                `json:"score"`
	Indicators models.IndicatorValues `json:"indicators"`
}

type advice struct {
	Side       models.Side
	Confidence float64 // 0..100
}

// Blend примешивает мнение AI к техническому сигналу. Согласие усиливает
// скор, несогласие ослабляет; порог направления применяется заново.
func (a *Advisor) Blend(ctx context.Context, sig models.Signal, buyScore, sellScore float64) models.Signal {
	if a == nil || a.url == "" || sig.Side == models.SideNeutral {
		return sig
	}

	adv, err := a.ask(ctx, sig)
	if err != nil {
		// warn на вызывающей стороне, здесь просто техника
		return sig
	}

	blended := sig.Score
	if adv.Side == sig.Side {
		blended = (1-a.weight)*sig.Score + a.weight*adv.Confidence
	} else {
		blended = (1 - a.weight) * sig.Score
	}
	blended = clamp(blended, 0, 100)

	sig.AIScore = adv.Confidence
	sig.AIUsed = true
	sig.Score = blended

	// после примеси направление должно снова пройти порог
	if sig.Side == models.SideBuy && blended < buyScore {
		sig.Side = models.SideNeutral
		sig.Reason = fmt.Sprintf("ai damped score to %.1f", blended)
	}
	if sig.Side == models.SideSell && blended > sellScore {
		sig.Side = models.SideNeutral
		sig.Reason = fmt.Sprintf("ai damped score to %.1f", blended)
	}
	return sig
}

func (a *Advisor) ask(ctx context.Context, sig models.Signal) (advice, error) {
	payload, err := sonic.Marshal(adviceRequest{
		Symbol:     sig.Symbol,
		Timeframe:  sig.Timeframe,
		Price:      sig.Price,
		Side:       string(sig.Side),
		Score:      sig.Score,
		Indicators: sig.Indicators,
	})
	if err != nil {
		return advice{}, fmt.Errorf("ai marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return advice{}, fmt.Errorf("ai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return advice{}, fmt.Errorf("ai call: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return advice{}, fmt.Errorf("ai http %d: %s", resp.StatusCode, string(body))
	}
	return parseAdvice(body)
}

// parseAdvice понимает два формата: JSON {"direction","confidence"} и
// свободный текст локальной модели, где ищем BUY/SELL и число.
func parseAdvice(body []byte) (advice, error) {
	var jr struct {
		Direction  string  `json:"direction"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(body, &jr); err == nil && jr.Direction != "" {
		side, ok := parseSide(jr.Direction)
		if !ok {
			return advice{}, fmt.Errorf("ai direction %q", jr.Direction)
		}
		return advice{Side: side, Confidence: clamp(jr.Confidence, 0, 100)}, nil
	}

	text := strings.ToUpper(string(body))
	var side models.Side
	switch {
	case strings.Contains(text, "BUY") && !strings.Contains(text, "SELL"):
		side = models.SideBuy
	case strings.Contains(text, "SELL") && !strings.Contains(text, "BUY"):
		side = models.SideSell
	default:
		return advice{}, fmt.Errorf("ai free text without clear direction")
	}

	conf := 50.0
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}) {
		if v, err := strconv.ParseFloat(f, 64); err == nil && v >= 0 && v <= 100 {
			conf = v
			break
		}
	}
	return advice{Side: side, Confidence: conf}, nil
}

func parseSide(s string) (models.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return models.SideBuy, true
	case "SELL", "SHORT":
		return models.SideSell, true
	case "NEUTRAL", "HOLD", "NONE":
		return models.SideNeutral, true
	}
	return models.SideNone, false
}
