package service

import (
	"fmt"
	"sync"

	"github.com/xentristech/tradingpro-sub001/internal/indicator"
	"github.com/xentristech/tradingpro-sub001/internal/models"
)

type ScoredConfig struct {
	EMAFast    int
	EMASlow    int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	RSIPeriod  int
	ATRPeriod  int
	ADXPeriod  int

	BuyScore  float64 // score >= => BUY при бычьем выравнивании
	SellScore float64 // score <= => SELL при медвежьем

	WeightTrend      float64
	WeightMomentum   float64
	WeightOscillator float64
	WeightStrength   float64
}

// Scored — движок со взвешенным скором 0..100 из четырёх компонент:
// тренд (EMA fast/slow), импульс (MACD), осциллятор (RSI), сила тренда (ADX).
// Никаких часов и рандома внутри: одно и то же окно свечей всегда даёт
// один и тот же сигнал, на этом держится replay.
type Scored struct {
	mu  sync.Mutex
	cfg ScoredConfig

	states map[string]*symState
}

type symState struct {
	emaFast *indicator.EMA
	emaSlow *indicator.EMA
	macd    *indicator.MACD
	rsi     *indicator.RSI
	atr     *indicator.ATR
	adx     *indicator.ADX
	ready   bool
}

func NewScored(cfg ScoredConfig) *Scored {
	if cfg.WeightTrend+cfg.WeightMomentum+cfg.WeightOscillator+cfg.WeightStrength == 0 {
		cfg.WeightTrend, cfg.WeightMomentum, cfg.WeightOscillator, cfg.WeightStrength = 30, 25, 25, 20
	}
	if cfg.EMAFast <= 0 {
		cfg.EMAFast = 9
	}
	if cfg.EMASlow <= 0 {
		cfg.EMASlow = 21
	}
	if cfg.MACDFast <= 0 || cfg.MACDSlow <= 0 || cfg.MACDSignal <= 0 {
		cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal = 12, 26, 9
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ADXPeriod <= 0 {
		cfg.ADXPeriod = 14
	}
	if cfg.BuyScore <= 0 {
		cfg.BuyScore = 65
	}
	if cfg.SellScore <= 0 {
		cfg.SellScore = 35
	}
	return &Scored{
		cfg:    cfg,
		states: map[string]*symState{},
	}
}

func (s *Scored) Name() string { return "scored-v1" }

func (s *Scored) state(symbol string) *symState {
	st, ok := s.states[symbol]
	if !ok {
		st = &symState{
			emaFast: indicator.NewEMA(s.cfg.EMAFast),
			emaSlow: indicator.NewEMA(s.cfg.EMASlow),
			macd:    indicator.NewMACD(s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal),
			rsi:     indicator.NewRSI(s.cfg.RSIPeriod),
			atr:     indicator.NewATR(s.cfg.ATRPeriod),
			adx:     indicator.NewADX(s.cfg.ADXPeriod),
		}
		s.states[symbol] = st
	}
	return st
}

func (s *Scored) OnCandle(c models.Candle) (models.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(c.Symbol)

	fast := st.emaFast.Update(c.Close)
	slow := st.emaSlow.Update(c.Close)
	macd, macdSig, hist := st.macd.Update(c.Close)
	rsi := st.rsi.Update(c.Close)
	atr := st.atr.Update(c.High, c.Low, c.Close)
	adx := st.adx.Update(c.High, c.Low, c.Close)

	sig := models.Signal{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		Price:     c.Close,
		At:        c.End,
		Indicators: models.IndicatorValues{
			EMAFast:    fast,
			EMASlow:    slow,
			MACD:       macd,
			MACDSignal: macdSig,
			RSI:        rsi,
			ATR:        atr,
			ADX:        adx,
		},
	}

	// прогрев упирается в самый длинный lookback
	warm := st.emaFast.Ready() && st.emaSlow.Ready() && st.macd.Ready() &&
		st.rsi.Ready() && st.atr.Ready() && st.adx.Ready()
	if !warm {
		sig.Side = models.SideNeutral
		sig.Score = 0
		sig.Reason = models.SignalReasonWarmup
		return sig, false
	}
	becameReady := !st.ready
	st.ready = true

	score := s.score(fast, slow, hist, rsi, adx, atr)
	sig.Score = score

	bullish := fast > slow && hist > 0
	bearish := fast < slow && hist < 0

	switch {
	case score >= s.cfg.BuyScore && bullish:
		sig.Side = models.SideBuy
		sig.Reason = fmt.Sprintf("score=%.1f trend+macd bullish rsi=%.1f adx=%.1f", score, rsi, adx)
	case score <= s.cfg.SellScore && bearish:
		sig.Side = models.SideSell
		sig.Reason = fmt.Sprintf("score=%.1f trend+macd bearish rsi=%.1f adx=%.1f", score, rsi, adx)
	default:
		sig.Side = models.SideNeutral
		sig.Reason = fmt.Sprintf("score=%.1f no alignment", score)
	}
	return sig, becameReady
}

// score сводит компоненты в 0..100, где 50 — нейтрально, выше — бычье.
// Дистанции EMA и MACD нормируются на ATR, иначе скор зависел бы от
// абсолютной цены инструмента.
func (s *Scored) score(fast, slow, hist, rsi, adx, atr float64) float64 {
	trend := 50.0
	momentum := 50.0
	if atr > 0 {
		trend = 50 + 50*clamp((fast-slow)/atr, -1, 1)
		momentum = 50 + 50*clamp(hist/atr, -1, 1)
	}
	oscillator := rsi

	// ADX направления не знает: он усиливает ту сторону, куда смотрит тренд
	strength := 50.0
	dir := 0.0
	if fast > slow {
		dir = 1
	} else if fast < slow {
		dir = -1
	}
	strength = 50 + dir*clamp(adx, 0, 100)/2

	w := s.cfg
	total := w.WeightTrend + w.WeightMomentum + w.WeightOscillator + w.WeightStrength
	score := (trend*w.WeightTrend + momentum*w.WeightMomentum +
		oscillator*w.WeightOscillator + strength*w.WeightStrength) / total
	return clamp(score, 0, 100)
}

func (s *Scored) IsReady(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	return ok && st.ready
}

func (s *Scored) Dump(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		return symbol + ": no state"
	}
	return fmt.Sprintf("EMA=%.4f/%.4f MACD=%.5f RSI=%.1f ATR=%.5f ADX=%.1f ready=%v",
		st.emaFast.Value(), st.emaSlow.Value(), st.macd.Line(),
		st.rsi.Value(), st.atr.Value(), st.adx.Value(), st.ready)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
