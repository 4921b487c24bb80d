package service

import (
	"context"
	"sync"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

type ServiceNotifier interface {
	Sendf(format string, args ...any)
}

type Journal interface {
	Candle(ctx context.Context, c models.Candle) error
	Signal(ctx context.Context, s models.Signal) error
}

type StateSink interface {
	TouchBar(t time.Time)
	PushSignal(s models.Signal)
}

type HubConfig struct {
	Symbols       []string
	BuyScore      float64
	SellScore     float64
	ProgressEvery time.Duration
	DropPolicy    string // drop_oldest | drop_same_symbol
}

// Hub гоняет закрытые свечи через движок и раздаёт результаты: сигналы в
// очередь пайплайна, свечи в монитор, всё подряд в журнал. Переполненная
// очередь сигналов не блокирует хаб — работает политика дропа.
type Hub struct {
	cfg     HubConfig
	engine  Engine
	advisor *Advisor
	n       ServiceNotifier
	jrnl    Journal
	sink    StateSink

	out chan models.Signal
	tap chan<- models.Candle // свечи для монитора

	mu            sync.Mutex
	readyCnt      int
	warmupDone    bool
	warmupMsgSent bool
	lastProgress  time.Time
}

func NewHub(cfg HubConfig, engine Engine, advisor *Advisor, n ServiceNotifier,
	jrnl Journal, sink StateSink, out chan models.Signal, tap chan<- models.Candle) *Hub {
	return &Hub{
		cfg:     cfg,
		engine:  engine,
		advisor: advisor,
		n:       n,
		jrnl:    jrnl,
		sink:    sink,
		out:     out,
		tap:     tap,
	}
}

func (h *Hub) OnCandle(ctx context.Context, c models.Candle) {
	if h.sink != nil {
		h.sink.TouchBar(c.End)
	}
	if h.jrnl != nil {
		if err := h.jrnl.Candle(ctx, c); err != nil {
			logger.Warn("[STRAT] journal candle %s: %v", c.Symbol, err)
		}
	}

	sig, becameReady := h.engine.OnCandle(c)

	if becameReady {
		h.onBecameReady(sig.Symbol)
	} else if sig.Reason == models.SignalReasonWarmup {
		h.maybeWarmupProgress()
	}

	// монитору нужна каждая свеча открытых символов, неблокирующе
	select {
	case h.tap <- c:
	default:
		metrics.BarsDropped.WithLabelValues("monitor_tap_full").Inc()
	}

	// на прогреве сигналы не журналим и не отдаём
	if sig.Reason == models.SignalReasonWarmup {
		return
	}

	if h.advisor != nil && sig.Side != models.SideNeutral {
		blended := h.advisor.Blend(ctx, sig, h.cfg.BuyScore, h.cfg.SellScore)
		if !blended.AIUsed {
			metrics.AIFallbacks.Inc()
			logger.Warn("[STRAT] ai advisor unavailable for %s, technical-only score %.1f", sig.Symbol, sig.Score)
		}
		sig = blended
	}

	metrics.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Side)).Inc()
	if h.sink != nil {
		h.sink.PushSignal(sig)
	}
	if h.jrnl != nil {
		if err := h.jrnl.Signal(ctx, sig); err != nil {
			logger.Warn("[STRAT] journal signal %s: %v", sig.Symbol, err)
		}
	}

	if sig.Side != models.SideBuy && sig.Side != models.SideSell {
		return
	}

	select {
	case h.out <- sig:
		logger.Info("[SIGNAL] %s %s score=%.1f @ %.5f", sig.Symbol, sig.Side, sig.Score, sig.Price)
	default:
		h.dropOnFull(sig)
	}
}

// dropOnFull — очередь полна. drop_oldest выталкивает старейший сигнал,
// drop_same_symbol заменяет ждущий сигнал того же символа свежим: решение
// риска никогда не опирается на сигнал, который уже перекрыт новым баром.
func (h *Hub) dropOnFull(sig models.Signal) {
	switch h.cfg.DropPolicy {
	case "drop_oldest":
		select {
		case old := <-h.out:
			metrics.BarsDropped.WithLabelValues("signal_drop_oldest").Inc()
			logger.Warn("[STRAT] queue full, dropped oldest %s to fit %s", old.Symbol, sig.Symbol)
		default:
		}
		select {
		case h.out <- sig:
			return
		default:
		}
	default: // drop_same_symbol
		if h.replaceSameSymbol(sig) {
			return
		}
	}
	metrics.BarsDropped.WithLabelValues("signal_queue_full").Inc()
	if h.n != nil {
		h.n.Sendf("⚠️ signal queue full, drop %s %s @ %.5f", sig.Symbol, sig.Side, sig.Price)
	}
}

// replaceSameSymbol прокручивает очередь один раз: сигнал того же символа
// подменяется свежим на своём месте, чужие возвращаются в исходном порядке.
// Если своего в очереди нет, новый сигнал ставится в освободившийся слот.
func (h *Hub) replaceSameSymbol(sig models.Signal) bool {
	placed := false
	for i, n := 0, len(h.out); i < n; i++ {
		select {
		case old := <-h.out:
			if !placed && old.Symbol == sig.Symbol {
				metrics.BarsDropped.WithLabelValues("signal_superseded").Inc()
				logger.Warn("[STRAT] queue full, %s signal from %s superseded by newer bar",
					old.Symbol, old.At.Format(time.RFC3339))
				old = sig
				placed = true
			}
			select {
			case h.out <- old:
			default:
			}
		default:
			// потребитель успел разгрузить очередь
		}
	}
	if placed {
		return true
	}
	select {
	case h.out <- sig:
		return true
	default:
		return false
	}
}

func (h *Hub) onBecameReady(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.readyCnt++
	total := len(h.cfg.Symbols)

	if !h.warmupMsgSent {
		h.warmupMsgSent = true
		h.lastProgress = time.Now()
		if h.n != nil {
			h.n.Sendf("🔥 Warmup started | engine=%s | ожидаем символов: %d", h.engine.Name(), total)
		}
	}

	if !h.warmupDone && h.readyCnt >= total {
		h.warmupDone = true
		if h.n != nil {
			h.n.Sendf("✅ Warmup finished: %d/%d ready. Теперь ждём сигналы.", h.readyCnt, total)
		}
	}
	_ = symbol
}

func (h *Hub) maybeWarmupProgress() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.warmupMsgSent || h.warmupDone || h.n == nil {
		return
	}
	if h.cfg.ProgressEvery <= 0 || time.Since(h.lastProgress) < h.cfg.ProgressEvery {
		return
	}
	h.n.Sendf("⏳ Warmup progress: %d/%d ready", h.readyCnt, len(h.cfg.Symbols))
	h.lastProgress = time.Now()
}
