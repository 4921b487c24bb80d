package service

import (
	"context"
	"errors"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	brokersvc "github.com/xentristech/tradingpro-sub001/internal/modules/broker/service"
	executorsvc "github.com/xentristech/tradingpro-sub001/internal/modules/executor/service"
	portfoliosvc "github.com/xentristech/tradingpro-sub001/internal/modules/portfolio/service"
	risksvc "github.com/xentristech/tradingpro-sub001/internal/modules/risk/service"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
	"github.com/xentristech/tradingpro-sub001/pkg/tracing"
)

type Journal interface {
	Decision(ctx context.Context, d models.RiskDecision) error
}

// Pipeline сводит сигнал, риск и исполнение: сигнал -> вердикт -> заявка.
// Отказы риска и отказы исполнителя это нормальные исходы, не ошибки
// воркера; падать им не с чего.
type Pipeline struct {
	risk  *risksvc.Engine
	book  *portfoliosvc.Book
	insts *brokersvc.InstrumentCache
	exec  *executorsvc.Executor
	jrnl  Journal

	lastAt map[string]time.Time // символ -> время последнего принятого сигнала
}

func New(risk *risksvc.Engine, book *portfoliosvc.Book, insts *brokersvc.InstrumentCache,
	exec *executorsvc.Executor, jrnl Journal) *Pipeline {
	return &Pipeline{
		risk: risk, book: book, insts: insts, exec: exec, jrnl: jrnl,
		lastAt: map[string]time.Time{},
	}
}

func (p *Pipeline) Run(ctx context.Context, signals <-chan models.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			p.OnSignal(ctx, sig)
		}
	}
}

func (p *Pipeline) OnSignal(ctx context.Context, sig models.Signal) {
	// сигнал старше уже обработанного бара того же символа перекрыт,
	// решений по нему не принимаем
	if last, ok := p.lastAt[sig.Symbol]; ok && !sig.At.After(last) {
		d := models.RiskDecision{
			Symbol: sig.Symbol, Side: sig.Side, SignalAt: sig.At,
			Reason: models.RejectStaleSignal,
		}
		metrics.DecisionsTotal.WithLabelValues(d.Reason).Inc()
		if p.jrnl != nil {
			if err := p.jrnl.Decision(ctx, d); err != nil {
				logger.Warn("[PIPE] journal decision %s: %v", d.Symbol, err)
			}
		}
		logger.Info("[PIPE] %s %s rejected: %s", d.Symbol, d.Side, d.Reason)
		return
	}
	p.lastAt[sig.Symbol] = sig.At

	span, ctx := tracing.StageSpan(ctx, "risk_assess", sig.Symbol)
	d := p.risk.Assess(sig, p.book.Snapshot(), p.insts.Instrument(sig.Symbol))
	span.Finish()

	outcome := d.Reason
	if d.Approved {
		outcome = "approved"
	}
	metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
	if p.jrnl != nil {
		if err := p.jrnl.Decision(ctx, d); err != nil {
			logger.Warn("[PIPE] journal decision %s: %v", d.Symbol, err)
		}
	}

	if !d.Approved {
		logger.Info("[PIPE] %s %s rejected: %s", d.Symbol, d.Side, d.Reason)
		return
	}

	span, ctx = tracing.StageSpan(ctx, "order_submit", sig.Symbol)
	_, err := p.exec.Submit(ctx, d)
	span.Finish()

	switch {
	case err == nil:

	case errors.Is(err, executorsvc.ErrDuplicateOrder),
		errors.Is(err, executorsvc.ErrCoolingOff),
		errors.Is(err, executorsvc.ErrOpsPaused):
		// штатные отказы исполнителя: гонка сигналов, охлаждение, пауза
		logger.Info("[PIPE] %s submit skipped: %v", d.Symbol, err)

	default:
		logger.Error("[PIPE] %s submit failed: %v", d.Symbol, err)
	}
}
