package service

import (
	"fmt"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// trailDecision — что сделать с позицией по итогам свечи. Пустое значение
// означает "ничего".
type trailDecision struct {
	moveStop bool
	newStop  float64
	newState models.PositionState
	setBE    bool

	partialFrac float64 // 0 => без частичной фиксации

	close  bool
	reason string
}

// decideTrail — чистая функция сопровождения: позиция + пороги -> решение.
// Стоп двигается только в сторону прибыли и только если новый уровень
// лучше минимум на MinImproveR; ослабление невозможно по построению.
func decideTrail(p models.Position, cfg models.TrailingConfig) trailDecision {
	if !cfg.Enabled {
		return trailDecision{}
	}
	R := p.RiskDist
	if R <= 0 || p.Entry <= 0 || p.Stop <= 0 {
		return trailDecision{}
	}
	if p.State == models.PosClosing || p.State == models.PosClosed {
		return trailDecision{}
	}

	long := p.Side == models.SideBuy
	mfeR := p.MFER()

	// тайм-стоп: позиция стоит N баров и так и не прошла минимальный ход
	if cfg.TimeStopBars > 0 && cfg.TimeStopMinMFER > 0 &&
		p.BarsHeld >= cfg.TimeStopBars && mfeR < cfg.TimeStopMinMFER {
		return trailDecision{
			close:  true,
			reason: models.CloseTimeStop,
		}
	}

	// частичная фиксация, один раз за жизнь позиции
	if cfg.PartialEnabled && !p.TookPartial &&
		mfeR >= cfg.PartialTriggerR && cfg.PartialCloseFrac > 0 && cfg.PartialCloseFrac < 1 {
		return trailDecision{
			partialFrac: cfg.PartialCloseFrac,
		}
	}

	improves := func(cand float64) bool {
		if long {
			return cand-p.Stop >= cfg.MinImproveR*R
		}
		return p.Stop-cand >= cfg.MinImproveR*R
	}

	dir := 1.0
	if !long {
		dir = -1.0
	}

	// кандидаты от слабого к сильному, берём лучший проходящий
	var best float64
	haveBest := false
	state := p.State
	setBE := false
	reason := ""

	consider := func(cand float64, newState models.PositionState, be bool, why string) {
		if !improves(cand) {
			return
		}
		if haveBest {
			if long && cand <= best {
				return
			}
			if !long && cand >= best {
				return
			}
		}
		best, haveBest = cand, true
		state = newState
		setBE = setBE || be
		reason = why
	}

	// BE: стоп в безубыток, единожды
	if !p.MovedToBE && mfeR >= cfg.BETriggerR {
		cand := p.Entry + dir*cfg.BEOffsetR*R
		consider(cand, models.PosBreakeven, true, fmt.Sprintf("BE@%.1fR", cfg.BETriggerR))
	}

	// lock: зафиксировать часть хода
	if mfeR >= cfg.LockTriggerR && cfg.LockOffsetR > 0 {
		cand := p.Entry + dir*cfg.LockOffsetR*R
		consider(cand, trailingState(p.State), false, fmt.Sprintf("lock %.1fR", cfg.LockOffsetR))
	}

	// trail: ratchet в одном R позади лучшей цены
	if mfeR >= cfg.TrailTriggerR {
		cand := p.MFE - dir*R
		consider(cand, models.PosTrailing, false, "trail 1R behind MFE")
	}

	if !haveBest {
		return trailDecision{}
	}
	return trailDecision{
		moveStop: true,
		newStop:  best,
		newState: state,
		setBE:    setBE,
		reason:   reason,
	}
}

// trailingState: lock не понижает BREAKEVEN_SET обратно в OPENED.
func trailingState(cur models.PositionState) models.PositionState {
	if cur == models.PosBreakeven {
		return models.PosBreakeven
	}
	return models.PosTrailing
}
