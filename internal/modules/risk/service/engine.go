package service

import (
	"github.com/xentristech/tradingpro-sub001/internal/helper"
	"github.com/xentristech/tradingpro-sub001/internal/models"
)

type Settings struct {
	RiskPct          float64 // % equity под риском на сделку
	MaxRiskPct       float64 // жёсткий потолок RiskPct
	MaxOpenPositions int
	PortfolioRiskPct float64 // суммарный риск всех открытых, % equity
	RewardRR         float64 // TP = RR * дистанция до SL
	StopATRMult      float64 // SL = ATR * mult
}

// Engine — чистая функция над сигналом и снапшотом: ни часов, ни I/O,
// ни внутреннего состояния. Одинаковый вход всегда даёт одинаковый вердикт.
type Engine struct {
	st Settings
}

func NewEngine(st Settings) *Engine {
	if st.StopATRMult <= 0 {
		st.StopATRMult = 1.0
	}
	if st.RewardRR <= 0 {
		st.RewardRR = 1.5
	}
	return &Engine{st: st}
}

func (e *Engine) Assess(sig models.Signal, snap models.PortfolioSnapshot, inst models.Instrument) models.RiskDecision {
	d := models.RiskDecision{
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		SignalAt: sig.At,
		Entry:    sig.Price,
	}

	reject := func(reason string) models.RiskDecision {
		d.Approved = false
		d.Reason = reason
		d.Size = 0
		return d
	}

	// порядок проверок фиксированный: сначала глобальные запреты,
	// потом лимиты, потом математика размера
	if snap.BreakerOn {
		return reject(models.RejectBreakerActive)
	}
	if sig.Side != models.SideBuy && sig.Side != models.SideSell {
		return reject(models.RejectNoDirection)
	}
	if !inst.TradeAllowed {
		return reject(models.RejectSymbolBlocked)
	}
	if snap.HasOpen(sig.Symbol) || snap.HasPending(sig.Symbol) {
		return reject(models.RejectPositionExists)
	}
	if len(snap.Positions) >= e.st.MaxOpenPositions {
		return reject(models.RejectMaxPositions)
	}
	if snap.Equity <= 0 {
		return reject(models.RejectZeroEquity)
	}

	stopDist := sig.Indicators.ATR * e.st.StopATRMult
	if stopDist <= 0 || sig.Price <= 0 {
		return reject(models.RejectInvalidStop)
	}

	riskPct := e.st.RiskPct
	if e.st.MaxRiskPct > 0 && riskPct > e.st.MaxRiskPct {
		riskPct = e.st.MaxRiskPct
	}
	riskAmount := snap.Equity * riskPct / 100

	if e.st.PortfolioRiskPct > 0 {
		limit := snap.Equity * e.st.PortfolioRiskPct / 100
		if snap.OpenRisk+riskAmount > limit {
			return reject(models.RejectPortfolioRisk)
		}
	}

	// стоп на тик в безопасную сторону: чуть дальше, не ближе
	var stop, target float64
	if sig.Side == models.SideBuy {
		stop = helper.RoundDownToTick(sig.Price-stopDist, inst.TickSize)
		target = helper.RoundDownToTick(sig.Price+e.st.RewardRR*stopDist, inst.TickSize)
	} else {
		stop = helper.RoundUpToTick(sig.Price+stopDist, inst.TickSize)
		target = helper.RoundUpToTick(sig.Price-e.st.RewardRR*stopDist, inst.TickSize)
	}
	if stop <= 0 {
		return reject(models.RejectInvalidStop)
	}

	// размер от эффективной дистанции после округления: полный вынос стопа
	// теряет ровно riskAmount, не больше
	effDist := stop - sig.Price
	if sig.Side == models.SideBuy {
		effDist = sig.Price - stop
	}
	if effDist <= 0 {
		return reject(models.RejectInvalidStop)
	}

	cs := inst.ContractSize
	if cs <= 0 {
		cs = 1
	}
	size := riskAmount / (effDist * cs)
	size = helper.FloorToLotStep(size, inst.LotStep)
	if size <= 0 || (inst.MinLot > 0 && size < inst.MinLot) {
		// поднять до MinLot нельзя: это превысило бы одобренный риск
		return reject(models.RejectRiskCap)
	}

	d.Approved = true
	d.Size = size
	d.Stop = stop
	d.Target = target
	d.RiskAmount = size * effDist * cs
	return d
}
