package indicator

import "math"

// ADX по Уайлдеру: сглаженные +DM/-DM/TR дают +DI/-DI, из них DX,
// ADX — сглаженный DX. Прогрев двойной: period на DI и ещё period на ADX.
type ADX struct {
	period   int
	prevHigh float64
	prevLow  float64
	prevCls  float64

	smPlusDM  float64
	smMinusDM float64
	smTR      float64

	value float64
	n     int
	nDX   int
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Update(high, low, close float64) float64 {
	if a.n == 0 {
		a.prevHigh, a.prevLow, a.prevCls = high, low, close
		a.n++
		return 0
	}

	upMove := high - a.prevHigh
	downMove := a.prevLow - low

	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevCls), math.Abs(low-a.prevCls)))
	a.prevHigh, a.prevLow, a.prevCls = high, low, close

	p := float64(a.period)
	if a.n <= a.period {
		// накопление
		a.smPlusDM += plusDM
		a.smMinusDM += minusDM
		a.smTR += tr
	} else {
		a.smPlusDM = a.smPlusDM - a.smPlusDM/p + plusDM
		a.smMinusDM = a.smMinusDM - a.smMinusDM/p + minusDM
		a.smTR = a.smTR - a.smTR/p + tr
	}
	a.n++

	if a.n <= a.period || a.smTR == 0 {
		return a.value
	}

	plusDI := 100 * a.smPlusDM / a.smTR
	minusDI := 100 * a.smMinusDM / a.smTR

	sum := plusDI + minusDI
	if sum == 0 {
		return a.value
	}
	dx := 100 * math.Abs(plusDI-minusDI) / sum

	if a.nDX == 0 {
		a.value = dx
	} else {
		a.value = (a.value*(p-1) + dx) / p
	}
	a.nDX++

	return a.value
}

func (a *ADX) Value() float64 { return a.value }

func (a *ADX) Ready() bool { return a.nDX >= a.period }
