package indicator

import "math"

// ATR по Уайлдеру. True range учитывает гэп к закрытию прошлой свечи:
// TR = max(h-l, |h-pc|, |l-pc|). Первые period значений — простое среднее.
type ATR struct {
	period    int
	prevClose float64
	sum       float64
	value     float64
	n         int
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Update(high, low, close float64) float64 {
	if a.n == 0 {
		a.prevClose = close
		a.n++
		return 0
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	a.prevClose = close

	if a.n <= a.period {
		a.sum += tr
		a.value = a.sum / float64(a.n)
	} else {
		a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	}
	a.n++

	return a.value
}

func (a *ATR) Value() float64 { return a.value }

func (a *ATR) Ready() bool { return a.n > a.period }
