package indicator

// EMA — экспоненциальное среднее, k = 2/(n+1). Прогрев: n значений.
type EMA struct {
	period int
	k      float64
	value  float64
	n      int
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		k:      2.0 / float64(period+1),
	}
}

func (e *EMA) Update(price float64) float64 {
	if e.n == 0 {
		e.value = price
	} else {
		e.value = e.value + e.k*(price-e.value)
	}
	e.n++
	return e.value
}

func (e *EMA) Value() float64 { return e.value }

func (e *EMA) Ready() bool { return e.n >= e.period }
