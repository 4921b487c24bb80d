package indicator

// RSI по Уайлдеру: сглаживание alpha = 1/n, как в классическом расчёте.
type RSI struct {
	period  int
	prev    float64
	avgGain float64
	avgLoss float64
	n       int
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Update(price float64) float64 {
	if r.n == 0 {
		r.prev = price
		r.n++
		return 50
	}

	change := price - r.prev
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	r.prev = price

	alpha := 1.0 / float64(r.period)
	if r.n == 1 {
		r.avgGain, r.avgLoss = gain, loss
	} else {
		r.avgGain = (1-alpha)*r.avgGain + alpha*gain
		r.avgLoss = (1-alpha)*r.avgLoss + alpha*loss
	}
	r.n++

	return r.Value()
}

func (r *RSI) Value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - (100 / (1 + rs))
}

func (r *RSI) Ready() bool { return r.n > r.period }
