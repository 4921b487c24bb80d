package indicator

// MACD 12/26/9 в потоковом виде: линия = EMAfast - EMAslow,
// сигнальная = EMA(signal) от линии.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Update(price float64) (macd, signal, hist float64) {
	f := m.fast.Update(price)
	s := m.slow.Update(price)
	macd = f - s
	signal = m.signal.Update(macd)
	return macd, signal, macd - signal
}

func (m *MACD) Line() float64   { return m.fast.Value() - m.slow.Value() }
func (m *MACD) Signal() float64 { return m.signal.Value() }

func (m *MACD) Ready() bool { return m.slow.Ready() && m.signal.Ready() }
