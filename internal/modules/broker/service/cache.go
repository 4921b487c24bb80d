package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// InstrumentCache — метаданные символов в памяти. Загружается на старте,
// обновляется на интервале; сайзинг и округления не должны ходить за
// каждым тиком к брокеру.
type InstrumentCache struct {
	broker Broker

	mu    sync.RWMutex
	insts map[string]models.Instrument
}

func NewInstrumentCache(broker Broker) *InstrumentCache {
	return &InstrumentCache{
		broker: broker,
		insts:  map[string]models.Instrument{},
	}
}

func (c *InstrumentCache) Load(ctx context.Context) error {
	insts, err := c.broker.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("instrument cache load: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, inst := range insts {
		c.insts[inst.Symbol] = inst
	}
	return nil
}

// Instrument — метаданные символа. При промахе отдаёт вырожденный
// инструмент с нулевыми шагами: округления станут no-op, торговля
// не остановится из-за несвежего кэша.
func (c *InstrumentCache) Instrument(symbol string) models.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if inst, ok := c.insts[symbol]; ok {
		return inst
	}
	return models.Instrument{Symbol: symbol, ContractSize: 1, TradeAllowed: true}
}

// RefreshLoop обновляет кэш на интервале до отмены контекста.
func (c *InstrumentCache) RefreshLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := c.Load(ctx); err != nil {
				logger.Warn("[broker] instrument refresh: %v", err)
			}
		}
	}
}
