package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

func (c *Client) Instruments(ctx context.Context) ([]models.Instrument, error) {
	var out []models.Instrument
	if err := c.call(ctx, http.MethodGet, "/api/v1/symbols", nil, &out); err != nil {
		return nil, fmt.Errorf("bridge symbols: %w", err)
	}

	res := make([]models.Instrument, 0, len(out))
	for _, inst := range out {
		if inst.Symbol == "" {
			continue
		}
		// мост иногда отдаёт вырожденные метаданные по закрытым символам,
		// такие пропускаем сразу чтобы не ловить деление на ноль в сайзинге
		if inst.Point <= 0 || inst.LotStep <= 0 || inst.MinLot <= 0 {
			continue
		}
		if inst.TickSize <= 0 {
			inst.TickSize = inst.Point
		}
		res = append(res, inst)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("bridge symbols: empty list")
	}
	return res, nil
}
