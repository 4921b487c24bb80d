package service

import (
	"context"
	"fmt"
	"net/http"
)

// ModifyStops переставляет SL/TP открытой позиции символа. Нулевое значение
// оставляет уровень как есть.
func (c *Client) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	if stop < 0 || target < 0 {
		return fmt.Errorf("ModifyStops %s: negative levels", symbol)
	}
	body := struct {
		Symbol string  `json:"symbol"`
		Stop   float64 `json:"sl"`
		Target float64 `json:"tp"`
	}{Symbol: symbol, Stop: stop, Target: target}

	if err := c.call(ctx, http.MethodPost, "/api/v1/order/modify", body, nil); err != nil {
		return fmt.Errorf("ModifyStops %s: %w", symbol, err)
	}
	return nil
}
