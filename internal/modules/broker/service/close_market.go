package service

import (
	"context"
	"fmt"
	"net/http"
)

// CloseMarket закрывает позицию по рынку. size меньше объёма позиции
// закрывает частично.
func (c *Client) CloseMarket(ctx context.Context, symbol string, size float64) (OrderAck, error) {
	if size <= 0 {
		return OrderAck{}, fmt.Errorf("CloseMarket %s: size <= 0", symbol)
	}
	body := struct {
		Symbol string  `json:"symbol"`
		Size   float64 `json:"volume"`
	}{Symbol: symbol, Size: size}

	var ack OrderAck
	if err := c.call(ctx, http.MethodPost, "/api/v1/order/close", body, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("CloseMarket %s: %w", symbol, err)
	}
	return ack, nil
}
