package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

func (c *Client) PlaceMarket(ctx context.Context, req OrderRequest) (OrderAck, error) {
	switch strings.ToUpper(req.Side) {
	case "BUY", "SELL":
	default:
		return OrderAck{}, fmt.Errorf("PlaceMarket: unsupported side=%q", req.Side)
	}
	if req.Size <= 0 {
		return OrderAck{}, fmt.Errorf("PlaceMarket: size <= 0")
	}
	if req.ClientID == "" {
		return OrderAck{}, fmt.Errorf("PlaceMarket: empty clientID")
	}

	var ack OrderAck
	if err := c.call(ctx, http.MethodPost, "/api/v1/order/market", req, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("PlaceMarket %s: %w", req.Symbol, err)
	}

	// мост обязан вернуть тот же clientID, иначе сверка после таймаутов
	// теряет смысл
	if ack.ClientID != req.ClientID {
		return OrderAck{}, fmt.Errorf("PlaceMarket %s: clientID mismatch: sent=%s got=%s",
			req.Symbol, req.ClientID, ack.ClientID)
	}
	if ack.Status == AckFilled && ack.FillPrice <= 0 {
		return OrderAck{}, fmt.Errorf("PlaceMarket %s: filled without price, ticket=%s",
			req.Symbol, ack.BrokerID)
	}
	return ack, nil
}
