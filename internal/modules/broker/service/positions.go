package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) Positions(ctx context.Context) ([]BrokerPosition, error) {
	var out []BrokerPosition
	if err := c.call(ctx, http.MethodGet, "/api/v1/positions", nil, &out); err != nil {
		return nil, fmt.Errorf("bridge positions: %w", err)
	}
	return out, nil
}

// OrderByClientID — статус ордера по нашему ключу идемпотентности.
// Единственный способ выяснить судьбу отправки после обрыва.
func (c *Client) OrderByClientID(ctx context.Context, clientID string) (OrderAck, error) {
	if clientID == "" {
		return OrderAck{}, fmt.Errorf("OrderByClientID: empty clientID")
	}
	var ack OrderAck
	path := "/api/v1/order?client_id=" + url.QueryEscape(clientID)
	if err := c.call(ctx, http.MethodGet, path, nil, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("OrderByClientID %s: %w", clientID, err)
	}
	return ack, nil
}
