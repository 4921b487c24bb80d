package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Connect проверяет что мост жив и авторизован в терминале.
func (c *Client) Connect(ctx context.Context) error {
	var out struct {
		Connected bool   `json:"connected"`
		Account   string `json:"account"`
		Broker    string `json:"broker"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/ping", nil, &out); err != nil {
		return fmt.Errorf("bridge ping: %w", err)
	}
	if !out.Connected {
		return fmt.Errorf("%w: terminal offline for account %s", ErrNotConnected, out.Account)
	}
	return nil
}

func (c *Client) Account(ctx context.Context) (models.AccountInfo, error) {
	var out models.AccountInfo
	if err := c.call(ctx, http.MethodGet, "/api/v1/account", nil, &out); err != nil {
		return models.AccountInfo{}, fmt.Errorf("bridge account: %w", err)
	}
	if out.Equity <= 0 {
		return models.AccountInfo{}, fmt.Errorf("bridge account: equity <= 0: %.2f", out.Equity)
	}
	return out, nil
}
