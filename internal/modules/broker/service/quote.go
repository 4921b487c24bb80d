package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

func (c *Client) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var out models.Quote
	path := "/api/v1/quote?symbol=" + url.QueryEscape(symbol)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return models.Quote{}, fmt.Errorf("bridge quote %s: %w", symbol, err)
	}
	if out.Bid <= 0 || out.Ask <= 0 || out.Ask < out.Bid {
		return models.Quote{}, fmt.Errorf("bridge quote %s: bad bid/ask %.5f/%.5f", symbol, out.Bid, out.Ask)
	}
	out.Symbol = symbol
	return out, nil
}
