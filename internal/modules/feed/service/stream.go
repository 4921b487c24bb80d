package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xentristech/tradingpro-sub001/internal/helper"
	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/backoff"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Stream — канал нормализованных закрытых свечей, вход всего пайплайна.
type Stream chan models.Candle

type ServiceNotifier interface {
	Sendf(format string, args ...any)
}

type FeedState interface {
	SetFeedConnected(v bool)
}

// PriceMarker реализуется paper-брокером: каждая свеча двигает отметку
// цены, на которой исполняются его SL/TP.
type PriceMarker interface {
	MarkPrice(symbol string, px float64)
}

type Config struct {
	WSURL     string
	Symbols   []string
	Timeframe string
}

// Client — WS-стример моста: одно соединение на все символы, batch
// subscribe, keepalive ping, reconnect с backoff. Неподтверждённые свечи
// пропускаются, End по символу строго растёт.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	n      ServiceNotifier
	state  FeedState
	marker PriceMarker

	mu      sync.Mutex
	lastEnd map[string]time.Time
}

func NewClient(cfg Config, n ServiceNotifier, state FeedState, marker PriceMarker) *Client {
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		n:       n,
		state:   state,
		marker:  marker,
		lastEnd: map[string]time.Time{},
	}
}

// Run крутится до отмены контекста: dial -> subscribe -> read-loop,
// на любой ошибке пересоединение. Ошибку наружу не возвращает — обрыв
// фида это DEGRADED, не CRASHED.
func (c *Client) Run(ctx context.Context, out Stream) error {
	if c.n != nil {
		c.n.Sendf("🚀 Feed: стример запущен | tf=%s | символов: %d", c.cfg.Timeframe, len(c.cfg.Symbols))
	}

	bo := backoff.Backoff{Base: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.2}
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.runConn(ctx, out); err != nil {
			attempt++
			if c.state != nil {
				c.state.SetFeedConnected(false)
			}
			logger.Warn("[FEED] connection lost: %v (reconnect attempt %d)", err, attempt)
			if err := bo.Sleep(ctx, attempt); err != nil {
				return nil
			}
			continue
		}
		// чистый выход read-loop бывает только по ctx
		return nil
	}
}

func (c *Client) runConn(ctx context.Context, out Stream) error {
	logger.Info("[FEED] connect %s, %d symbols", c.cfg.WSURL, len(c.cfg.Symbols))
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	channel := "candle" + c.cfg.Timeframe
	args := make([]map[string]string, 0, len(c.cfg.Symbols))
	for _, s := range c.cfg.Symbols {
		args = append(args, map[string]string{"channel": channel, "symbol": s})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return err
	}

	if c.state != nil {
		c.state.SetFeedConnected(true)
	}

	// keepalive, иначе мост рвёт соединение по неактивности
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var frame struct {
			Arg struct {
				Channel string `json:"channel"`
				Symbol  string `json:"symbol"`
			} `json:"arg"`
			Data [][]string `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Arg.Channel != channel || len(frame.Data) == 0 {
			continue
		}

		for _, row := range frame.Data {
			candle, ok := c.parseRow(frame.Arg.Symbol, row)
			if !ok {
				continue
			}
			if c.marker != nil {
				c.marker.MarkPrice(candle.Symbol, candle.Close)
			}
			if !c.admit(candle) {
				continue
			}
			metrics.BarsIngested.WithLabelValues(candle.Symbol).Inc()

			select {
			case out <- candle:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// parseRow — формат строки моста: [ts, o, h, l, c, vol, confirm].
// confirm=="1" означает закрытую свечу, остальные пропускаем.
func (c *Client) parseRow(symbol string, row []string) (models.Candle, bool) {
	if len(row) < 7 || symbol == "" {
		return models.Candle{}, false
	}
	if row[len(row)-1] != "1" {
		return models.Candle{}, false
	}

	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, false
	}
	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.Candle{}, false
	}
	if closep <= 0 || high < low {
		return models.Candle{}, false
	}
	vol, _ := strconv.ParseFloat(row[5], 64)

	tf := helper.NormTF(c.cfg.Timeframe)
	start := time.UnixMilli(ts).UTC()
	return models.Candle{
		Symbol:    symbol,
		Timeframe: tf,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    vol,
		Start:     start,
		End:       start.Add(helper.TFDuration(tf)),
	}, true
}

// admit держит End строго монотонным по символу: дубли и запоздавшие
// свечи в пайплайн не проходят.
func (c *Client) admit(candle models.Candle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastEnd[candle.Symbol]
	if ok && !candle.End.After(last) {
		metrics.BarsDropped.WithLabelValues("stale_or_duplicate").Inc()
		return false
	}
	c.lastEnd[candle.Symbol] = candle.End
	return true
}
