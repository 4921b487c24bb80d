package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Коды моста. Всё что не 0 — осмысленный отказ; транспортные проблемы
// приходят обычными ошибками http.
const (
	codeOK             = 0
	codeSymbolNotFound = 2001
	codeMarketClosed   = 2002
	codeOrderNotFound  = 2003
)

type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	account   string
}

func NewClient(baseURL, apiKey, apiSecret, account string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		account:   account,
	}
}

func (c *Client) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// call — общий транспорт: подпись, запрос, конверт {code,msg,data}.
// Тело ответа тащим в ошибку целиком, с мостом иначе не разобраться.
func (c *Client) call(ctx context.Context, method, path string, reqBody any, out any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = sonic.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("bridge marshal %s: %w", path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bridge new request %s: %w", path, err)
	}

	ts := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", ts)
	req.Header.Set("X-SIGN", c.sign(ts, method, path, string(payload)))
	req.Header.Set("X-ACCOUNT", c.account)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge do %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("bridge http %d %s: %s", resp.StatusCode, path, string(data))
	}

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("bridge decode %s: %w; RAW=%s", path, err, string(data))
	}

	switch envelope.Code {
	case codeOK:
	case codeSymbolNotFound:
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, envelope.Msg)
	case codeMarketClosed:
		return fmt.Errorf("%w: %s", ErrMarketClosed, envelope.Msg)
	case codeOrderNotFound:
		return fmt.Errorf("%w: %s", ErrOrderNotFound, envelope.Msg)
	default:
		return &RejectionError{Code: envelope.Code, Msg: envelope.Msg}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("bridge decode data %s: %w; RAW=%s", path, err, string(data))
		}
	}
	return nil
}
