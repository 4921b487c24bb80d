package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Ошибки уровня "так бывает": по ним решаем retry/skip, а не падаем.
var (
	ErrNotConnected   = errors.New("broker: not connected")
	ErrSymbolNotFound = errors.New("broker: symbol not found")
	ErrMarketClosed   = errors.New("broker: market closed")
	ErrOrderNotFound  = errors.New("broker: order not found")
)

// RejectionError — брокер принял запрос и явно отказал (не хватило маржи,
// запрет торговли, кривой объём). Это не транспортная ошибка, ретраить
// бессмысленно без охлаждения.
type RejectionError struct {
	Code int
	Msg  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("broker rejected: code=%d msg=%s", e.Code, e.Msg)
}

func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

type OrderRequest struct {
	ClientID string  `json:"client_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // BUY/SELL
	Size     float64 `json:"volume"`
	Stop     float64 `json:"sl,omitempty"`
	Target   float64 `json:"tp,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

type OrderAck struct {
	ClientID  string    `json:"client_id"`
	BrokerID  string    `json:"ticket"`
	Status    string    `json:"status"` // filled | rejected | pending
	FillPrice float64   `json:"fill_price"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

const (
	AckFilled   = "filled"
	AckRejected = "rejected"
	AckPending  = "pending"
)

// BrokerPosition — позиция как её видит брокер. Истина на его стороне,
// монитор сверяется с этим списком.
type BrokerPosition struct {
	Ticket   string    `json:"ticket"`
	ClientID string    `json:"client_id,omitempty"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Size     float64   `json:"volume"`
	Entry    float64   `json:"entry"`
	Stop     float64   `json:"sl"`
	Target   float64   `json:"tp"`
	Profit   float64   `json:"profit"`
	OpenedAt time.Time `json:"opened_at"`
}

// Broker — единственная дверь к исполнению. Live ходит в REST-мост
// терминала, paper исполняет в памяти по последним котировкам.
type Broker interface {
	Connect(ctx context.Context) error
	Account(ctx context.Context) (models.AccountInfo, error)
	Instruments(ctx context.Context) ([]models.Instrument, error)
	Quote(ctx context.Context, symbol string) (models.Quote, error)

	PlaceMarket(ctx context.Context, req OrderRequest) (OrderAck, error)
	ModifyStops(ctx context.Context, symbol string, stop, target float64) error
	CloseMarket(ctx context.Context, symbol string, size float64) (OrderAck, error)

	Positions(ctx context.Context) ([]BrokerPosition, error)
	// OrderByClientID нужен после неоднозначного ack: отправили, ответа не
	// увидели, выясняем чем кончилось.
	OrderByClientID(ctx context.Context, clientID string) (OrderAck, error)
}
