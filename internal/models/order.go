package models

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"   // создан, ещё не отправлялся
	OrderSubmitted OrderStatus = "SUBMITTED" // отправлен, ждём ack брокера
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order принадлежит executor-у: статус меняет только он и только по ack
// брокера либо по явной отмене.
type Order struct {
	ClientID string `json:"client_id"` // uuid, ключ идемпотентности
	BrokerID string `json:"broker_id,omitempty"`

	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Size   float64 `json:"size"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`

	Status    OrderStatus `json:"status"`
	FillPrice float64     `json:"fill_price,omitempty"`
	Reason    string      `json:"reason,omitempty"` // причина REJECTED/CANCELLED
	Attempts  int         `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderRejected, OrderCancelled:
		return true
	}
	return false
}
