package models

import "time"

type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	At     time.Time `json:"at"`
}

// Mid — середина спреда, для оценок и paper-исполнения.
func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }
