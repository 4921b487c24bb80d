package models

// Instrument — метаданные символа от брокера. Размеры и шаги нужны
// для округления объёма и цен перед отправкой ордера.
type Instrument struct {
	Symbol       string  `json:"symbol"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`     // цена одного пункта
	TickSize     float64 `json:"tick_size"` // шаг цены
	LotStep      float64 `json:"lot_step"`  // шаг объёма
	MinLot       float64 `json:"min_lot"`
	MaxLot       float64 `json:"max_lot"`
	ContractSize float64 `json:"contract_size"`
	TradeAllowed bool    `json:"trade_allowed"`
}
