package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

// Paper — брокер в памяти. Исполняет по последней отметке цены, ведёт
// баланс и нереализованный PnL, стопы и тейки срабатывают на MarkPrice.
// Линейная математика: PnL = size * Δцены * contract_size.
type Paper struct {
	mu sync.Mutex

	balance float64
	marks   map[string]float64
	pos     map[string]*paperPos
	acks    map[string]OrderAck // clientID -> ack, идемпотентность на стороне "брокера"
	insts   map[string]models.Instrument

	nextTicket int64
	spread     float64 // в ценах, половина в каждую сторону
}

type paperPos struct {
	ticket   string
	clientID string
	symbol   string
	side     string
	size     float64
	entry    float64
	stop     float64
	target   float64
	openedAt time.Time
}

func NewPaper(symbols []string, startEquity float64) *Paper {
	p := &Paper{
		balance: startEquity,
		marks:   map[string]float64{},
		pos:     map[string]*paperPos{},
		acks:    map[string]OrderAck{},
		insts:   map[string]models.Instrument{},
	}
	for _, s := range symbols {
		p.insts[s] = models.Instrument{
			Symbol:       s,
			Digits:       2,
			Point:        0.01,
			TickSize:     0.01,
			ContractSize: 1,
			TradeAllowed: true,
			// LotStep/MinLot нулевые: объём не округляем, стоп-аут
			// теряет ровно одобренный риск
		}
	}
	return p
}

func (p *Paper) Connect(ctx context.Context) error { return nil }

func (p *Paper) Account(ctx context.Context) (models.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.balance
	for _, ps := range p.pos {
		if mark, ok := p.marks[ps.symbol]; ok {
			equity += p.unrealized(ps, mark)
		}
	}
	return models.AccountInfo{
		Balance:    p.balance,
		Equity:     equity,
		FreeMargin: equity,
		Currency:   "USD",
	}, nil
}

func (p *Paper) Instruments(ctx context.Context) ([]models.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Instrument, 0, len(p.insts))
	for _, inst := range p.insts {
		out = append(out, inst)
	}
	return out, nil
}

func (p *Paper) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s has no mark yet", ErrSymbolNotFound, symbol)
	}
	half := p.spread / 2
	return models.Quote{
		Symbol: symbol,
		Bid:    mark - half,
		Ask:    mark + half,
		At:     time.Now(),
	}, nil
}

func (p *Paper) PlaceMarket(ctx context.Context, req OrderRequest) (OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// повтор с тем же clientID отдаёт прежний результат, без второго филла
	if ack, ok := p.acks[req.ClientID]; ok {
		return ack, nil
	}

	if req.Size <= 0 || req.ClientID == "" {
		return OrderAck{}, fmt.Errorf("paper PlaceMarket: bad request")
	}
	mark, ok := p.marks[req.Symbol]
	if !ok {
		return OrderAck{}, fmt.Errorf("paper PlaceMarket: no mark for %s", req.Symbol)
	}
	if _, exists := p.pos[req.Symbol]; exists {
		ack := OrderAck{
			ClientID: req.ClientID,
			Status:   AckRejected,
			Reason:   "position already open",
			At:       time.Now(),
		}
		p.acks[req.ClientID] = ack
		return ack, nil
	}

	half := p.spread / 2
	fill := mark + half // BUY по ask
	if req.Side == "SELL" {
		fill = mark - half
	}

	p.nextTicket++
	ticket := strconv.FormatInt(p.nextTicket, 10)
	p.pos[req.Symbol] = &paperPos{
		ticket:   ticket,
		clientID: req.ClientID,
		symbol:   req.Symbol,
		side:     req.Side,
		size:     req.Size,
		entry:    fill,
		stop:     req.Stop,
		target:   req.Target,
		openedAt: time.Now(),
	}

	ack := OrderAck{
		ClientID:  req.ClientID,
		BrokerID:  ticket,
		Status:    AckFilled,
		FillPrice: fill,
		At:        time.Now(),
	}
	p.acks[req.ClientID] = ack
	return ack, nil
}

func (p *Paper) ModifyStops(ctx context.Context, symbol string, stop, target float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps, ok := p.pos[symbol]
	if !ok {
		return fmt.Errorf("%w: no position on %s", ErrOrderNotFound, symbol)
	}
	if stop > 0 {
		ps.stop = stop
	}
	if target > 0 {
		ps.target = target
	}
	return nil
}

func (p *Paper) CloseMarket(ctx context.Context, symbol string, size float64) (OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps, ok := p.pos[symbol]
	if !ok {
		return OrderAck{}, fmt.Errorf("%w: no position on %s", ErrOrderNotFound, symbol)
	}
	mark, ok := p.marks[symbol]
	if !ok {
		mark = ps.entry
	}
	if size >= ps.size {
		size = ps.size
	}
	return p.closeLocked(ps, size, mark), nil
}

func (p *Paper) Positions(ctx context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]BrokerPosition, 0, len(p.pos))
	for _, ps := range p.pos {
		profit := 0.0
		if mark, ok := p.marks[ps.symbol]; ok {
			profit = p.unrealized(ps, mark)
		}
		out = append(out, BrokerPosition{
			Ticket:   ps.ticket,
			ClientID: ps.clientID,
			Symbol:   ps.symbol,
			Side:     ps.side,
			Size:     ps.size,
			Entry:    ps.entry,
			Stop:     ps.stop,
			Target:   ps.target,
			Profit:   profit,
			OpenedAt: ps.openedAt,
		})
	}
	return out, nil
}

func (p *Paper) OrderByClientID(ctx context.Context, clientID string) (OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ack, ok := p.acks[clientID]
	if !ok {
		return OrderAck{}, fmt.Errorf("%w: clientID=%s", ErrOrderNotFound, clientID)
	}
	return ack, nil
}

// MarkPrice — новая отметка цены. Здесь же срабатывают SL/TP: сначала стоп,
// защита важнее прибыли.
func (p *Paper) MarkPrice(symbol string, px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.marks[symbol] = px

	ps, ok := p.pos[symbol]
	if !ok {
		return
	}
	if ps.side == "BUY" {
		if ps.stop > 0 && px <= ps.stop {
			p.closeLocked(ps, ps.size, ps.stop)
			return
		}
		if ps.target > 0 && px >= ps.target {
			p.closeLocked(ps, ps.size, ps.target)
		}
		return
	}
	if ps.stop > 0 && px >= ps.stop {
		p.closeLocked(ps, ps.size, ps.stop)
		return
	}
	if ps.target > 0 && px <= ps.target {
		p.closeLocked(ps, ps.size, ps.target)
	}
}

func (p *Paper) unrealized(ps *paperPos, mark float64) float64 {
	cs := 1.0
	if inst, ok := p.insts[ps.symbol]; ok && inst.ContractSize > 0 {
		cs = inst.ContractSize
	}
	if ps.side == "BUY" {
		return (mark - ps.entry) * ps.size * cs
	}
	return (ps.entry - mark) * ps.size * cs
}

func (p *Paper) closeLocked(ps *paperPos, size, px float64) OrderAck {
	pnl := p.unrealizedAt(ps, size, px)
	p.balance += pnl

	if size >= ps.size {
		delete(p.pos, ps.symbol)
	} else {
		ps.size -= size
	}

	p.nextTicket++
	return OrderAck{
		ClientID:  ps.clientID,
		BrokerID:  strconv.FormatInt(p.nextTicket, 10),
		Status:    AckFilled,
		FillPrice: px,
		At:        time.Now(),
	}
}

func (p *Paper) unrealizedAt(ps *paperPos, size, px float64) float64 {
	cs := 1.0
	if inst, ok := p.insts[ps.symbol]; ok && inst.ContractSize > 0 {
		cs = inst.ContractSize
	}
	if ps.side == "BUY" {
		return (px - ps.entry) * size * cs
	}
	return (ps.entry - px) * size * cs
}
