package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

// Paper fill tolerance: a resting order counts as filled once the opposing
// top of book comes within this many price units of its limit.
const fillTolerance = 0.005

// DefaultPaperCollateral is the virtual wallet's starting USDC.
const DefaultPaperCollateral = 1000.0

// BookSource provides real order books for the paper simulator. Usually the
// live CLOB client: books are public, so paper sessions quote against real
// markets without credentials.
type BookSource interface {
	FetchOrderBook(ctx context.Context, tokenID string) (domain.BookTop, error)
}

type paperPosition struct {
	size float64
	cost float64 // total USDC spent acquiring the current size
}

// Paper simulates the venue against real order books. Orders rest in memory
// and fill when the opposing side touches (or comes within fillTolerance
// of) their limit price. Balances live in a virtual wallet.
type Paper struct {
	books BookSource
	log   *slog.Logger

	mu         sync.Mutex
	collateral float64
	positions  map[string]*paperPosition
	resting    map[string]domain.OpenOrder
	lastBook   map[string]domain.BookTop
	realized   float64
	nextID     int
	now        func() time.Time
}

// NewPaper creates a paper gateway with the given starting collateral.
func NewPaper(books BookSource, startingCollateral float64, log *slog.Logger) *Paper {
	return &Paper{
		books:      books,
		log:        log.With("component", "paper_gateway"),
		collateral: startingCollateral,
		positions:  make(map[string]*paperPosition),
		resting:    make(map[string]domain.OpenOrder),
		lastBook:   make(map[string]domain.BookTop),
		now:        time.Now,
	}
}

// RealizedPnl returns the cumulative realized profit of the virtual wallet.
func (p *Paper) RealizedPnl() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realized
}

// FetchOrderBook returns the real top of book and sweeps resting orders for
// the token against it, so fills appear between polls the way they do live.
func (p *Paper) FetchOrderBook(ctx context.Context, tokenID string) (domain.BookTop, error) {
	top, err := p.books.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return domain.BookTop{}, err
	}

	p.mu.Lock()
	p.lastBook[tokenID] = top
	p.sweepLocked(tokenID, top)
	p.mu.Unlock()

	return top, nil
}

func (p *Paper) TokenBalance(_ context.Context, tokenID string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[tokenID]; ok {
		return pos.size, nil
	}
	return 0, nil
}

func (p *Paper) CollateralBalance(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collateral, nil
}

func (p *Paper) OpenOrders(_ context.Context, tokenID string) ([]domain.OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OpenOrder
	for _, o := range p.resting {
		if o.TokenID == tokenID {
			out = append(out, o)
		}
	}
	return out, nil
}

// PlaceOrder checks the order against the last seen book. Post-only orders
// that would cross are rejected with an unsuccessful result. Orders within
// fillTolerance of the opposing top fill immediately; everything else rests.
func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.mu.Lock()
	top, ok := p.lastBook[req.TokenID]
	p.mu.Unlock()
	if !ok {
		var err error
		top, err = p.FetchOrderBook(ctx, req.TokenID)
		if err != nil {
			return domain.OrderResult{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.PostOnly {
		if req.Side == domain.OrderSideBuy && top.BestAsk > 0 && req.Price >= top.BestAsk {
			p.log.Warn("rejected, would be taker",
				"side", req.Side, "price", req.Price, "best_ask", top.BestAsk)
			return domain.OrderResult{Success: false, Message: "post-only would cross"}, nil
		}
		if req.Side == domain.OrderSideSell && top.BestBid > 0 && req.Price <= top.BestBid {
			p.log.Warn("rejected, would be taker",
				"side", req.Side, "price", req.Price, "best_bid", top.BestBid)
			return domain.OrderResult{Success: false, Message: "post-only would cross"}, nil
		}
	}

	p.nextID++
	id := fmt.Sprintf("paper-%d", p.nextID)

	if p.crossesLocked(req.Side, req.Price, top) {
		if err := p.fillLocked(req.TokenID, req.Side, req.Price, req.Size); err != nil {
			return domain.OrderResult{Success: false, Message: err.Error()}, nil
		}
		return domain.OrderResult{Success: true, OrderID: id}, nil
	}

	p.resting[id] = domain.OpenOrder{
		ID:        id,
		TokenID:   req.TokenID,
		Side:      req.Side,
		Price:     req.Price,
		Size:      req.Size,
		CreatedAt: p.now(),
	}
	return domain.OrderResult{Success: true, OrderID: id}, nil
}

func (p *Paper) CancelOrders(_ context.Context, orderIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range orderIDs {
		delete(p.resting, id)
	}
	return nil
}

func (p *Paper) CancelAll(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resting = make(map[string]domain.OpenOrder)
	return nil
}

// ServerTime returns the local clock; the simulator has no skew.
func (p *Paper) ServerTime(_ context.Context) (time.Time, error) {
	return p.now(), nil
}

// crossesLocked reports whether an order at price fills against top, using
// the relaxed fill tolerance.
func (p *Paper) crossesLocked(side domain.OrderSide, price float64, top domain.BookTop) bool {
	switch side {
	case domain.OrderSideBuy:
		return top.BestAsk > 0 && top.BestAsk <= price+fillTolerance
	case domain.OrderSideSell:
		return top.BestBid > 0 && top.BestBid >= price-fillTolerance
	}
	return false
}

// sweepLocked fills resting orders for tokenID that the fresh top of book
// now touches.
func (p *Paper) sweepLocked(tokenID string, top domain.BookTop) {
	for id, o := range p.resting {
		if o.TokenID != tokenID || !p.crossesLocked(o.Side, o.Price, top) {
			continue
		}
		if err := p.fillLocked(o.TokenID, o.Side, o.Price, o.Size); err != nil {
			p.log.Warn("resting order could not fill", "order_id", id, "err", err)
			delete(p.resting, id)
			continue
		}
		delete(p.resting, id)
	}
}

// fillLocked applies a fill to the virtual wallet. Sells realize profit
// against the proportional cost of the sold portion.
func (p *Paper) fillLocked(tokenID string, side domain.OrderSide, price, size float64) error {
	notional := price * size
	pos, ok := p.positions[tokenID]
	if !ok {
		pos = &paperPosition{}
		p.positions[tokenID] = pos
	}

	switch side {
	case domain.OrderSideBuy:
		if p.collateral < notional {
			return fmt.Errorf("insufficient collateral: have %.2f, need %.2f", p.collateral, notional)
		}
		p.collateral -= notional
		pos.size += size
		pos.cost += notional
		p.log.Info("virtual fill", "side", side, "size", size, "price", price)
	case domain.OrderSideSell:
		if pos.size < size {
			return fmt.Errorf("insufficient position: have %.2f, need %.2f", pos.size, size)
		}
		costSold := pos.cost / pos.size * size
		pos.cost -= costSold
		pos.size -= size
		p.collateral += notional
		delta := notional - costSold
		p.realized += delta
		p.log.Info("virtual fill", "side", side, "size", size, "price", price, "realized_delta", delta)
	}
	return nil
}
