package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

var errFakeDown = fmt.Errorf("%w: connection refused", domain.ErrGatewayUnavailable)

// fakeGateway is an in-memory Gateway for engine tests. Error fields make
// individual calls fail; counters record what the engine did.
type fakeGateway struct {
	tops       map[string]domain.BookTop
	balances   map[string]float64
	collateral float64
	open       map[string][]domain.OpenOrder
	serverTime time.Time

	balanceErr   error
	bookErr      error
	openErr      error
	placeErr     error
	cancelErr    error
	placeRejects bool

	placed         []domain.OrderRequest
	cancelled      [][]string
	cancelAllCalls int
	nextID         int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tops:       make(map[string]domain.BookTop),
		balances:   make(map[string]float64),
		open:       make(map[string][]domain.OpenOrder),
		collateral: 100,
		serverTime: time.Now(),
	}
}

func (f *fakeGateway) FetchOrderBook(_ context.Context, tokenID string) (domain.BookTop, error) {
	if f.bookErr != nil {
		return domain.BookTop{}, f.bookErr
	}
	return f.tops[tokenID], nil
}

func (f *fakeGateway) TokenBalance(_ context.Context, tokenID string) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[tokenID], nil
}

func (f *fakeGateway) CollateralBalance(context.Context) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.collateral, nil
}

func (f *fakeGateway) OpenOrders(_ context.Context, tokenID string) ([]domain.OpenOrder, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.open[tokenID], nil
}

func (f *fakeGateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if f.placeErr != nil {
		return domain.OrderResult{}, f.placeErr
	}
	if f.placeRejects {
		return domain.OrderResult{Success: false, Message: "rejected"}, nil
	}
	f.placed = append(f.placed, req)
	f.nextID++
	id := fmt.Sprintf("order-%d", f.nextID)
	f.open[req.TokenID] = append(f.open[req.TokenID], domain.OpenOrder{
		ID: id, TokenID: req.TokenID, Side: req.Side, Price: req.Price, Size: req.Size,
	})
	return domain.OrderResult{Success: true, OrderID: id}, nil
}

func (f *fakeGateway) CancelOrders(_ context.Context, orderIDs []string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderIDs)
	drop := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		drop[id] = true
	}
	for tok, orders := range f.open {
		var kept []domain.OpenOrder
		for _, o := range orders {
			if !drop[o.ID] {
				kept = append(kept, o)
			}
		}
		f.open[tok] = kept
	}
	return nil
}

func (f *fakeGateway) CancelAll(context.Context) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelAllCalls++
	f.open = make(map[string][]domain.OpenOrder)
	return nil
}

func (f *fakeGateway) ServerTime(context.Context) (time.Time, error) {
	return f.serverTime, nil
}

// lastPlaced returns the most recent order, or false when none were placed.
func (f *fakeGateway) lastPlaced() (domain.OrderRequest, bool) {
	if len(f.placed) == 0 {
		return domain.OrderRequest{}, false
	}
	return f.placed[len(f.placed)-1], true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits() SessionLimits {
	return SessionLimits{
		MaxSessionLossUSDC: 2.0,
		ToxicSpreadPct:     15.0,
		ToxicMidDriftPct:   25.0,
		MaxAPIFailures:     3,
		MaxOrders:          999,
	}
}

func testQuoteConfig() QuoteConfig {
	return QuoteConfig{
		OrderSize:        5,
		PostOnly:         true,
		MinTradeableSize: 5,
		StopLossPct:      15.0,
		OneLegTimeout:    60 * time.Second,
		TickSize:         0.01,
	}
}

// testQuoter builds a quoter with a controllable clock starting at a fixed
// instant.
func testQuoter(gw *fakeGateway, cfg QuoteConfig) (*QuoteManager, *Session, *clock) {
	session := NewSession(testLimits(), discardLogger())
	state := NewTokenState(domain.TokenYes, "yes-token")
	q := NewQuoteManager(gw, session, state, cfg, nil, nil, discardLogger())
	clk := &clock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	q.now = clk.now
	return q, session, clk
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// memFillStore collects appended fills.
type memFillStore struct {
	fills []domain.FillEvent
	err   error
}

func (m *memFillStore) Append(_ context.Context, fill domain.FillEvent) error {
	if m.err != nil {
		return m.err
	}
	m.fills = append(m.fills, fill)
	return nil
}
