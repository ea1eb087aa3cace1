package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/gateway"
	"github.com/polyquote/quoterd/internal/metrics"
)

// QuoteConfig holds the per-token quoting parameters, immutable for the
// session.
type QuoteConfig struct {
	OrderSize        float64
	PostOnly         bool
	MinTradeableSize float64
	StopLossPct      float64
	OneLegTimeout    time.Duration
	// MaxHold is the let-resolve cutoff; zero disables it.
	MaxHold  time.Duration
	TickSize float64
}

// QuoteManager runs the quote lifecycle for one outcome token: post a buy
// while flat, detect the fill by polling the balance, then work a sell.
// Orders are repriced when they drift more than one tick from the top of
// book, and a cancel must succeed before a replacement is placed.
type QuoteManager struct {
	gw      gateway.Gateway
	session *Session
	state   *TokenState
	cfg     QuoteConfig
	fills   domain.FillStore // nil disables fill recording
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewQuoteManager wires a manager for one token.
func NewQuoteManager(
	gw gateway.Gateway,
	session *Session,
	state *TokenState,
	cfg QuoteConfig,
	fills domain.FillStore,
	m *metrics.Metrics,
	log *slog.Logger,
) *QuoteManager {
	return &QuoteManager{
		gw:      gw,
		session: session,
		state:   state,
		cfg:     cfg,
		fills:   fills,
		metrics: m,
		log:     log.With("component", "quoter", "token", state.Label),
		now:     time.Now,
	}
}

// State exposes the token state for the scheduler and winddown controller.
func (q *QuoteManager) State() *TokenState {
	return q.state
}

// Cycle runs one decision pass for this token against the given top of
// book. It returns domain.ErrCycleTimeout when the context deadline cut a
// gateway call short; other gateway failures are absorbed into the session
// failure counter and skip the rest of the cycle.
func (q *QuoteManager) Cycle(ctx context.Context, top domain.BookTop) error {
	if q.session.Terminal() {
		return nil
	}
	if q.session.TrialBlocksOrder(q.cfg.OrderSize) && q.state.Phase == PhaseFlat {
		return nil
	}

	balance, err := q.gw.TokenBalance(ctx, q.state.TokenID)
	if err != nil {
		return q.queryFailed(ctx, "token balance", err)
	}

	openOrders, err := q.gw.OpenOrders(ctx, q.state.TokenID)
	if err != nil {
		return q.queryFailed(ctx, "open orders", err)
	}

	q.session.ResetAPIFailures()

	q.detectFill(ctx, balance, top)

	if q.session.CheckKillSwitch() {
		return nil
	}

	if q.state.Phase == PhaseLetResolve {
		return nil
	}

	if balance > 0 {
		return q.manageSell(ctx, top, openOrders)
	}
	return q.manageBuy(ctx, top, openOrders)
}

// detectFill classifies the fresh balance against the previous observation
// and updates session P&L estimates plus the fill record.
func (q *QuoteManager) detectFill(ctx context.Context, balance float64, top domain.BookTop) {
	prev := q.state.PrevBalance
	switch q.state.observeBalance(balance) {
	case fillBuy:
		entry := q.state.EntryPrice
		if entry > 0 {
			cost := balance * entry
			q.session.AccrueCost(cost)
			q.log.Info("buy filled",
				"size", balance, "price", entry, "cost_usdc", cost)
		} else {
			q.log.Warn("buy fill with unknown entry price", "size", balance)
		}
		q.state.markHolding(top.Mid(), q.now())
		q.metrics.FillDetected(domain.OrderSideBuy, q.state.Label)
		q.recordFill(ctx, domain.FillEvent{
			Timestamp: q.now(),
			Side:      domain.OrderSideBuy,
			Price:     entry,
			Size:      balance,
			TokenID:   q.state.TokenID,
		})

	case fillSell:
		lsp := q.state.LastSellPrice
		if lsp > 0 {
			revenue := prev * lsp
			q.session.AccrueRevenue(revenue)
			q.state.RoundTrips++
			spread := lsp - q.state.EntryPrice
			q.log.Info("sell filled",
				"size", prev, "price", lsp, "revenue_usdc", revenue,
				"spread_per_token", spread, "round_trips", q.state.RoundTrips)
			q.metrics.FillDetected(domain.OrderSideSell, q.state.Label)
			q.metrics.RoundTripCompleted(q.state.Label)
			q.recordFill(ctx, domain.FillEvent{
				Timestamp:        q.now(),
				Side:             domain.OrderSideSell,
				Price:            lsp,
				Size:             prev,
				TokenID:          q.state.TokenID,
				RealizedPnlDelta: spread * prev,
			})
		} else {
			q.log.Info("position flattened without active sell, resolution payout assumed",
				"size", prev)
		}
		q.state.markFlat()
	}
	q.metrics.SetEstimatedPnl(q.session.EstimatedPnl())
}

// manageSell works the exit while holding: minimum-size check, stop-loss,
// let-resolve cutoff, one-leg timeout, then maker sell placement/reprice.
func (q *QuoteManager) manageSell(ctx context.Context, top domain.BookTop, openOrders []domain.OpenOrder) error {
	sellQty := math.Floor(q.state.Balance)
	if sellQty < q.cfg.MinTradeableSize {
		q.log.Info("balance below minimum tradeable size, letting resolve",
			"balance", q.state.Balance, "min", q.cfg.MinTradeableSize)
		q.state.markLetResolve()
		return nil
	}

	// A residual buy while holding is a leftover from the pending phase.
	if err := q.cancelSide(ctx, openOrders, domain.OrderSideBuy, "residual buy"); err != nil {
		return err
	}

	if q.state.PositionAcquiredAt.IsZero() {
		q.state.markHolding(top.Mid(), q.now())
	}
	held := q.state.heldFor(q.now())

	if q.stopLossHit(top) {
		q.log.Warn("stop loss hit, taker exit",
			"entry_mid", q.state.EntryMid, "mid", top.Mid(), "bid", top.BestBid)
		return q.takerExit(ctx, top, openOrders, sellQty)
	}

	if q.cfg.MaxHold > 0 && held > q.cfg.MaxHold {
		q.log.Warn("held past maximum, letting resolve",
			"held", held, "max_hold", q.cfg.MaxHold)
		if err := q.cancelSide(ctx, openOrders, domain.OrderSideSell, "abandoned sell"); err != nil {
			return err
		}
		q.state.markLetResolve()
		return nil
	}

	if held > q.cfg.OneLegTimeout {
		q.log.Warn("one-leg timeout, taker exit",
			"held", held, "timeout", q.cfg.OneLegTimeout, "bid", top.BestBid)
		return q.takerExit(ctx, top, openOrders, sellQty)
	}

	openSells := ordersOnSide(openOrders, domain.OrderSideSell)
	if len(openSells) > 0 {
		stale := staleOrderIDs(openSells, top.BestAsk, q.cfg.TickSize)
		if len(stale) == 0 {
			return nil // sell at target, waiting for fill
		}
		q.log.Info("repricing stale sell", "count", len(stale), "target", top.BestAsk)
		if err := q.gw.CancelOrders(ctx, stale); err != nil {
			return q.cancelFailed(ctx, err)
		}
	}

	if top.BestAsk <= 0 {
		return nil
	}
	return q.placeOrder(ctx, domain.OrderRequest{
		TokenID:  q.state.TokenID,
		Side:     domain.OrderSideSell,
		Price:    top.BestAsk,
		Size:     sellQty,
		PostOnly: q.cfg.PostOnly,
	})
}

// manageBuy works the entry while flat: reprice or place the single resting
// buy, and clear any orphaned sells.
func (q *QuoteManager) manageBuy(ctx context.Context, top domain.BookTop, openOrders []domain.OpenOrder) error {
	openBuys := ordersOnSide(openOrders, domain.OrderSideBuy)
	if len(openBuys) > 0 {
		stale := staleOrderIDs(openBuys, top.BestBid, q.cfg.TickSize)
		if len(stale) == 0 {
			q.state.Phase = PhaseBuyPending
			return nil // buy at target, waiting for fill
		}
		q.log.Info("repricing stale buy", "count", len(stale), "target", top.BestBid)
		if err := q.gw.CancelOrders(ctx, stale); err != nil {
			return q.cancelFailed(ctx, err)
		}
	}

	if err := q.cancelSide(ctx, openOrders, domain.OrderSideSell, "orphaned sell"); err != nil {
		return err
	}

	if top.BestBid <= 0 {
		return nil
	}
	return q.placeOrder(ctx, domain.OrderRequest{
		TokenID:  q.state.TokenID,
		Side:     domain.OrderSideBuy,
		Price:    top.BestBid,
		Size:     q.cfg.OrderSize,
		PostOnly: q.cfg.PostOnly,
	})
}

// stopLossHit reports whether the mid has dropped from the entry mid by
// strictly more than the threshold percentage.
func (q *QuoteManager) stopLossHit(top domain.BookTop) bool {
	if q.cfg.StopLossPct <= 0 {
		return false
	}
	mid := top.Mid()
	if q.state.EntryMid <= 0 || mid <= 0 {
		return false
	}
	drop := (q.state.EntryMid - mid) / q.state.EntryMid * 100
	return drop > q.cfg.StopLossPct
}

// takerExit cancels resting sells and crosses the book at the bid. The exit
// is not retried; a rejection leaves the position for the next cycle.
func (q *QuoteManager) takerExit(ctx context.Context, top domain.BookTop, openOrders []domain.OpenOrder, qty float64) error {
	if err := q.cancelSide(ctx, openOrders, domain.OrderSideSell, "pre-exit sell"); err != nil {
		return err
	}
	if top.BestBid <= 0 {
		return nil
	}
	return q.placeOrder(ctx, domain.OrderRequest{
		TokenID:  q.state.TokenID,
		Side:     domain.OrderSideSell,
		Price:    top.BestBid,
		Size:     qty,
		PostOnly: false,
	})
}

// placeOrder submits one order and updates state on acceptance. Rejections
// are logged and count as no action this cycle.
func (q *QuoteManager) placeOrder(ctx context.Context, req domain.OrderRequest) error {
	result, err := q.gw.PlaceOrder(ctx, req)
	if err != nil {
		return q.queryFailed(ctx, "place order", err)
	}
	if !result.Success {
		q.log.Warn("order rejected",
			"side", req.Side, "price", req.Price, "size", req.Size, "reason", result.Message)
		return nil
	}

	q.log.Info("order accepted",
		"side", req.Side, "price", req.Price, "size", req.Size,
		"post_only", req.PostOnly, "order_id", result.OrderID)
	q.metrics.OrderPlaced(req.Side)

	switch req.Side {
	case domain.OrderSideBuy:
		q.state.markBuyPending(req.Price, q.now())
		q.session.RecordOrderPlaced(req.Size * req.Price)
	case domain.OrderSideSell:
		q.state.LastSellPrice = req.Price
		q.session.RecordOrderPlaced(0)
	}
	return nil
}

// cancelSide cancels every order on one side. A failed cancel aborts the
// cycle so a replacement never stacks onto a live order.
func (q *QuoteManager) cancelSide(ctx context.Context, orders []domain.OpenOrder, side domain.OrderSide, reason string) error {
	ids := orderIDs(ordersOnSide(orders, side))
	if len(ids) == 0 {
		return nil
	}
	q.log.Info("cancelling orders", "side", side, "count", len(ids), "reason", reason)
	if err := q.gw.CancelOrders(ctx, ids); err != nil {
		return q.cancelFailed(ctx, err)
	}
	return nil
}

func (q *QuoteManager) queryFailed(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", what, domain.ErrCycleTimeout)
	}
	q.log.Warn("gateway query failed, skipping cycle", "query", what, "err", err)
	q.metrics.APIFailure()
	q.session.RecordAPIFailure()
	return nil
}

func (q *QuoteManager) cancelFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cancel: %w", domain.ErrCycleTimeout)
	}
	q.log.Warn("cancel failed, skipping replace to avoid stacking", "err", err)
	return nil
}

func (q *QuoteManager) recordFill(ctx context.Context, fill domain.FillEvent) {
	if q.fills == nil {
		return
	}
	if err := q.fills.Append(ctx, fill); err != nil {
		q.log.Warn("fill record append failed", "err", err)
	}
}

func ordersOnSide(orders []domain.OpenOrder, side domain.OrderSide) []domain.OpenOrder {
	var out []domain.OpenOrder
	for _, o := range orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

func orderIDs(orders []domain.OpenOrder) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// staleOrderIDs returns orders priced more than one tick from target. An
// order exactly one tick away is not stale.
func staleOrderIDs(orders []domain.OpenOrder, target, tick float64) []string {
	var stale []string
	for _, o := range orders {
		if math.Abs(o.Price-target) > tick+1e-9 {
			stale = append(stale, o.ID)
		}
	}
	return stale
}
