package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/gateway"
)

// Winddown flattens the session ahead of market resolution: cancel every
// open order, taker-sell each tradeable balance at the bid, and let dust
// ride to settlement. It runs exactly once per session.
type Winddown struct {
	gw               gateway.Gateway
	session          *Session
	minTradeableSize float64
	log              *slog.Logger
}

// NewWinddown builds the winddown controller.
func NewWinddown(gw gateway.Gateway, session *Session, minTradeableSize float64, log *slog.Logger) *Winddown {
	return &Winddown{
		gw:               gw,
		session:          session,
		minTradeableSize: minTradeableSize,
		log:              log.With("component", "winddown"),
	}
}

// Run executes the exit sequence. A second call is a no-op; the
// winddown_done latch on the session guards it.
func (w *Winddown) Run(ctx context.Context, states []*TokenState, tops map[string]domain.BookTop) {
	if w.session.WinddownDone {
		return
	}
	w.session.WinddownDone = true

	w.log.Info("winddown: flattening before resolution")
	if err := w.gw.CancelAll(ctx); err != nil {
		w.log.Warn("winddown: cancel all failed", "err", err)
	}

	for _, st := range states {
		w.flatten(ctx, st, tops[st.TokenID])
	}
	w.log.Info("winddown complete")
}

// flatten taker-sells one token's balance at the bid when it is tradeable.
func (w *Winddown) flatten(ctx context.Context, st *TokenState, top domain.BookTop) {
	bal, err := w.gw.TokenBalance(ctx, st.TokenID)
	if err != nil {
		w.log.Warn("winddown: balance fetch failed, position rides to resolution",
			"token", st.Label, "err", err)
		return
	}
	if bal <= 0 {
		w.log.Info("winddown: flat", "token", st.Label)
		return
	}

	qty := math.Floor(bal)
	if qty < w.minTradeableSize {
		w.log.Info("winddown: balance below minimum, letting resolve",
			"token", st.Label, "balance", bal)
		return
	}
	if top.BestBid <= 0 {
		w.log.Warn("winddown: no bid, position rides to resolution", "token", st.Label)
		return
	}

	w.log.Info("winddown: forced taker sell",
		"token", st.Label, "size", qty, "bid", top.BestBid)
	result, err := w.gw.PlaceOrder(ctx, domain.OrderRequest{
		TokenID:  st.TokenID,
		Side:     domain.OrderSideSell,
		Price:    top.BestBid,
		Size:     qty,
		PostOnly: false,
	})
	if err != nil || !result.Success {
		w.log.Warn("winddown: sell rejected, tokens ride to resolution",
			"token", st.Label, "err", err, "reason", result.Message)
		return
	}
	st.LastSellPrice = top.BestBid
}
