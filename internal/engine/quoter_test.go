package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquote/quoterd/internal/domain"
)

func TestQuoterFlatPostsBuyAtBid(t *testing.T) {
	gw := newFakeGateway()
	q, session, _ := testQuoter(gw, testQuoteConfig())
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(context.Background(), top))

	req, ok := gw.lastPlaced()
	require.True(t, ok)
	assert.Equal(t, domain.OrderSideBuy, req.Side)
	assert.Equal(t, 0.40, req.Price)
	assert.Equal(t, 5.0, req.Size)
	assert.True(t, req.PostOnly)
	assert.Equal(t, PhaseBuyPending, q.State().Phase)
	assert.Equal(t, 0.40, q.State().EntryPrice)
	assert.Equal(t, 1, session.OrdersPlaced)
	assert.InDelta(t, 2.0, session.EstimatedNotional, 1e-9)
}

func TestQuoterBuyFillTransitionsToHoldingAndPostsSell(t *testing.T) {
	gw := newFakeGateway()
	q, session, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))

	// Balance appears: the resting buy filled.
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	assert.Equal(t, PhaseHolding, q.State().Phase)
	assert.Equal(t, 0.40, q.State().EntryPrice)
	assert.InDelta(t, 0.425, q.State().EntryMid, 1e-9)
	assert.InDelta(t, 2.0, session.EstCost, 1e-9)

	req, ok := gw.lastPlaced()
	require.True(t, ok)
	assert.Equal(t, domain.OrderSideSell, req.Side)
	assert.Equal(t, 0.45, req.Price)
	assert.Equal(t, 5.0, req.Size)
	assert.True(t, req.PostOnly)
	assert.Equal(t, 0.45, q.State().LastSellPrice)
}

func TestQuoterSellFillCompletesRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	q, session, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	// Balance back to zero: the sell filled.
	gw.balances["yes-token"] = 0
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	assert.Equal(t, 1, q.State().RoundTrips)
	assert.InDelta(t, 2.25, session.EstRevenue, 1e-9)
	assert.InDelta(t, 0.25, session.EstimatedPnl(), 1e-9)
}

func TestQuoterStopLossBoundary(t *testing.T) {
	cases := []struct {
		name     string
		bid, ask float64
		exit     bool
	}{
		// Entry mid 0.425; 16%+ drop triggers, 14% does not.
		{"sixteen percent drop exits", 0.346, 0.368, true},
		{"fourteen percent drop holds", 0.355, 0.376, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway()
			q, _, _ := testQuoter(gw, testQuoteConfig())
			ctx := context.Background()

			require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))
			gw.balances["yes-token"] = 5
			gw.open["yes-token"] = nil
			require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))
			require.InDelta(t, 0.425, q.State().EntryMid, 1e-9)

			require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: tc.bid, BestAsk: tc.ask}))

			req, ok := gw.lastPlaced()
			require.True(t, ok)
			if tc.exit {
				assert.Equal(t, domain.OrderSideSell, req.Side)
				assert.Equal(t, tc.bid, req.Price)
				assert.False(t, req.PostOnly, "stop loss exit must be a taker order")
			} else {
				assert.True(t, req.PostOnly)
			}
		})
	}
}

func TestQuoterOneLegTimeoutBoundary(t *testing.T) {
	gw := newFakeGateway()
	q, _, clk := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	// Held exactly the threshold: no forced exit, the sell keeps resting.
	clk.advance(60 * time.Second)
	require.NoError(t, q.Cycle(ctx, top))
	req, ok := gw.lastPlaced()
	require.True(t, ok)
	assert.True(t, req.PostOnly)

	// One second past the threshold: taker exit at the bid.
	clk.advance(time.Second)
	require.NoError(t, q.Cycle(ctx, top))
	req, ok = gw.lastPlaced()
	require.True(t, ok)
	assert.Equal(t, domain.OrderSideSell, req.Side)
	assert.Equal(t, 0.40, req.Price)
	assert.False(t, req.PostOnly)
}

func TestQuoterMaxHoldLetsResolve(t *testing.T) {
	cfg := testQuoteConfig()
	cfg.MaxHold = 30 * time.Second
	gw := newFakeGateway()
	q, _, clk := testQuoter(gw, cfg)
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	clk.advance(31 * time.Second)
	placedBefore := len(gw.placed)
	require.NoError(t, q.Cycle(ctx, top))

	assert.Equal(t, PhaseLetResolve, q.State().Phase)
	assert.Len(t, gw.placed, placedBefore, "no sell is attempted past the cutoff")

	// Terminal: further cycles take no action at all.
	require.NoError(t, q.Cycle(ctx, top))
	assert.Len(t, gw.placed, placedBefore)
}

func TestQuoterDustBelowMinSizeLetsResolve(t *testing.T) {
	gw := newFakeGateway()
	q, _, _ := testQuoter(gw, testQuoteConfig())
	gw.balances["yes-token"] = 3

	require.NoError(t, q.Cycle(context.Background(), domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))

	assert.Equal(t, PhaseLetResolve, q.State().Phase)
	assert.Empty(t, gw.placed)
}

func TestQuoterRepriceBoundary(t *testing.T) {
	gw := newFakeGateway()
	q, _, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()

	require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))
	require.Len(t, gw.placed, 1)

	// Exactly one tick away: not stale, nothing cancelled or re-placed.
	require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.41, BestAsk: 0.45}))
	assert.Len(t, gw.placed, 1)
	assert.Empty(t, gw.cancelled)

	// More than one tick away: cancel and re-post at the new bid.
	require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.42, BestAsk: 0.45}))
	require.Len(t, gw.placed, 2)
	assert.Equal(t, 0.42, gw.placed[1].Price)
	assert.Len(t, gw.cancelled, 1)
	// Never two live orders on one side.
	assert.Len(t, gw.open["yes-token"], 1)
}

func TestQuoterCancelFailureAbandonsReplace(t *testing.T) {
	gw := newFakeGateway()
	q, _, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()

	require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))
	require.Len(t, gw.placed, 1)

	gw.cancelErr = domain.ErrCancelFailed
	require.NoError(t, q.Cycle(ctx, domain.BookTop{BestBid: 0.42, BestAsk: 0.45}))

	// The stale buy could not be cancelled, so nothing new was stacked.
	assert.Len(t, gw.placed, 1)
	assert.Len(t, gw.open["yes-token"], 1)
}

func TestQuoterRejectionLeavesStateUntouched(t *testing.T) {
	gw := newFakeGateway()
	gw.placeRejects = true
	q, session, _ := testQuoter(gw, testQuoteConfig())

	require.NoError(t, q.Cycle(context.Background(), domain.BookTop{BestBid: 0.40, BestAsk: 0.45}))

	assert.Equal(t, PhaseFlat, q.State().Phase)
	assert.Zero(t, q.State().EntryPrice)
	assert.Zero(t, session.OrdersPlaced)
}

func TestQuoterGatewayFailureSkipsCycleAndCounts(t *testing.T) {
	gw := newFakeGateway()
	gw.balanceErr = errFakeDown
	q, session, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Cycle(ctx, top))
	}

	assert.Empty(t, gw.placed)
	assert.Equal(t, 3, session.ConsecutiveAPIFailures)
	assert.True(t, session.Halted)
}

func TestQuoterDeadlineSurfacesAsCycleTimeout(t *testing.T) {
	gw := newFakeGateway()
	q, session, _ := testQuoter(gw, testQuoteConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw.balanceErr = ctx.Err()

	err := q.Cycle(ctx, domain.BookTop{BestBid: 0.40, BestAsk: 0.45})
	assert.ErrorIs(t, err, domain.ErrCycleTimeout)
	// Timeouts are counted by the scheduler burst counter, not the API
	// failure counter.
	assert.Zero(t, session.ConsecutiveAPIFailures)
}

func TestQuoterResolutionPayoutWithoutSell(t *testing.T) {
	gw := newFakeGateway()
	q, session, _ := testQuoter(gw, testQuoteConfig())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	// Simulate a resolution payout: position gone with no sell working.
	q.State().LastSellPrice = 0
	gw.balances["yes-token"] = 0
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	assert.Equal(t, PhaseFlat, q.State().Phase)
	assert.Zero(t, session.EstRevenue)
	assert.Zero(t, q.State().RoundTrips)
}

func TestQuoterRecordsFillEvents(t *testing.T) {
	gw := newFakeGateway()
	store := &memFillStore{}
	session := NewSession(testLimits(), discardLogger())
	state := NewTokenState(domain.TokenYes, "yes-token")
	q := NewQuoteManager(gw, session, state, testQuoteConfig(), store, nil, discardLogger())
	ctx := context.Background()
	top := domain.BookTop{BestBid: 0.40, BestAsk: 0.45}

	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 5
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))
	gw.balances["yes-token"] = 0
	gw.open["yes-token"] = nil
	require.NoError(t, q.Cycle(ctx, top))

	require.Len(t, store.fills, 2)
	buy, sell := store.fills[0], store.fills[1]
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, 0.40, buy.Price)
	assert.Zero(t, buy.RealizedPnlDelta)
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, 0.45, sell.Price)
	assert.InDelta(t, 0.25, sell.RealizedPnlDelta, 1e-9)
}
