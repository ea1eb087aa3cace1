package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquote/quoterd/internal/domain"
)

func preflightMarket() domain.Market {
	return domain.Market{
		Slug:       "test-market",
		YesTokenID: "yes-token",
		NoTokenID:  "no-token",
		TickSize:   0.01,
		Active:     true,
	}
}

func preflightConfig() PreflightConfig {
	return PreflightConfig{
		OrderSize:      5,
		LoopInterval:   2 * time.Second,
		MaxSessionLoss: 2,
		MinOrderSize:   5,
		PostOnly:       true,
	}
}

func healthyPreflightGateway() *fakeGateway {
	gw := newFakeGateway()
	gw.tops["yes-token"] = domain.BookTop{BestBid: 0.40, BestAsk: 0.45}
	gw.tops["no-token"] = domain.BookTop{BestBid: 0.55, BestAsk: 0.60}
	gw.collateral = 100
	return gw
}

func TestPreflightHappyPath(t *testing.T) {
	gw := healthyPreflightGateway()
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	gw.serverTime = now.Add(time.Second)

	require.NoError(t, p.Run(context.Background()))

	// Stale cleanup ran and the test order was placed then cancelled.
	assert.Equal(t, 1, gw.cancelAllCalls)
	require.Len(t, gw.placed, 1)
	assert.Equal(t, 0.01, gw.placed[0].Price)
	assert.True(t, gw.placed[0].PostOnly)
	require.Len(t, gw.cancelled, 1)
	assert.Empty(t, gw.open["yes-token"])
}

func TestPreflightConfigSanity(t *testing.T) {
	cfg := preflightConfig()
	cfg.OrderSize = 3
	p := NewPreflight(healthyPreflightGateway(), preflightMarket(), cfg, discardLogger())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight config sanity")
}

func TestPreflightInsufficientCollateral(t *testing.T) {
	gw := healthyPreflightGateway()
	// Required is 5 * 0.60 * 2 = 6 USDC.
	gw.collateral = 5.99
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight collateral balance")
	assert.Empty(t, gw.placed, "no test order after an earlier check fails")
}

func TestPreflightEmptyBookAborts(t *testing.T) {
	gw := healthyPreflightGateway()
	gw.tops["no-token"] = domain.BookTop{BestBid: 0.55}
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight order book health")
}

func TestPreflightCrossedBookAborts(t *testing.T) {
	gw := healthyPreflightGateway()
	gw.tops["yes-token"] = domain.BookTop{BestBid: 0.46, BestAsk: 0.45}
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight order book health")
}

func TestPreflightClockSkewAborts(t *testing.T) {
	gw := healthyPreflightGateway()
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	gw.serverTime = now.Add(-5 * time.Second)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight clock skew")
}

func TestPreflightExecutionTestRejection(t *testing.T) {
	gw := healthyPreflightGateway()
	gw.placeRejects = true
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	gw.serverTime = now

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight execution test")
}

func TestPreflightStaleOrderCleanupIsBestEffort(t *testing.T) {
	gw := healthyPreflightGateway()
	gw.cancelErr = domain.ErrCancelFailed
	p := NewPreflight(gw, preflightMarket(), preflightConfig(), discardLogger())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	gw.serverTime = now

	// Cancel failures also hit the final test-order cleanup, so that check
	// reports the failure; stale cleanup alone must not.
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel test order")
}
