package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/gateway"
)

const (
	// collateralPerBuy estimates the USDC a resting buy can consume, as a
	// fraction of order size.
	collateralPerBuy = 0.60
	// testOrderPrice is the far-from-market price used by the execution
	// test so it cannot fill before it is cancelled.
	testOrderPrice = 0.01
	// clockSkewTolerance bounds local-vs-venue clock drift.
	clockSkewTolerance = 3 * time.Second
)

// PreflightConfig holds the values the checklist validates.
type PreflightConfig struct {
	OrderSize      float64
	LoopInterval   time.Duration
	MaxSessionLoss float64
	MinOrderSize   float64
	PostOnly       bool
}

// Preflight runs the ordered pre-launch safety checklist. Every check must
// pass before live trading starts; the first failure aborts the launch.
type Preflight struct {
	gw     gateway.Gateway
	market domain.Market
	cfg    PreflightConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewPreflight builds the checklist runner for one market.
func NewPreflight(gw gateway.Gateway, market domain.Market, cfg PreflightConfig, log *slog.Logger) *Preflight {
	return &Preflight{
		gw:     gw,
		market: market,
		cfg:    cfg,
		log:    log.With("component", "preflight"),
		now:    time.Now,
	}
}

// Run executes all seven checks in order and returns the first failure.
func (p *Preflight) Run(ctx context.Context) error {
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"config sanity", p.checkConfig},
		{"stale order cleanup", p.checkStaleOrders},
		{"existing positions", p.checkPositions},
		{"collateral balance", p.checkCollateral},
		{"order book health", p.checkBooks},
		{"clock skew", p.checkClock},
		{"execution test", p.checkExecution},
	}

	for i, c := range checks {
		p.log.Info("preflight check", "step", fmt.Sprintf("%d/%d", i+1, len(checks)), "name", c.name)
		if err := c.fn(ctx); err != nil {
			return fmt.Errorf("preflight %s: %w", c.name, err)
		}
	}
	p.log.Info("preflight complete, safe to trade")
	return nil
}

func (p *Preflight) checkConfig(context.Context) error {
	if p.cfg.OrderSize < p.cfg.MinOrderSize {
		return fmt.Errorf("order size %.2f below minimum %.2f", p.cfg.OrderSize, p.cfg.MinOrderSize)
	}
	if p.cfg.LoopInterval <= 0 {
		return fmt.Errorf("loop interval %s not positive", p.cfg.LoopInterval)
	}
	if p.cfg.MaxSessionLoss <= 0 {
		return fmt.Errorf("max session loss %.2f not positive", p.cfg.MaxSessionLoss)
	}
	return nil
}

// checkStaleOrders clears anything resting from a prior session. Best
// effort only.
func (p *Preflight) checkStaleOrders(ctx context.Context) error {
	if err := p.gw.CancelAll(ctx); err != nil {
		p.log.Warn("stale order cleanup failed, proceeding", "err", err)
	}
	return nil
}

// checkPositions reports pre-existing balances. Non-blocking: a leftover
// position is a warning, not an abort.
func (p *Preflight) checkPositions(ctx context.Context) error {
	for _, tok := range []struct {
		label domain.TokenLabel
		id    string
	}{{domain.TokenYes, p.market.YesTokenID}, {domain.TokenNo, p.market.NoTokenID}} {
		bal, err := p.gw.TokenBalance(ctx, tok.id)
		if err != nil {
			p.log.Warn("could not fetch balance", "token", tok.label, "err", err)
			continue
		}
		if bal > 0 {
			p.log.Warn("holding tokens from a previous session", "token", tok.label, "balance", bal)
		}
	}
	return nil
}

// checkCollateral requires enough USDC for both tokens' initial buys.
func (p *Preflight) checkCollateral(ctx context.Context) error {
	usdc, err := p.gw.CollateralBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch collateral: %w", err)
	}
	required := p.cfg.OrderSize * collateralPerBuy * 2
	if usdc < required {
		return fmt.Errorf("collateral %.2f below required %.2f", usdc, required)
	}
	p.log.Info("collateral ok", "balance", usdc, "required", required)
	return nil
}

// checkBooks requires both books non-empty and uncrossed.
func (p *Preflight) checkBooks(ctx context.Context) error {
	for _, tok := range []struct {
		label domain.TokenLabel
		id    string
	}{{domain.TokenYes, p.market.YesTokenID}, {domain.TokenNo, p.market.NoTokenID}} {
		top, err := p.gw.FetchOrderBook(ctx, tok.id)
		if err != nil {
			return fmt.Errorf("fetch %s book: %w", tok.label, err)
		}
		if top.BestBid <= 0 || top.BestAsk <= 0 {
			return fmt.Errorf("%s book missing side(s): bid=%.4f ask=%.4f", tok.label, top.BestBid, top.BestAsk)
		}
		if top.BestBid >= top.BestAsk {
			return fmt.Errorf("%s book crossed: bid=%.4f >= ask=%.4f", tok.label, top.BestBid, top.BestAsk)
		}
		p.log.Info("book healthy",
			"token", tok.label, "bid", top.BestBid, "ask", top.BestAsk, "spread_pct", top.SpreadPct())
	}
	return nil
}

// checkClock compares the local clock against the venue clock, bracketing
// the request to split network latency.
func (p *Preflight) checkClock(ctx context.Context) error {
	before := p.now()
	server, err := p.gw.ServerTime(ctx)
	after := p.now()
	if err != nil {
		p.log.Warn("server time unavailable, proceeding", "err", err)
		return nil
	}
	local := before.Add(after.Sub(before) / 2)
	drift := local.Sub(server)
	if drift < 0 {
		drift = -drift
	}
	if drift > clockSkewTolerance {
		return fmt.Errorf("clock drift %s exceeds %s", drift, clockSkewTolerance)
	}
	p.log.Info("clock drift ok", "drift", drift)
	return nil
}

// checkExecution places one far-from-market post-only buy and cancels it,
// proving signing and auth work end to end.
func (p *Preflight) checkExecution(ctx context.Context) error {
	result, err := p.gw.PlaceOrder(ctx, domain.OrderRequest{
		TokenID:  p.market.YesTokenID,
		Side:     domain.OrderSideBuy,
		Price:    testOrderPrice,
		Size:     p.cfg.OrderSize,
		PostOnly: true,
	})
	if err != nil {
		return fmt.Errorf("test order: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("test order rejected: %s", result.Message)
	}
	if result.OrderID == "" {
		p.log.Warn("test order accepted without an order ID")
		return nil
	}
	if err := p.gw.CancelOrders(ctx, []string{result.OrderID}); err != nil {
		return fmt.Errorf("cancel test order: %w", err)
	}
	p.log.Info("execution test ok", "order_id", result.OrderID)
	return nil
}
