package app

import (
	"context"
	"fmt"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/engine"
	"github.com/polyquote/quoterd/internal/gateway"
)

const (
	// cycleBudget bounds one full pass over both tokens; each quote
	// manager gets half.
	cycleBudget       = 15 * time.Second
	burstTimeoutCount = 3
	resyncPause       = 5 * time.Second
)

// liveMode runs the preflight checklist and then the quoting loop against
// the real venue.
func (a *App) liveMode(ctx context.Context, deps *Dependencies) error {
	preflight := engine.NewPreflight(deps.Gateway, deps.Market, engine.PreflightConfig{
		OrderSize:      a.cfg.Quoting.OrderSize,
		LoopInterval:   a.cfg.Quoting.LoopInterval.Duration,
		MaxSessionLoss: a.cfg.Risk.MaxSessionLossUSDC,
		MinOrderSize:   a.cfg.Quoting.MinTradeableSize,
		PostOnly:       a.cfg.Quoting.PostOnly,
	}, a.logger)
	if err := preflight.Run(ctx); err != nil {
		return err
	}
	return a.runLoop(ctx, deps)
}

// paperMode runs the same loop against the simulator, then reports the
// virtual wallet's result.
func (a *App) paperMode(ctx context.Context, deps *Dependencies) error {
	err := a.runLoop(ctx, deps)
	if paper, ok := deps.Gateway.(*gateway.Paper); ok {
		a.logger.Info("paper session result", "realized_pnl_usdc", paper.RealizedPnl())
	}
	return err
}

// runLoop assembles the engine for one market session and drives it until
// the scheduler stops.
func (a *App) runLoop(ctx context.Context, deps *Dependencies) error {
	session := engine.NewSession(engine.SessionLimits{
		MaxSessionLossUSDC: a.cfg.Risk.MaxSessionLossUSDC,
		ToxicSpreadPct:     a.cfg.Risk.ToxicSpreadPct,
		ToxicMidDriftPct:   a.cfg.Risk.ToxicMidDriftPct,
		MaxAPIFailures:     a.cfg.Risk.MaxAPIFailures,
		TrialMode:          a.cfg.Trial.Enabled,
		MaxOrders:          a.cfg.Trial.MaxOrders,
		MaxNotionalUSDC:    a.cfg.Trial.MaxNotionalUSDC,
	}, a.logger)

	quoteCfg := engine.QuoteConfig{
		OrderSize:        a.cfg.Quoting.OrderSize,
		PostOnly:         a.cfg.Quoting.PostOnly,
		MinTradeableSize: a.cfg.Quoting.MinTradeableSize,
		StopLossPct:      a.cfg.Risk.StopLossPct,
		OneLegTimeout:    a.cfg.Risk.OneLegTimeout.Duration,
		MaxHold:          a.cfg.Risk.MaxHold.Duration,
		TickSize:         deps.Market.TickSize,
	}

	quoters := []*engine.QuoteManager{
		engine.NewQuoteManager(deps.Gateway, session,
			engine.NewTokenState(domain.TokenYes, deps.Market.YesTokenID),
			quoteCfg, deps.FillStore, deps.Metrics, a.logger),
		engine.NewQuoteManager(deps.Gateway, session,
			engine.NewTokenState(domain.TokenNo, deps.Market.NoTokenID),
			quoteCfg, deps.FillStore, deps.Metrics, a.logger),
	}

	winddown := engine.NewWinddown(deps.Gateway, session, a.cfg.Quoting.MinTradeableSize, a.logger)

	scheduler := engine.NewScheduler(deps.Gateway, session, quoters, winddown, deps.Market,
		engine.SchedulerConfig{
			LoopInterval:      a.cfg.Quoting.LoopInterval.Duration,
			CycleTimeout:      cycleBudget / 2,
			BurstTimeoutCount: burstTimeoutCount,
			ResyncPause:       resyncPause,
			WinddownLead:      a.cfg.Winddown.Lead.Duration,
		}, deps.Metrics, deps.Notifier, a.logger)

	_ = deps.Notifier.Notify(ctx, "startup",
		fmt.Sprintf("quoting %s (%s mode)", deps.Market.Slug, a.cfg.Mode))

	err := scheduler.Run(ctx)

	a.logger.Info("session finished",
		"orders_placed", session.OrdersPlaced,
		"estimated_pnl_usdc", session.EstimatedPnl(),
		"err", err)
	_ = deps.Notifier.Notify(context.WithoutCancel(ctx), "shutdown",
		fmt.Sprintf("session over, estimated P&L %.2f USDC", session.EstimatedPnl()))
	return err
}
