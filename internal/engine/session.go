package engine

import (
	"log/slog"

	"github.com/polyquote/quoterd/internal/domain"
)

// SessionLimits are the immutable risk parameters for one session.
type SessionLimits struct {
	MaxSessionLossUSDC float64
	ToxicSpreadPct     float64
	ToxicMidDriftPct   float64
	MaxAPIFailures     int

	TrialMode       bool
	MaxOrders       int
	MaxNotionalUSDC float64 // 0 disables the notional cap
}

// Session is the risk coordinator's shared state: P&L estimates, failure
// counters, and the terminal flags. Both quote managers and the scheduler
// mutate it from the single scheduler goroutine, so no locking is needed.
type Session struct {
	limits SessionLimits
	log    *slog.Logger

	OrdersPlaced      int
	EstimatedNotional float64
	EstCost           float64
	EstRevenue        float64

	ConsecutiveAPIFailures int
	Halted                 bool
	KillTriggered          bool
	WinddownDone           bool

	lastMid map[domain.TokenLabel]float64
}

// NewSession creates the session risk state.
func NewSession(limits SessionLimits, log *slog.Logger) *Session {
	return &Session{
		limits:  limits,
		log:     log.With("component", "session"),
		lastMid: make(map[domain.TokenLabel]float64),
	}
}

// EstimatedPnl is the running revenue-minus-cost estimate in USDC.
func (s *Session) EstimatedPnl() float64 {
	return s.EstRevenue - s.EstCost
}

// Terminal reports whether the session has latched a stop condition. Once
// terminal, no order-placing action may occur for the rest of the session.
func (s *Session) Terminal() bool {
	return s.Halted || s.KillTriggered
}

// RecordAPIFailure bumps the consecutive-failure counter and latches the
// halt once the threshold is reached.
func (s *Session) RecordAPIFailure() {
	s.ConsecutiveAPIFailures++
	if s.ConsecutiveAPIFailures >= s.limits.MaxAPIFailures && !s.Halted {
		s.Halted = true
		s.log.Error("halting after consecutive gateway failures",
			"failures", s.ConsecutiveAPIFailures)
	}
}

// ResetAPIFailures clears the counter after a fully successful query pair.
func (s *Session) ResetAPIFailures() {
	s.ConsecutiveAPIFailures = 0
}

// RecordOrderPlaced counts an accepted order and its estimated notional.
func (s *Session) RecordOrderPlaced(notional float64) {
	s.OrdersPlaced++
	s.EstimatedNotional += notional
}

// AccrueCost adds the estimated cost of a detected buy fill.
func (s *Session) AccrueCost(usdc float64) {
	s.EstCost += usdc
}

// AccrueRevenue adds the estimated proceeds of a detected sell fill.
func (s *Session) AccrueRevenue(usdc float64) {
	s.EstRevenue += usdc
}

// CheckKillSwitch latches KillTriggered when the estimated loss goes
// strictly below the configured maximum. A loss of exactly the limit does
// not trigger.
func (s *Session) CheckKillSwitch() bool {
	if s.KillTriggered {
		return true
	}
	if s.EstimatedPnl() < -s.limits.MaxSessionLossUSDC {
		s.KillTriggered = true
		s.log.Error("kill switch triggered",
			"est_pnl", s.EstimatedPnl(), "max_loss", s.limits.MaxSessionLossUSDC)
	}
	return s.KillTriggered
}

// TrialBlocksOrder reports whether trial caps forbid placing another buy of
// the given size. Sizing uses the same 0.60 price estimate as the preflight
// collateral check.
func (s *Session) TrialBlocksOrder(size float64) bool {
	if !s.limits.TrialMode {
		return false
	}
	if s.OrdersPlaced >= s.limits.MaxOrders {
		return true
	}
	if s.limits.MaxNotionalUSDC > 0 &&
		s.EstimatedNotional+size*0.60 > s.limits.MaxNotionalUSDC {
		return true
	}
	return false
}

// TrialCapBreached reports whether a trial cap has been crossed, which ends
// the session at the end of the cycle.
func (s *Session) TrialCapBreached() bool {
	if !s.limits.TrialMode {
		return false
	}
	if s.OrdersPlaced >= s.limits.MaxOrders {
		return true
	}
	return s.limits.MaxNotionalUSDC > 0 && s.EstimatedNotional >= s.limits.MaxNotionalUSDC
}

// ToxicFlow checks the reference token's book for hostile conditions: a
// spread wider than the threshold, or a mid drift since the last cycle
// beyond the drift threshold. The observed mid is recorded either way so
// the next cycle compares against fresh data.
func (s *Session) ToxicFlow(label domain.TokenLabel, top domain.BookTop) bool {
	mid := top.Mid()
	defer func() {
		if mid > 0 {
			s.lastMid[label] = mid
		}
	}()

	if !top.Healthy() {
		return false
	}

	if spread := top.SpreadPct(); spread > s.limits.ToxicSpreadPct {
		s.log.Warn("toxic flow: wide spread",
			"token", label, "spread_pct", spread, "limit_pct", s.limits.ToxicSpreadPct)
		return true
	}

	if last, ok := s.lastMid[label]; ok && last > 0 && mid > 0 {
		drift := abs(mid-last) / last * 100
		if drift > s.limits.ToxicMidDriftPct {
			s.log.Warn("toxic flow: mid drift",
				"token", label, "drift_pct", drift, "limit_pct", s.limits.ToxicMidDriftPct)
			return true
		}
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
