// Package engine implements the market-making core: the per-token quote
// lifecycle, session-level risk limits, the preflight checklist, the
// winddown exit, and the cycle scheduler that drives them.
package engine

import (
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

// Phase is the explicit lifecycle state of one quoted token.
type Phase int

const (
	// PhaseFlat: no position, no resting order.
	PhaseFlat Phase = iota
	// PhaseBuyPending: a buy order rests on the book.
	PhaseBuyPending
	// PhaseHolding: tokens held, working a sell.
	PhaseHolding
	// PhaseLetResolve: terminal, the position rides to settlement.
	PhaseLetResolve
)

func (p Phase) String() string {
	switch p {
	case PhaseFlat:
		return "FLAT"
	case PhaseBuyPending:
		return "BUY_PENDING"
	case PhaseHolding:
		return "HOLDING"
	case PhaseLetResolve:
		return "LET_RESOLVE"
	}
	return "UNKNOWN"
}

// fillKind classifies one balance observation.
type fillKind int

const (
	fillNone fillKind = iota
	fillBuy
	fillSell
)

// TokenState tracks the quote lifecycle of one outcome token. It is owned
// exclusively by that token's QuoteManager; all timestamps are absent (zero)
// when not applicable.
type TokenState struct {
	Label   domain.TokenLabel
	TokenID string
	Phase   Phase

	Balance     float64
	PrevBalance float64

	// EntryPrice is the price of the last posted buy, kept through the
	// holding phase as the cost basis estimate.
	EntryPrice float64
	// EntryMid is the book mid observed when the buy fill was detected,
	// the reference for the stop-loss drop percentage.
	EntryMid float64

	OrderPlacedAt      time.Time
	PositionAcquiredAt time.Time

	// LastSellPrice is the price of the most recent sell order, cleared
	// once the sell fill (or flatten) is detected.
	LastSellPrice float64

	RoundTrips int
}

// NewTokenState returns a fresh FLAT state for one token.
func NewTokenState(label domain.TokenLabel, tokenID string) *TokenState {
	return &TokenState{Label: label, TokenID: tokenID, Phase: PhaseFlat}
}

// observeBalance records a fresh balance reading and classifies the
// transition: 0 to positive is a buy fill, positive to 0 a sell fill (or
// resolution payout). Repeated observation of the same balance reports
// nothing, so each transition is acted on exactly once.
func (t *TokenState) observeBalance(balance float64) fillKind {
	prev := t.PrevBalance
	t.PrevBalance = balance
	t.Balance = balance

	switch {
	case prev == 0 && balance > 0:
		return fillBuy
	case prev > 0 && balance == 0:
		return fillSell
	default:
		return fillNone
	}
}

// markHolding transitions into HOLDING after a detected buy fill.
func (t *TokenState) markHolding(mid float64, now time.Time) {
	t.Phase = PhaseHolding
	t.EntryMid = mid
	if t.PositionAcquiredAt.IsZero() {
		if !t.OrderPlacedAt.IsZero() {
			t.PositionAcquiredAt = t.OrderPlacedAt
		} else {
			t.PositionAcquiredAt = now
		}
	}
}

// markFlat clears position tracking after a sell fill or flatten.
func (t *TokenState) markFlat() {
	t.Phase = PhaseFlat
	t.EntryPrice = 0
	t.EntryMid = 0
	t.LastSellPrice = 0
	t.OrderPlacedAt = time.Time{}
	t.PositionAcquiredAt = time.Time{}
}

// markBuyPending records a freshly placed buy.
func (t *TokenState) markBuyPending(price float64, now time.Time) {
	t.Phase = PhaseBuyPending
	t.EntryPrice = price
	t.OrderPlacedAt = now
}

// markLetResolve is terminal: the manager stops acting on this token.
func (t *TokenState) markLetResolve() {
	t.Phase = PhaseLetResolve
}

// heldFor returns how long the current position has been held, or 0 when
// not holding.
func (t *TokenState) heldFor(now time.Time) time.Duration {
	if t.PositionAcquiredAt.IsZero() {
		return 0
	}
	return now.Sub(t.PositionAcquiredAt)
}
