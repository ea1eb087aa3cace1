package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polyquote/quoterd/internal/domain"
)

func TestObserveBalanceTransitions(t *testing.T) {
	st := NewTokenState(domain.TokenYes, "tok")

	assert.Equal(t, fillNone, st.observeBalance(0))
	assert.Equal(t, fillBuy, st.observeBalance(5))
	// Repeated observation of the same balance must not re-report.
	assert.Equal(t, fillNone, st.observeBalance(5))
	assert.Equal(t, fillSell, st.observeBalance(0))
	assert.Equal(t, fillNone, st.observeBalance(0))
}

func TestObserveBalancePartialChangeIsNotAFill(t *testing.T) {
	st := NewTokenState(domain.TokenNo, "tok")
	st.observeBalance(5)

	// Holding 5, now 3: not a 0-transition, no fill reported.
	assert.Equal(t, fillNone, st.observeBalance(3))
}

func TestMarkHoldingRecordsEntryMidAndAcquisition(t *testing.T) {
	st := NewTokenState(domain.TokenYes, "tok")
	placed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	st.markBuyPending(0.40, placed)
	assert.Equal(t, PhaseBuyPending, st.Phase)

	now := placed.Add(3 * time.Second)
	st.markHolding(0.425, now)
	assert.Equal(t, PhaseHolding, st.Phase)
	assert.Equal(t, 0.425, st.EntryMid)
	// Acquisition time falls back to the buy placement time.
	assert.Equal(t, placed, st.PositionAcquiredAt)
}

func TestMarkFlatClearsTracking(t *testing.T) {
	st := NewTokenState(domain.TokenYes, "tok")
	now := time.Now()
	st.markBuyPending(0.40, now)
	st.markHolding(0.42, now)
	st.LastSellPrice = 0.45
	st.RoundTrips = 2

	st.markFlat()
	assert.Equal(t, PhaseFlat, st.Phase)
	assert.Zero(t, st.EntryPrice)
	assert.Zero(t, st.EntryMid)
	assert.Zero(t, st.LastSellPrice)
	assert.True(t, st.OrderPlacedAt.IsZero())
	assert.True(t, st.PositionAcquiredAt.IsZero())
	// Round trips survive flattening.
	assert.Equal(t, 2, st.RoundTrips)
}

func TestHeldFor(t *testing.T) {
	st := NewTokenState(domain.TokenYes, "tok")
	now := time.Now()
	assert.Zero(t, st.heldFor(now))

	st.markBuyPending(0.40, now.Add(-90*time.Second))
	st.markHolding(0.42, now)
	assert.Equal(t, 90*time.Second, st.heldFor(now))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "FLAT", PhaseFlat.String())
	assert.Equal(t, "BUY_PENDING", PhaseBuyPending.String())
	assert.Equal(t, "HOLDING", PhaseHolding.String())
	assert.Equal(t, "LET_RESOLVE", PhaseLetResolve.String())
}
