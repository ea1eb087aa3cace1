package domain

import (
	"context"
	"time"
)

// FillEvent is the append-only record produced for each detected fill. It is
// the only trading history the session keeps; external reporting reads it.
type FillEvent struct {
	Timestamp        time.Time
	Side             OrderSide
	Price            float64
	Size             float64
	TokenID          string
	RealizedPnlDelta float64 // 0 for buys; proceeds minus entry cost for sells
}

// FillStore appends fill events for external reporting. Append failures are
// reporting losses, not trading errors; callers log and continue.
type FillStore interface {
	Append(ctx context.Context, fill FillEvent) error
}

// LockManager provides distributed locks so at most one quoting session runs
// against a given market.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld if another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
