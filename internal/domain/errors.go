package domain

import "errors"

var (
	// ErrGatewayUnavailable wraps network/HTTP failures on any exchange
	// query. Callers never retry inline; the session failure counter
	// decides escalation.
	ErrGatewayUnavailable = errors.New("exchange gateway unavailable")

	// ErrOrderRejected is returned when the venue refuses an order, e.g. a
	// post-only order that would cross, or insufficient balance/allowance.
	ErrOrderRejected = errors.New("order rejected")

	// ErrCancelFailed means a cancel request did not succeed; any dependent
	// replace action must be abandoned this cycle to avoid stacking a
	// second live order on the same side.
	ErrCancelFailed = errors.New("cancel failed")

	// ErrKillSwitch is terminal: estimated session loss breached the
	// configured maximum.
	ErrKillSwitch = errors.New("session kill switch triggered")

	// ErrSessionHalted is terminal: too many consecutive gateway failures.
	ErrSessionHalted = errors.New("session halted")

	// ErrCycleTimeout means a per-token cycle exceeded its deadline. The
	// action is abandoned; a burst of these triggers a pause-and-resync.
	ErrCycleTimeout = errors.New("cycle timed out")

	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")
)
