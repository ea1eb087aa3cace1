// Package gateway abstracts the venue behind a single interface so the
// quoting engine runs unchanged against the live CLOB or the paper
// simulator.
package gateway

import (
	"context"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

// Gateway is the venue surface the engine talks to. Implementations return
// domain.ErrGatewayUnavailable (wrapped) when the venue cannot be reached,
// so the engine's failure counter can distinguish transport trouble from
// order rejections.
type Gateway interface {
	// FetchOrderBook returns the current top of book for a token.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.BookTop, error)

	// TokenBalance returns the wallet's holding of an outcome token.
	TokenBalance(ctx context.Context, tokenID string) (float64, error)

	// CollateralBalance returns the wallet's spendable USDC.
	CollateralBalance(ctx context.Context) (float64, error)

	// OpenOrders lists the wallet's resting orders for a token.
	OpenOrders(ctx context.Context, tokenID string) ([]domain.OpenOrder, error)

	// PlaceOrder submits one order. A post-only order that would cross
	// returns an unsuccessful result, not an error.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// CancelOrders cancels the given orders by ID.
	CancelOrders(ctx context.Context, orderIDs []string) error

	// CancelAll cancels every resting order for the wallet.
	CancelAll(ctx context.Context) error

	// ServerTime returns the venue clock for skew checks.
	ServerTime(ctx context.Context) (time.Time, error)
}
