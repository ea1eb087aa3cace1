package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/platform/polymarket"
)

// Live routes every Gateway call to the Polymarket CLOB REST API.
type Live struct {
	clob *polymarket.ClobClient
}

// NewLive wraps an authenticated CLOB client.
func NewLive(clob *polymarket.ClobClient) *Live {
	return &Live{clob: clob}
}

func (l *Live) FetchOrderBook(ctx context.Context, tokenID string) (domain.BookTop, error) {
	return l.clob.GetBook(ctx, tokenID)
}

func (l *Live) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	return l.clob.BalanceAllowance(ctx, polymarket.AssetConditional, tokenID)
}

func (l *Live) CollateralBalance(ctx context.Context) (float64, error) {
	return l.clob.BalanceAllowance(ctx, polymarket.AssetCollateral, "")
}

func (l *Live) OpenOrders(ctx context.Context, tokenID string) ([]domain.OpenOrder, error) {
	return l.clob.GetOpenOrders(ctx, tokenID)
}

// PlaceOrder submits an order. Venue-side rejections come back as an
// unsuccessful result so the engine can treat "would cross" and similar as
// ordinary outcomes rather than gateway failures.
func (l *Live) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	result, err := l.clob.PostOrder(ctx, req)
	if err != nil && errors.Is(err, domain.ErrOrderRejected) {
		return result, nil
	}
	return result, err
}

func (l *Live) CancelOrders(ctx context.Context, orderIDs []string) error {
	return l.clob.CancelOrders(ctx, orderIDs)
}

func (l *Live) CancelAll(ctx context.Context) error {
	return l.clob.CancelAll(ctx)
}

func (l *Live) ServerTime(ctx context.Context) (time.Time, error) {
	return l.clob.ServerTime(ctx)
}
