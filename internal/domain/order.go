package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderRequest describes one order the engine wants resting (or, for taker
// exits, crossing) on the book. Prices and sizes are venue display units:
// price in USDC per token (0..1), size in tokens.
type OrderRequest struct {
	TokenID  string
	Side     OrderSide
	Price    float64
	Size     float64
	PostOnly bool // reject instead of matching if the order would cross
}

// OrderResult wraps the venue response after order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Message string
}

// OpenOrder is one resting order as reported by the venue's open-orders
// query. Only the fields the quoting engine needs are carried.
type OpenOrder struct {
	ID        string
	TokenID   string
	Side      OrderSide
	Price     float64
	Size      float64
	CreatedAt time.Time
}
