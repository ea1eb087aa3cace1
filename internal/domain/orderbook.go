package domain

// BookTop is the top of one token's order book, refreshed every cycle and
// never persisted.
type BookTop struct {
	BestBid float64
	BestAsk float64
}

// Mid returns the midpoint of best bid and ask, or 0 when either side of
// the book is empty.
func (b BookTop) Mid() float64 {
	if b.BestBid <= 0 || b.BestAsk <= 0 {
		return 0
	}
	return (b.BestBid + b.BestAsk) / 2
}

// SpreadPct returns the bid-ask spread as a percentage of mid, or 0 when
// the mid is undefined.
func (b BookTop) SpreadPct() float64 {
	mid := b.Mid()
	if mid <= 0 {
		return 0
	}
	return (b.BestAsk - b.BestBid) / mid * 100
}

// Healthy reports whether both sides are present and the book is not
// crossed.
func (b BookTop) Healthy() bool {
	return b.BestBid > 0 && b.BestAsk > 0 && b.BestBid < b.BestAsk
}
