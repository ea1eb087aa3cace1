package domain

import "time"

// Market holds the discovery metadata for one binary-outcome market: the
// two complementary token IDs, price granularity, and when it resolves.
type Market struct {
	ID         string
	Question   string
	Slug       string
	YesTokenID string // ERC-1155 token ID (76-digit decimal string)
	NoTokenID  string
	TickSize   float64 // minimum price increment, e.g. 0.01
	NegRisk    bool    // market participates in negative-risk pooling
	Active     bool    // accepting orders (not closed or resolved)
	EndDate    time.Time
}

// TokenLabel names one leg for logs and the fill record.
type TokenLabel string

const (
	TokenYes TokenLabel = "YES"
	TokenNo  TokenLabel = "NO"
)
