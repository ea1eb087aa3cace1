package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrder represents an open order as returned by the Polymarket CLOB API.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	MarketID     string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"` // "BUY" or "SELL"
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Owner        string `json:"owner"`
	CreatedAt    string `json:"created_at"`
}

// ToDomainOpenOrder converts an APIOrder to a domain.OpenOrder.
func (a *APIOrder) ToDomainOpenOrder() domain.OpenOrder {
	o := domain.OpenOrder{
		ID:      a.ID,
		TokenID: a.AssetID,
	}
	switch a.Side {
	case "BUY":
		o.Side = domain.OrderSideBuy
	case "SELL":
		o.Side = domain.OrderSideSell
	}
	if p, err := strconv.ParseFloat(a.Price, 64); err == nil {
		o.Price = p
	}
	if orig, err := strconv.ParseFloat(a.OriginalSize, 64); err == nil {
		o.Size = orig
	}
	if ts, err := strconv.ParseInt(a.CreatedAt, 10, 64); err == nil {
		o.CreatedAt = time.Unix(ts, 0)
	} else if t, err := time.Parse(time.RFC3339, a.CreatedAt); err == nil {
		o.CreatedAt = t
	}
	return o
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactID,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Message: r.ErrorMsg,
	}
}

// APIBook is the order book snapshot returned by GET /book.
type APIBook struct {
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APIPriceLevel is a single bid/ask level in the order book response.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToDomainBookTop reduces the full book to its best bid/ask. The CLOB API
// does not guarantee level ordering, so both sides are scanned.
func (b *APIBook) ToDomainBookTop() domain.BookTop {
	var top domain.BookTop
	for _, lvl := range b.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if p > top.BestBid {
			top.BestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if top.BestAsk == 0 || p < top.BestAsk {
			top.BestAsk = p
		}
	}
	return top
}

// APIBalanceAllowance is the response from GET /balance-allowance.
type APIBalanceAllowance struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Several list-valued fields arrive as JSON-encoded strings and must be
// decoded a second time.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"conditionId"`
	Slug          string   `json:"slug"`
	Active        flexBool `json:"active"`
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`       // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`   // JSON-encoded: e.g. "[\"123\",\"456\"]"
	OutcomePrices string   `json:"outcomePrices"`  // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	TickSize      string   `json:"orderPriceMinTickSize"`
	NegRisk       bool     `json:"negRisk"`
	EndDateISO    string   `json:"endDateIso"`
	EndDate       string   `json:"endDate"`
	Volume        string   `json:"volume"`
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. The token ID
// list and outcome labels are JSON-encoded strings inside the response; the
// first entry is taken as the Yes token and the second as the No token.
func (m *APIMarket) ToDomainMarket() (domain.Market, error) {
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
		NegRisk:  m.NegRisk,
		Active:   bool(m.Active) && !m.Closed,
		TickSize: 0.01,
	}

	var tokenIDs []string
	if m.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
			return domain.Market{}, err
		}
	}
	if len(tokenIDs) >= 2 {
		dm.YesTokenID = tokenIDs[0]
		dm.NoTokenID = tokenIDs[1]
	}

	if m.TickSize != "" {
		if ts, err := strconv.ParseFloat(m.TickSize, 64); err == nil && ts > 0 {
			dm.TickSize = ts
		}
	}

	end := m.EndDateISO
	if end == "" {
		end = m.EndDate
	}
	if end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			dm.EndDate = t
		} else if t, err := time.Parse("2006-01-02", end); err == nil {
			dm.EndDate = t
		}
	}

	return dm, nil
}
