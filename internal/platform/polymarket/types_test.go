package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookTopReduction(t *testing.T) {
	book := APIBook{
		AssetID: "123",
		Bids: []APIPriceLevel{
			{Price: "0.40", Size: "100"},
			{Price: "0.45", Size: "50"},
			{Price: "0.30", Size: "200"},
		},
		Asks: []APIPriceLevel{
			{Price: "0.55", Size: "80"},
			{Price: "0.48", Size: "10"},
		},
	}

	top := book.ToDomainBookTop()
	assert.Equal(t, 0.45, top.BestBid)
	assert.Equal(t, 0.48, top.BestAsk)
	assert.True(t, top.Healthy())
}

func TestBookTopEmptySide(t *testing.T) {
	book := APIBook{
		Bids: []APIPriceLevel{{Price: "0.40", Size: "100"}},
	}

	top := book.ToDomainBookTop()
	assert.Equal(t, 0.40, top.BestBid)
	assert.Zero(t, top.BestAsk)
	assert.False(t, top.Healthy())
	assert.Zero(t, top.Mid())
}

func TestMarketParsesEncodedTokenIDs(t *testing.T) {
	raw := `{
		"id": "500123",
		"question": "Will it rain tomorrow?",
		"slug": "will-it-rain-tomorrow",
		"active": "true",
		"closed": false,
		"clobTokenIds": "[\"111\",\"222\"]",
		"orderPriceMinTickSize": "0.001",
		"negRisk": true,
		"endDateIso": "2026-09-15T00:00:00Z"
	}`

	var am APIMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &am))

	m, err := am.ToDomainMarket()
	require.NoError(t, err)
	assert.Equal(t, "111", m.YesTokenID)
	assert.Equal(t, "222", m.NoTokenID)
	assert.Equal(t, 0.001, m.TickSize)
	assert.True(t, m.Active)
	assert.True(t, m.NegRisk)
	assert.Equal(t, 2026, m.EndDate.Year())
}

func TestMarketDefaultsTickSize(t *testing.T) {
	am := APIMarket{ID: "1", ClobTokenIDs: `["a","b"]`}

	m, err := am.ToDomainMarket()
	require.NoError(t, err)
	assert.Equal(t, 0.01, m.TickSize)
}

func TestMarketBadTokenIDsJSON(t *testing.T) {
	am := APIMarket{ID: "1", ClobTokenIDs: `not-json`}

	_, err := am.ToDomainMarket()
	assert.Error(t, err)
}

func TestOpenOrderConversion(t *testing.T) {
	ao := APIOrder{
		ID:           "0xabc",
		AssetID:      "111",
		Side:         "BUY",
		Price:        "0.42",
		OriginalSize: "10",
		CreatedAt:    "1756500000",
	}

	o := ao.ToDomainOpenOrder()
	assert.Equal(t, "0xabc", o.ID)
	assert.Equal(t, "111", o.TokenID)
	assert.Equal(t, 0.42, o.Price)
	assert.Equal(t, 10.0, o.Size)
	assert.False(t, o.CreatedAt.IsZero())
}
