package csvfile

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquote/quoterd/internal/domain"
)

func TestFillStoreWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.csv")
	s, err := NewFillStore(path)
	require.NoError(t, err)

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(context.Background(), domain.FillEvent{
		Timestamp: ts,
		Side:      domain.OrderSideBuy,
		Price:     0.40,
		Size:      5,
		TokenID:   "tok-1",
	}))
	require.NoError(t, s.Append(context.Background(), domain.FillEvent{
		Timestamp:        ts.Add(time.Minute),
		Side:             domain.OrderSideSell,
		Price:            0.45,
		Size:             5,
		TokenID:          "tok-1",
		RealizedPnlDelta: 0.25,
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"2026-08-30T12:00:00Z", "BUY", "0.4", "5", "tok-1", "0"}, rows[1])
	assert.Equal(t, "0.25", rows[2][5])
}

func TestFillStoreReopenDoesNotDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.csv")
	s, err := NewFillStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), domain.FillEvent{
		Timestamp: time.Now(), Side: domain.OrderSideBuy, Price: 0.5, Size: 5, TokenID: "tok-1",
	}))

	// A second session appends to the same file.
	s2, err := NewFillStore(path)
	require.NoError(t, err)
	require.NoError(t, s2.Append(context.Background(), domain.FillEvent{
		Timestamp: time.Now(), Side: domain.OrderSideSell, Price: 0.55, Size: 5, TokenID: "tok-1",
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])
	assert.NotEqual(t, header, rows[1])
}
