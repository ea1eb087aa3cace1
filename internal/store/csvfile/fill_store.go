// Package csvfile appends fill records to a local CSV file, for sessions
// that run without a database.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/polyquote/quoterd/internal/domain"
)

var header = []string{"timestamp", "side", "price", "size", "token_id", "realized_pnl"}

// FillStore implements domain.FillStore on an append-only CSV file. The
// header row is written when the file is created or empty.
type FillStore struct {
	path string
	mu   sync.Mutex
}

// NewFillStore opens (or creates) the CSV file at path and ensures the
// header row exists.
func NewFillStore(path string) (*FillStore, error) {
	s := &FillStore{path: path}
	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return s, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("csvfile: stat %s: %w", path, err)
	}
	if err := s.writeRow(header); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes one fill as a CSV row.
func (s *FillStore) Append(_ context.Context, fill domain.FillEvent) error {
	return s.writeRow([]string{
		fill.Timestamp.UTC().Format(time.RFC3339),
		string(fill.Side),
		strconv.FormatFloat(fill.Price, 'f', -1, 64),
		strconv.FormatFloat(fill.Size, 'f', -1, 64),
		fill.TokenID,
		strconv.FormatFloat(fill.RealizedPnlDelta, 'f', -1, 64),
	})
}

func (s *FillStore) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvfile: open %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvfile: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvfile: flush: %w", err)
	}
	return nil
}

var _ domain.FillStore = (*FillStore)(nil)
