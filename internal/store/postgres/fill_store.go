package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyquote/quoterd/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Append inserts one fill record.
func (s *FillStore) Append(ctx context.Context, fill domain.FillEvent) error {
	const query = `
		INSERT INTO fills (ts, side, price, size, token_id, realized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		fill.Timestamp, string(fill.Side), fill.Price, fill.Size,
		fill.TokenID, fill.RealizedPnlDelta,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill: %w", err)
	}
	return nil
}

var _ domain.FillStore = (*FillStore)(nil)
