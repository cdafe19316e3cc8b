package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/store"
)

type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo returns a SnapshotStore backed by the market_snapshots
// table.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) store.SnapshotStore {
	return &snapshotsRepo{db: db, timeout: timeout}
}

func (r *snapshotsRepo) RecentSnapshots(ctx context.Context, days int) ([]domain.MarketSnapshot, error) {
	if days <= 0 {
		days = 3
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	since := time.Now().UTC().AddDate(0, 0, -days)
	query, args, err := builder.
		Select("symbol", "country", "snapshot_date", "return_pct", "close_price", "volume").
		From("market_snapshots").
		Where(sq.GtOrEq{"snapshot_date": since}).
		OrderBy("snapshot_date DESC", "symbol").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building snapshot query: %w", err)
	}

	var out []domain.MarketSnapshot
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("fetching market snapshots: %w", err)
	}
	return out, nil
}

func (r *snapshotsRepo) LatestReturns(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select("DISTINCT ON (symbol) symbol", "return_pct").
		From("market_snapshots").
		Where(sq.Eq{"symbol": symbols}).
		OrderBy("symbol", "snapshot_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building returns query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching latest returns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64, len(symbols))
	for rows.Next() {
		var (
			symbol string
			ret    float64
		)
		if err := rows.Scan(&symbol, &ret); err != nil {
			return nil, fmt.Errorf("scanning return row: %w", err)
		}
		out[symbol] = ret
	}
	return out, rows.Err()
}
