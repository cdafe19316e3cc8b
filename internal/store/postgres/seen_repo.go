package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/simplers/recsys/internal/store"
)

type seenRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSeenRepo returns a SeenStore backed by the curation_logs table.
func NewSeenRepo(db *sqlx.DB, timeout time.Duration) store.SeenStore {
	return &seenRepo{db: db, timeout: timeout}
}

func (r *seenRepo) SeenItems(ctx context.Context, custNo int64, days int) (map[string]struct{}, error) {
	if days <= 0 {
		days = 3
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	since := time.Now().UTC().AddDate(0, 0, -days)
	query, args, err := builder.
		Select("DISTINCT curation_id").
		From("curation_logs").
		Where(sq.Eq{"cust_no": custNo}).
		Where(sq.GtOrEq{"seen_at": since}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building seen items query: %w", err)
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("fetching seen items for %d: %w", custNo, err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
