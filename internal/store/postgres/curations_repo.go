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

var curationColumns = []string{
	"id", "label", "title", "btopic", "stopic",
	"liked_count", "click_count", "dislike_count", "market_cap", "created_at",
}

type curationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCurationsRepo returns a CurationStore backed by the curations table.
func NewCurationsRepo(db *sqlx.DB, timeout time.Duration) store.CurationStore {
	return &curationsRepo{db: db, timeout: timeout}
}

func (r *curationsRepo) ListCurations(ctx context.Context) ([]domain.Curation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select(curationColumns...).
		From("curations").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building curations query: %w", err)
	}

	var out []domain.Curation
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing curations: %w", err)
	}
	return out, nil
}

func (r *curationsRepo) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Curation, error) {
	if len(ids) == 0 {
		return map[string]domain.Curation{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select(curationColumns...).
		From("curations").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building curation lookup: %w", err)
	}

	var rows []domain.Curation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetching curations by id: %w", err)
	}
	out := make(map[string]domain.Curation, len(rows))
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

type fallbackRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFallbackRepo returns a FallbackSource serving the most recently
// created curations with a neutral score.
func NewFallbackRepo(db *sqlx.DB, timeout time.Duration) store.FallbackSource {
	return &fallbackRepo{db: db, timeout: timeout}
}

func (r *fallbackRepo) Curated(ctx context.Context, limit int) ([]domain.ScoredItem, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select("id").
		From("curations").
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building curated fallback query: %w", err)
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("fetching curated fallback: %w", err)
	}
	items := make([]domain.ScoredItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.ScoredItem{ID: id, Score: 0})
	}
	return items, nil
}
