package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/store"
)

type candidatesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCandidatesRepo returns a CandidateStore backed by the user_candidate
// table, one JSONB document per user with full-replace semantics.
func NewCandidatesRepo(db *sqlx.DB, timeout time.Duration) store.CandidateStore {
	return &candidatesRepo{db: db, timeout: timeout}
}

func (r *candidatesRepo) GetCandidates(ctx context.Context, custNo int64) (domain.CandidateDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select("cust_no", "curation_list", "create_dt", "modi_dt").
		From("user_candidate").
		Where(sq.Eq{"cust_no": custNo}).
		ToSql()
	if err != nil {
		return domain.CandidateDoc{}, fmt.Errorf("building candidate query: %w", err)
	}

	var (
		doc  domain.CandidateDoc
		list []byte
	)
	row := r.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&doc.CustNo, &list, &doc.CreateDt, &doc.ModiDt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CandidateDoc{}, store.ErrNotFound
		}
		return domain.CandidateDoc{}, fmt.Errorf("fetching candidates for %d: %w", custNo, err)
	}
	if err := json.Unmarshal(list, &doc.CurationList); err != nil {
		return domain.CandidateDoc{}, fmt.Errorf("decoding curation_list for %d: %w", custNo, err)
	}
	return doc, nil
}

func (r *candidatesRepo) SaveCandidates(ctx context.Context, docs []domain.CandidateDoc) error {
	if len(docs) == 0 {
		return nil
	}
	// Scale the timeout with the group size the same way single writes are
	// bounded.
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(docs)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning candidate write: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO user_candidate (cust_no, curation_list, create_dt, modi_dt)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cust_no) DO UPDATE
		SET curation_list = EXCLUDED.curation_list,
		    modi_dt = EXCLUDED.modi_dt`

	stmt, err := tx.PreparexContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("preparing candidate upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		list, err := json.Marshal(doc.CurationList)
		if err != nil {
			return fmt.Errorf("encoding curation_list for %d: %w", doc.CustNo, err)
		}
		if _, err := stmt.ExecContext(ctx, doc.CustNo, list, doc.CreateDt, doc.ModiDt); err != nil {
			return fmt.Errorf("upserting candidates for %d: %w", doc.CustNo, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing candidate write: %w", err)
	}
	return nil
}
