package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/simplers/recsys/internal/domain"
	"github.com/simplers/recsys/internal/store"
)

type usersRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUsersRepo returns a UserStore backed by the users table.
func NewUsersRepo(db *sqlx.DB, timeout time.Duration) store.UserStore {
	return &usersRepo{db: db, timeout: timeout}
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select("cust_no", "interests", "owned_stock_codes", "recent_stock_codes", "onboarding_stock_codes").
		From("users").
		OrderBy("cust_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building users query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) GetUser(ctx context.Context, custNo int64) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := builder.
		Select("cust_no", "interests", "owned_stock_codes", "recent_stock_codes", "onboarding_stock_codes").
		From("users").
		Where(sq.Eq{"cust_no": custNo}).
		ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("building user query: %w", err)
	}

	row := r.db.QueryRowxContext(ctx, query, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("fetching user %d: %w", custNo, err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.CustNo,
		pq.Array(&u.Interests),
		pq.Array(&u.OwnedStockCodes),
		pq.Array(&u.RecentStockCodes),
		pq.Array(&u.OnboardingStockCodes),
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
