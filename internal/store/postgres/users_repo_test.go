package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplers/recsys/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func userColumns() []string {
	return []string{"cust_no", "interests", "owned_stock_codes", "recent_stock_codes", "onboarding_stock_codes"}
}

func TestListUsersScansArrayColumns(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT cust_no, interests, owned_stock_codes, recent_stock_codes, onboarding_stock_codes FROM users ORDER BY cust_no`).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(1), "{AAPL,TSLA}", "{005930}", "{}", "{}").
			AddRow(int64(2), "{}", "{}", "{MSFT}", "{}"))

	repo := NewUsersRepo(db, time.Second)
	users, err := repo.ListUsers(context.Background())
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].CustNo)
	assert.Equal(t, []string{"AAPL", "TSLA"}, users[0].Interests)
	assert.Equal(t, []string{"005930"}, users[0].OwnedStockCodes)
	assert.Equal(t, []string{"MSFT"}, users[1].RecentStockCodes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE cust_no = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(userColumns()))

	repo := NewUsersRepo(db, time.Second)
	_, err := repo.GetUser(context.Background(), 404)

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE cust_no = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(7), "{tech}", "{AAPL}", "{}", "{}"))

	repo := NewUsersRepo(db, time.Second)
	u, err := repo.GetUser(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), u.CustNo)
	assert.Equal(t, []string{"tech"}, u.Interests)
	assert.NoError(t, mock.ExpectationsWereMet())
}
