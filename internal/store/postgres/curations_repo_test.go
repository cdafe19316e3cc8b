package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curationRows() *sqlmock.Rows {
	return sqlmock.NewRows(curationColumns)
}

func TestListCurations(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM curations ORDER BY id`).
		WillReturnRows(curationRows().
			AddRow("c1", "AAPL", "Apple earnings", "stock", "tech", 10, 100, 1, 3.4e12, created).
			AddRow("c2", "", "Market wrap", "market", "", 25, 300, 2, 0.0, created))

	repo := NewCurationsRepo(db, time.Second)
	catalog, err := repo.ListCurations(context.Background())
	require.NoError(t, err)

	require.Len(t, catalog, 2)
	assert.Equal(t, "AAPL", catalog[0].Label)
	assert.Equal(t, "market", catalog[1].BTopic)
	assert.Equal(t, 25, catalog[1].LikedCount)
}

func TestGetByIDsReturnsMap(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM curations WHERE id IN \(\$1,\$2\)`).
		WithArgs("c1", "c2").
		WillReturnRows(curationRows().
			AddRow("c1", "AAPL", "t", "stock", "tech", 1, 2, 0, 1.0, created))

	repo := NewCurationsRepo(db, time.Second)
	got, err := repo.GetByIDs(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)

	// Missing ids are simply absent.
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got["c1"].Label)
}

func TestGetByIDsEmptyInput(t *testing.T) {
	db, mock := newMockDB(t)

	repo := NewCurationsRepo(db, time.Second)
	got, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCuratedFallbackServesRecentIDs(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT id FROM curations ORDER BY created_at DESC, id LIMIT 3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("new1").AddRow("new2").AddRow("new3"))

	repo := NewFallbackRepo(db, time.Second)
	items, err := repo.Curated(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "new1", items[0].ID)
	assert.Equal(t, 0.0, items[0].Score)
}
