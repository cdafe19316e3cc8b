package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentSnapshots(t *testing.T) {
	db, mock := newMockDB(t)
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT symbol, country, snapshot_date, return_pct, close_price, volume FROM market_snapshots WHERE snapshot_date >= \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "country", "snapshot_date", "return_pct", "close_price", "volume"}).
			AddRow("005930", "KR", day, 2.1, 71000.0, 1.2e7).
			AddRow("AAPL", "US", day, -0.4, 230.5, 4.1e7))

	repo := NewSnapshotsRepo(db, time.Second)
	snaps, err := repo.RecentSnapshots(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	assert.Equal(t, "005930", snaps[0].Symbol)
	assert.Equal(t, 2.1, snaps[0].ReturnPct)
}

func TestLatestReturnsMapsSymbols(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT DISTINCT ON \(symbol\) symbol, return_pct FROM market_snapshots WHERE symbol IN \(\$1,\$2\)`).
		WithArgs("AAPL", "TSLA").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "return_pct"}).
			AddRow("AAPL", 1.5).
			AddRow("TSLA", -2.0))

	repo := NewSnapshotsRepo(db, time.Second)
	got, err := repo.LatestReturns(context.Background(), []string{"AAPL", "TSLA"})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"AAPL": 1.5, "TSLA": -2.0}, got)
}

func TestLatestReturnsEmptySymbols(t *testing.T) {
	db, mock := newMockDB(t)

	repo := NewSnapshotsRepo(db, time.Second)
	got, err := repo.LatestReturns(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenItemsBuildsSet(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT DISTINCT curation_id FROM curation_logs WHERE cust_no = \$1 AND seen_at >= \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"curation_id"}).AddRow("c1").AddRow("c9"))

	repo := NewSeenRepo(db, time.Second)
	seen, err := repo.SeenItems(context.Background(), 42, 3)
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{"c1": {}, "c9": {}}, seen)
}
