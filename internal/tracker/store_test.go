package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/database"
	apperrors "shopping-agent/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *database.SQLClient) {
	t.Helper()
	client, err := database.NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "prices.db")})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewStore(client)
	require.NoError(t, store.Migrate(context.Background()))
	return store, client
}

func record(retailer string, total float64) PriceRecord {
	return PriceRecord{Retailer: retailer, BasePrice: total, TotalPrice: total}
}

// ==========================
// Sessions
// ==========================

func TestStore_SessionLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id, err := store.CreateSession(ctx, "PlayStation 5", 60, start)
	require.NoError(t, err)
	assert.Positive(t, id)

	sess, err := store.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PlayStation 5", sess.ProductQuery)
	assert.Equal(t, 60, sess.IntervalMinutes)
	assert.Equal(t, StatusActive, sess.Status)
	assert.True(t, start.Equal(sess.StartTime))
	assert.Nil(t, sess.EndTime)

	end := start.Add(2 * time.Hour)
	require.NoError(t, store.CompleteSession(ctx, id, end))

	sess, err = store.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	require.NotNil(t, sess.EndTime)
	assert.True(t, end.Equal(*sess.EndTime))
}

func TestStore_SessionNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Session(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestStore_ListSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first, err := store.CreateSession(ctx, "Laptop", 30, now)
	require.NoError(t, err)
	second, err := store.CreateSession(ctx, "Headphones", 60, now)
	require.NoError(t, err)

	_, err = store.SaveRecords(ctx, first, now, []PriceRecord{record("Amazon", 900), record("Walmart", 880)})
	require.NoError(t, err)

	listing, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 2)

	assert.Equal(t, second, listing[0].ID)
	assert.Equal(t, 0, listing[0].Records)
	assert.Equal(t, first, listing[1].ID)
	assert.Equal(t, 2, listing[1].Records)
	assert.Equal(t, "Laptop", listing[1].ProductQuery)
}

// ==========================
// Records and alerts
// ==========================

func TestStore_RecordsAndStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.CreateSession(ctx, "PlayStation 5", 60, now)
	require.NoError(t, err)

	n, err := store.SaveRecords(ctx, id, now, []PriceRecord{record("Amazon", 500), record("Walmart", 480)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.SaveRecords(ctx, id, now.Add(time.Hour), []PriceRecord{record("Amazon", 450), record("Walmart", 490)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.SaveRecords(ctx, id, now, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := store.RetailerStats(ctx, id)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, RetailerStats{Retailer: "Amazon", Checks: 2, Min: 450, Max: 500, Avg: 475}, stats[0])
	assert.Equal(t, RetailerStats{Retailer: "Walmart", Checks: 2, Min: 480, Max: 490, Avg: 485}, stats[1])

	totals, err := store.RecentTotals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float64{450, 500}, totals["Amazon"])
	assert.Equal(t, []float64{490, 480}, totals["Walmart"])

	order, history, err := store.PriceHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amazon", "Walmart"}, order)
	assert.Equal(t, []float64{500, 450}, history["Amazon"])
}

func TestStore_RecentTotalsKeepsTwo(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.CreateSession(ctx, "Monitor", 60, now)
	require.NoError(t, err)
	for _, p := range []float64{300, 310, 320} {
		_, err := store.SaveRecords(ctx, id, now, []PriceRecord{record("Newegg", p)})
		require.NoError(t, err)
	}

	totals, err := store.RecentTotals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float64{320, 310}, totals["Newegg"])
}

func TestStore_Alerts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.CreateSession(ctx, "PlayStation 5", 60, now)
	require.NoError(t, err)

	require.NoError(t, store.InsertAlert(ctx, Alert{SessionID: id, Retailer: "Amazon", OldPrice: 500, NewPrice: 450, ChangePercent: -10, Timestamp: now}))
	require.NoError(t, store.InsertAlert(ctx, Alert{SessionID: id, Retailer: "Target", OldPrice: 400, NewPrice: 440, ChangePercent: 10, Timestamp: now}))

	count, err := store.AlertCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	alerts, err := store.Alerts(ctx, id)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "Amazon", alerts[0].Retailer)
	assert.True(t, alerts[0].Dropped())
	assert.Equal(t, "Target", alerts[1].Retailer)
	assert.Equal(t, id, alerts[1].SessionID)
}

// ==========================
// Postgres dialect
// ==========================

func TestStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(database.NewSQLClient(db, database.DialectPostgres))
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT INTO tracking_sessions .* VALUES \(\$1, \$2, \$3, \$4\) RETURNING id`).
		WithArgs("Laptop", start, 30, StatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO price_records .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM price_alerts WHERE session_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	ctx := context.Background()
	id, err := store.CreateSession(ctx, "Laptop", 30, start)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)

	n, err := store.SaveRecords(ctx, id, start, []PriceRecord{record("Costco", 899)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.AlertCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRecordsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(database.NewSQLClient(db, database.DialectPostgres))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO price_records`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = store.SaveRecords(context.Background(), 1, time.Now(), []PriceRecord{record("Costco", 899)})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseInsertFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}
