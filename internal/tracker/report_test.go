package tracker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"shopping-agent/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededTracker(t *testing.T) (*Tracker, int64) {
	t.Helper()
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.CreateSession(ctx, "PlayStation 5", 60, now)
	require.NoError(t, err)
	_, err = store.SaveRecords(ctx, id, now, []PriceRecord{record("Amazon", 500), record("Walmart", 480)})
	require.NoError(t, err)
	_, err = store.SaveRecords(ctx, id, now, []PriceRecord{record("Amazon", 450), record("Walmart", 480)})
	require.NoError(t, err)
	require.NoError(t, store.InsertAlert(ctx, Alert{SessionID: id, Retailer: "Amazon", OldPrice: 500, NewPrice: 450, ChangePercent: -10, Timestamp: now}))

	return New(store, &fakeSearcher{}, logger.NewNoOpLogger()), id
}

// ==========================
// Statistics
// ==========================

func TestStatisticsText(t *testing.T) {
	tr, id := seededTracker(t)

	text, err := tr.StatisticsText(context.Background(), id)
	require.NoError(t, err)

	assert.Contains(t, text, fmt.Sprintf("📊 STATISTICS - Session #%d [ACTIVE]", id))
	assert.Contains(t, text, "Product: PlayStation 5")
	assert.Contains(t, text, fmt.Sprintf("%-20s %-8s %-12s %-12s %-12s", "Retailer", "Checks", "Min", "Max", "Avg"))
	assert.Contains(t, text, fmt.Sprintf("%-20s %-8d $%-10.2f $%-10.2f $%-10.2f", "Amazon", 2, 450.0, 500.0, 475.0))
	assert.Contains(t, text, "🚨 Price alerts: 1")
	assert.Less(t, strings.Index(text, "Amazon"), strings.Index(text, "Walmart"))
}

func TestStatisticsText_NotFound(t *testing.T) {
	tr, _ := seededTracker(t)

	text, err := tr.StatisticsText(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, "❌ Session 404 not found", text)
}

func TestFormatStatistics_Empty(t *testing.T) {
	text := FormatStatistics(&Statistics{Session: Session{ID: 1, ProductQuery: "Laptop", Status: StatusCompleted, StartTime: time.Now()}})
	assert.Contains(t, text, "[COMPLETED]")
	assert.Contains(t, text, "No price data recorded yet.")
	assert.NotContains(t, text, "Checks")
}

func TestFormatStatistics_TruncatesRetailer(t *testing.T) {
	text := FormatStatistics(&Statistics{
		Session:   Session{ID: 1, ProductQuery: "Laptop", Status: StatusActive, StartTime: time.Now()},
		Retailers: []RetailerStats{{Retailer: "The Extremely Long Retailer", Checks: 1, Min: 1, Max: 1, Avg: 1}},
	})
	assert.Contains(t, text, "The Extremely Long..")
}

// ==========================
// Summary
// ==========================

func TestSummaryText(t *testing.T) {
	tr, id := seededTracker(t)

	text, err := tr.SummaryText(context.Background(), id)
	require.NoError(t, err)

	assert.Contains(t, text, fmt.Sprintf("📋 SUMMARY - Session #%d", id))
	assert.Contains(t, text, "📦 Product: PlayStation 5")
	assert.Contains(t, text, "to ongoing")
	assert.Contains(t, text, "⏱️ Interval: Every 60 minutes")
	assert.Contains(t, text, "🏆 BEST DEAL: Amazon at $450.00")
	assert.Contains(t, text, "📉 Amazon: $500.00 → $450.00 (-10.0%)")
	assert.Contains(t, text, "➡️ Walmart: $480.00 → $480.00 (+0.0%)")
	assert.Contains(t, text, "🚨 ALERTS (1):")
	assert.Contains(t, text, "↓ Amazon: $500.00 → $450.00 (-10.0%)")
}

func TestSummary_KeepsLastAlerts(t *testing.T) {
	tr, id := seededTracker(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, tr.Store().InsertAlert(ctx, Alert{
			SessionID: id, Retailer: fmt.Sprintf("Shop %d", i), OldPrice: 100, NewPrice: 110, ChangePercent: 10, Timestamp: time.Now(),
		}))
	}

	sum, err := tr.Summary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.AlertsAll)
	require.Len(t, sum.Alerts, 5)
	assert.Equal(t, "Shop 1", sum.Alerts[0].Retailer)
	assert.Equal(t, "Shop 5", sum.Alerts[4].Retailer)
}

func TestSummaryText_Completed(t *testing.T) {
	tr, id := seededTracker(t)
	ctx := context.Background()
	end := time.Date(2026, 3, 2, 10, 30, 0, 0, time.Local)
	require.NoError(t, tr.Store().CompleteSession(ctx, id, end))

	text, err := tr.SummaryText(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, text, "to 2026-03-02 10:30:00")
	assert.Contains(t, text, "[COMPLETED]")
}

func TestSummaryText_NotFound(t *testing.T) {
	tr, _ := seededTracker(t)

	text, err := tr.SummaryText(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, "❌ Session 77 not found", text)
}

// ==========================
// Session list
// ==========================

func TestFormatSessions(t *testing.T) {
	text := FormatSessions([]ListedSession{
		{SessionListing: SessionListing{Session: Session{ID: 2, ProductQuery: "Sony WH-1000XM5 Wireless Headphones", Status: StatusActive}, Records: 14}, Active: true},
		{SessionListing: SessionListing{Session: Session{ID: 1, ProductQuery: "Laptop", Status: StatusCompleted}, Records: 3}},
	})

	assert.Contains(t, text, "📋 TRACKING SESSIONS")
	assert.Contains(t, text, fmt.Sprintf("%-5s %-25s %-12s %-10s %-8s", "ID", "Product", "Status", "Records", "Active"))
	assert.Contains(t, text, "Sony WH-1000XM5 Wireles..")
	assert.Contains(t, text, "✅")
	assert.Contains(t, text, fmt.Sprintf("%-5d %-25s %-12s %-10d", 1, "Laptop", StatusCompleted, 3))
}

func TestListSessionsText(t *testing.T) {
	tr, id := seededTracker(t)

	text, err := tr.ListSessionsText(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, fmt.Sprintf("%-5d %-25s %-12s %-10d", id, "PlayStation 5", StatusActive, 4))
	assert.NotContains(t, text, "✅")
}

// ==========================
// Interactive menu
// ==========================

func runMenu(t *testing.T, tr *Tracker, input string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, NewMenu(tr, strings.NewReader(input), &out).Run(context.Background()))
	return out.String()
}

func TestMenu_StartStopExit(t *testing.T) {
	store, _ := newTestStore(t)
	tr := New(store, &fakeSearcher{}, logger.NewNoOpLogger())

	out := runMenu(t, tr, "1\nLaptop\n1\n\n4\n1\n7\n")

	assert.Contains(t, out, "🛒 PRICE TRACKING AGENT")
	assert.Contains(t, out, "✅ Started tracking session #1")
	assert.Contains(t, out, "   Product: Laptop")
	assert.Contains(t, out, "   Interval: 1 minutes")
	assert.Contains(t, out, "   Duration: indefinite hours")
	assert.Contains(t, out, "⏹️ Stopping session #1...")
	assert.Contains(t, out, "👋 Goodbye!")
	assert.Empty(t, tr.ActiveSessions())
}

func TestMenu_Defaults(t *testing.T) {
	store, _ := newTestStore(t)
	tr := New(store, &fakeSearcher{}, logger.NewNoOpLogger())

	out := runMenu(t, tr, "1\n\n\n2\n7\n")

	assert.Contains(t, out, "   Product: PlayStation 5")
	assert.Contains(t, out, "   Interval: 60 minutes")
	assert.Contains(t, out, "   Duration: 2 hours")
	assert.Contains(t, out, "⏹️ Stopping all active tracking sessions...")
	assert.Empty(t, tr.ActiveSessions())
}

func TestMenu_Reports(t *testing.T) {
	tr, id := seededTracker(t)

	out := runMenu(t, tr, fmt.Sprintf("2\n%d\n3\n%d\n3\n42\n2\nall\n5\n7\n", id, id))

	assert.Contains(t, out, "📊 STATISTICS")
	assert.Contains(t, out, "📋 SUMMARY")
	assert.Contains(t, out, "❌ Session 42 not found")
	assert.Equal(t, 2, strings.Count(out, "📋 TRACKING SESSIONS"))
}

func TestMenu_InvalidInput(t *testing.T) {
	store, _ := newTestStore(t)
	tr := New(store, &fakeSearcher{}, logger.NewNoOpLogger())

	out := runMenu(t, tr, "9\n2\nabc\n4\n5\n1\nLaptop\nsoon\n6\n")

	assert.Contains(t, out, "❌ Invalid choice")
	assert.Contains(t, out, "❌ Invalid session ID: abc")
	assert.Contains(t, out, "❌ Session #5 not active")
	assert.Contains(t, out, "❌ Invalid number: soon")
	assert.Contains(t, out, "📬 Checking for background updates...")
	assert.NotContains(t, out, "Goodbye")
	assert.Empty(t, tr.ActiveSessions())
}
