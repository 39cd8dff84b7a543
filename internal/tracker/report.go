package tracker

import (
	"context"
	"fmt"
	"strings"

	apperrors "shopping-agent/internal/common/errors"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	summaryAlerts  = 5
	retailerColumn = 20
	productColumn  = 25
)

// Statistics is the per-retailer view of a session.
type Statistics struct {
	Session   Session         `json:"session"`
	Retailers []RetailerStats `json:"retailers"`
	Alerts    int             `json:"alerts"`
}

// Trend is a retailer's first and last total within a session.
type Trend struct {
	Retailer      string  `json:"retailer"`
	First         float64 `json:"first"`
	Last          float64 `json:"last"`
	ChangePercent float64 `json:"change_percent"`
}

// Summary is the end-of-session report.
type Summary struct {
	Session   Session        `json:"session"`
	BestDeal  *RetailerStats `json:"best_deal,omitempty"`
	Trends    []Trend        `json:"trends"`
	AlertsAll int            `json:"alerts_total"`
	Alerts    []Alert        `json:"alerts"`
}

// ListedSession is a session row plus whether it runs in this process.
type ListedSession struct {
	SessionListing
	Active bool `json:"active"`
}

func (t *Tracker) Statistics(ctx context.Context, id int64) (*Statistics, error) {
	sess, err := t.store.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	retailers, err := t.store.RetailerStats(ctx, id)
	if err != nil {
		return nil, err
	}
	alerts, err := t.store.AlertCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Statistics{Session: *sess, Retailers: retailers, Alerts: alerts}, nil
}

func (t *Tracker) Summary(ctx context.Context, id int64) (*Summary, error) {
	sess, err := t.store.Session(ctx, id)
	if err != nil {
		return nil, err
	}

	stats, err := t.store.RetailerStats(ctx, id)
	if err != nil {
		return nil, err
	}

	order, history, err := t.store.PriceHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	alerts, err := t.store.Alerts(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Session: *sess, AlertsAll: len(alerts)}
	if len(stats) > 0 {
		best := stats[0]
		sum.BestDeal = &best
	}
	for _, r := range order {
		prices := history[r]
		if len(prices) < 2 || prices[0] <= 0 {
			continue
		}
		first, last := prices[0], prices[len(prices)-1]
		sum.Trends = append(sum.Trends, Trend{
			Retailer:      r,
			First:         first,
			Last:          last,
			ChangePercent: (last - first) / first * 100,
		})
	}
	if len(alerts) > summaryAlerts {
		alerts = alerts[len(alerts)-summaryAlerts:]
	}
	sum.Alerts = alerts
	return sum, nil
}

func (t *Tracker) ListSessions(ctx context.Context) ([]ListedSession, error) {
	rows, err := t.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ListedSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, ListedSession{SessionListing: r, Active: t.IsActive(r.ID)})
	}
	return out, nil
}

// StatisticsText renders Statistics, or the not-found line for unknown sessions.
func (t *Tracker) StatisticsText(ctx context.Context, id int64) (string, error) {
	st, err := t.Statistics(ctx, id)
	if apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound) {
		return NotFoundText(id), nil
	}
	if err != nil {
		return "", err
	}
	return FormatStatistics(st), nil
}

// SummaryText renders Summary, or the not-found line for unknown sessions.
func (t *Tracker) SummaryText(ctx context.Context, id int64) (string, error) {
	sum, err := t.Summary(ctx, id)
	if apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound) {
		return NotFoundText(id), nil
	}
	if err != nil {
		return "", err
	}
	return FormatSummary(sum), nil
}

func (t *Tracker) ListSessionsText(ctx context.Context) (string, error) {
	sessions, err := t.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	return FormatSessions(sessions), nil
}

func NotFoundText(id int64) string {
	return fmt.Sprintf("❌ Session %d not found", id)
}

func FormatStatistics(st *Statistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "📊 STATISTICS - Session #%d [%s]\n", st.Session.ID, strings.ToUpper(st.Session.Status))
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Product: %s\n", st.Session.ProductQuery)
	fmt.Fprintf(&b, "Started: %s\n", st.Session.StartTime.Local().Format(timeLayout))

	if len(st.Retailers) == 0 {
		b.WriteString("\nNo price data recorded yet.\n")
	} else {
		fmt.Fprintf(&b, "\n%-20s %-8s %-12s %-12s %-12s\n", "Retailer", "Checks", "Min", "Max", "Avg")
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 64))
		for _, r := range st.Retailers {
			fmt.Fprintf(&b, "%-20s %-8d $%-10.2f $%-10.2f $%-10.2f\n",
				shorten(r.Retailer, retailerColumn), r.Checks, r.Min, r.Max, r.Avg)
		}
	}

	fmt.Fprintf(&b, "\n🚨 Price alerts: %d", st.Alerts)
	return b.String()
}

func FormatSummary(sum *Summary) string {
	end := "ongoing"
	if sum.Session.EndTime != nil {
		end = sum.Session.EndTime.Local().Format(timeLayout)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "📋 SUMMARY - Session #%d [%s]\n", sum.Session.ID, strings.ToUpper(sum.Session.Status))
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "📦 Product: %s\n", sum.Session.ProductQuery)
	fmt.Fprintf(&b, "📅 Period: %s to %s\n", sum.Session.StartTime.Local().Format(timeLayout), end)
	fmt.Fprintf(&b, "⏱️ Interval: Every %d minutes\n", sum.Session.IntervalMinutes)

	if sum.BestDeal != nil {
		fmt.Fprintf(&b, "\n🏆 BEST DEAL: %s at $%.2f\n", sum.BestDeal.Retailer, sum.BestDeal.Min)
	}

	if len(sum.Trends) > 0 {
		b.WriteString("\n📈 PRICE TRENDS:\n")
		for _, tr := range sum.Trends {
			icon := "➡️"
			switch {
			case tr.ChangePercent < 0:
				icon = "📉"
			case tr.ChangePercent > 0:
				icon = "📈"
			}
			fmt.Fprintf(&b, "   %s %s: $%.2f → $%.2f (%s)\n", icon, tr.Retailer, tr.First, tr.Last, formatSigned(tr.ChangePercent))
		}
	}

	if len(sum.Alerts) > 0 {
		fmt.Fprintf(&b, "\n🚨 ALERTS (%d):\n", sum.AlertsAll)
		for _, a := range sum.Alerts {
			arrow := "↑"
			if a.Dropped() {
				arrow = "↓"
			}
			fmt.Fprintf(&b, "   %s %s: $%.2f → $%.2f (%s)\n", arrow, a.Retailer, a.OldPrice, a.NewPrice, formatSigned(a.ChangePercent))
		}
	}

	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	return b.String()
}

func FormatSessions(sessions []ListedSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", 70))
	b.WriteString("📋 TRACKING SESSIONS\n")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(&b, "%-5s %-25s %-12s %-10s %-8s\n", "ID", "Product", "Status", "Records", "Active")
	fmt.Fprintf(&b, "%s", strings.Repeat("-", 70))

	for _, s := range sessions {
		active := ""
		if s.Active {
			active = "✅"
		}
		fmt.Fprintf(&b, "\n%-5d %-25s %-12s %-10d %-8s",
			s.ID, shorten(s.ProductQuery, productColumn), s.Status, s.Records, active)
	}
	return b.String()
}

// shorten cuts s to width-2 runes plus ".." when it is longer than width.
func shorten(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-2]) + ".."
}
