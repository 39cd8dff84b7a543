package tracker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	awsclient "shopping-agent/internal/common/aws"
	apperrors "shopping-agent/internal/common/errors"
)

const DefaultAlertThreshold = 5.0

// Alert records a significant change between a retailer's two latest totals.
type Alert struct {
	SessionID     int64     `json:"session_id"`
	Retailer      string    `json:"retailer"`
	OldPrice      float64   `json:"old_price"`
	NewPrice      float64   `json:"new_price"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Dropped reports whether the price went down.
func (a Alert) Dropped() bool { return a.ChangePercent < 0 }

func (a Alert) Direction() string {
	if a.Dropped() {
		return "📉 DROPPED"
	}
	return "📈 INCREASED"
}

// String is the line pushed to the tracker output.
func (a Alert) String() string {
	return fmt.Sprintf("🚨 ALERT: %s %s by %.1f%% ($%.2f → $%.2f)",
		a.Retailer, a.Direction(), math.Abs(a.ChangePercent), a.OldPrice, a.NewPrice)
}

// DetectAlerts compares each retailer's newest total (index 0) with the one before it.
// Retailers come out in name order.
func DetectAlerts(sessionID int64, totals map[string][]float64, threshold float64, at time.Time) []Alert {
	retailers := make([]string, 0, len(totals))
	for r := range totals {
		retailers = append(retailers, r)
	}
	sort.Strings(retailers)

	var alerts []Alert
	for _, r := range retailers {
		prices := totals[r]
		if len(prices) < 2 {
			continue
		}
		newPrice, oldPrice := prices[0], prices[1]
		if oldPrice <= 0 {
			continue
		}
		change := (newPrice - oldPrice) / oldPrice * 100
		if math.Abs(change) < threshold {
			continue
		}
		alerts = append(alerts, Alert{
			SessionID:     sessionID,
			Retailer:      r,
			OldPrice:      oldPrice,
			NewPrice:      newPrice,
			ChangePercent: change,
			Timestamp:     at,
		})
	}
	return alerts
}

// Notifier delivers price alerts outside the process.
type Notifier interface {
	Notify(ctx context.Context, product string, alert Alert) error
}

// AWSNotifier publishes alerts to an SNS topic and/or emails them through SES.
type AWSNotifier struct {
	sns      *awsclient.SNSClient
	ses      *awsclient.SESClient
	topicARN string
	from     string
	to       []string
}

// NewAWSNotifier accepts nil clients for disabled channels.
func NewAWSNotifier(snsClient *awsclient.SNSClient, topicARN string, sesClient *awsclient.SESClient, from string, to []string) *AWSNotifier {
	return &AWSNotifier{
		sns:      snsClient,
		ses:      sesClient,
		topicARN: topicARN,
		from:     from,
		to:       to,
	}
}

func (n *AWSNotifier) Notify(ctx context.Context, product string, alert Alert) error {
	subject := fmt.Sprintf("Price alert: %s at %s", product, alert.Retailer)
	body := fmt.Sprintf("%s\n\nProduct: %s\nSession: #%d\nTime: %s",
		alert.String(), product, alert.SessionID, alert.Timestamp.Format(time.RFC1123))

	if n.sns != nil && n.topicARN != "" {
		if _, err := n.sns.PublishText(ctx, n.topicARN, subject, body); err != nil {
			return apperrors.NewNotificationSendFailedError("sns", err)
		}
	}

	if n.ses != nil && len(n.to) > 0 {
		if _, err := n.ses.SendText(ctx, n.from, n.to, subject, body); err != nil {
			return apperrors.NewNotificationSendFailedError("email", err)
		}
	}
	return nil
}

// formatSigned renders a percent change with an explicit sign, e.g. "+5.0%".
func formatSigned(change float64) string {
	return fmt.Sprintf("%+.1f%%", change)
}
