// Package tracker checks product prices on an interval, stores them and
// raises alerts when a retailer's total moves past a threshold.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shopping-agent/internal/agent"
	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
)

// PriceSearcher produces a price comparison report. *agent.Agent satisfies it.
type PriceSearcher interface {
	SearchProductPrices(ctx context.Context, query string, onSearch agent.ProgressFunc) (string, error)
}

// CheckResult is the outcome of one price check.
type CheckResult struct {
	RecordsSaved int     `json:"recordsSaved"`
	Alerts       []Alert `json:"alerts"`
}

// ActiveSession describes a running tracking loop.
type ActiveSession struct {
	ID       int64         `json:"id"`
	Product  string        `json:"product"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
}

type session struct {
	id       int64
	product  string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

type Tracker struct {
	store     *Store
	searcher  PriceSearcher
	notifier  Notifier
	threshold float64
	taxRate   float64
	logger    logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
	wg       sync.WaitGroup

	outMu  sync.Mutex
	output []string
}

type Option func(*Tracker)

func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithThreshold sets the alert threshold in percent.
func WithThreshold(percent float64) Option {
	return func(t *Tracker) {
		if percent > 0 {
			t.threshold = percent
		}
	}
}

// WithTaxRate fills in the sales tax, in percent, for records whose report
// line carried none.
func WithTaxRate(percent float64) Option {
	return func(t *Tracker) {
		if percent > 0 {
			t.taxRate = percent
		}
	}
}

func New(store *Store, searcher PriceSearcher, log logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		searcher:  searcher,
		threshold: DefaultAlertThreshold,
		logger:    log.With(map[string]interface{}{"component": "tracker"}),
		now:       time.Now,
		sessions:  make(map[int64]*session),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store exposes the underlying store for reports.
func (t *Tracker) Store() *Store { return t.store }

// Session loads a stored session.
func (t *Tracker) Session(ctx context.Context, id int64) (*Session, error) {
	return t.store.Session(ctx, id)
}

// StartTracking records a new session and starts checking in the background.
// A zero duration tracks until stopped. The loop outlives ctx's cancellation.
func (t *Tracker) StartTracking(ctx context.Context, query string, interval, duration time.Duration) (int64, error) {
	if interval <= 0 {
		interval = time.Hour
	}

	id, err := t.store.CreateSession(ctx, query, int(interval.Minutes()), t.now())
	if err != nil {
		return 0, err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		id:       id,
		product:  query,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()
	metrics.ActiveTrackingSessions.Inc()

	t.wg.Add(1)
	go t.loop(loopCtx, s, duration)

	t.logger.Info("tracking started", map[string]interface{}{
		"sessionId": id,
		"product":   query,
		"interval":  interval.String(),
		"duration":  duration.String(),
	})
	return id, nil
}

func (t *Tracker) loop(ctx context.Context, s *session, duration time.Duration) {
	defer t.wg.Done()
	defer close(s.done)

	start := t.now()
	checks := 0
	t.emit(fmt.Sprintf("📈 Session #%d started tracking: %s", s.id, s.product))

	for ctx.Err() == nil {
		if duration > 0 && t.now().Sub(start) >= duration {
			t.emit(fmt.Sprintf("⏰ Session #%d: Duration (%s) completed!", s.id, duration))
			break
		}

		checks++
		t.emit(fmt.Sprintf("🔄 Session #%d: Price check #%d", s.id, checks))

		res, err := t.Check(ctx, s.id, s.product)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.emit(fmt.Sprintf("❌ Session #%d error: %v", s.id, err))
		} else {
			t.emit(fmt.Sprintf("✅ Session #%d: Saved %d price records", s.id, res.RecordsSaved))
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	// the session row is closed even after cancellation
	if err := t.store.CompleteSession(context.WithoutCancel(ctx), s.id, t.now()); err != nil {
		t.logger.Error("failed to complete session", map[string]interface{}{
			"sessionId": s.id,
			"error":     err.Error(),
		})
	}
	t.emit(fmt.Sprintf("⏹️ Session #%d stopped", s.id))

	t.mu.Lock()
	delete(t.sessions, s.id)
	t.mu.Unlock()
	metrics.ActiveTrackingSessions.Dec()
}

// Check runs one search, stores the parsed records and raises alerts for
// the retailers that received a new price.
func (t *Tracker) Check(ctx context.Context, sessionID int64, query string) (*CheckResult, error) {
	report, err := t.searcher.SearchProductPrices(ctx, query, nil)
	if err != nil {
		metrics.TrackerChecks.WithLabelValues("error").Inc()
		return nil, err
	}

	records := EstimateMissing(ParseReport(report), t.taxRate)
	at := t.now()
	saved, err := t.store.SaveRecords(ctx, sessionID, at, records)
	if err != nil {
		metrics.TrackerChecks.WithLabelValues("error").Inc()
		return nil, err
	}
	t.logger.Info(fmt.Sprintf("Saved %d price records", saved), map[string]interface{}{
		"sessionId": sessionID,
	})

	alerts, err := t.checkAlerts(ctx, sessionID, query, records, at)
	if err != nil {
		metrics.TrackerChecks.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.TrackerChecks.WithLabelValues("success").Inc()
	return &CheckResult{RecordsSaved: saved, Alerts: alerts}, nil
}

func (t *Tracker) checkAlerts(ctx context.Context, sessionID int64, query string, records []PriceRecord, at time.Time) ([]Alert, error) {
	if len(records) == 0 {
		return nil, nil
	}

	totals, err := t.store.RecentTotals(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	updated := make(map[string][]float64, len(records))
	for _, r := range records {
		if prices, ok := totals[r.Retailer]; ok {
			updated[r.Retailer] = prices
		}
	}

	alerts := DetectAlerts(sessionID, updated, t.threshold, at)
	for _, a := range alerts {
		if err := t.store.InsertAlert(ctx, a); err != nil {
			return nil, err
		}
		direction := "increased"
		if a.Dropped() {
			direction = "dropped"
		}
		metrics.PriceAlerts.WithLabelValues(direction).Inc()
		t.emit(a.String())

		if t.notifier != nil {
			if err := t.notifier.Notify(ctx, query, a); err != nil {
				t.logger.Warn("alert notification failed", map[string]interface{}{
					"sessionId": sessionID,
					"retailer":  a.Retailer,
					"error":     err.Error(),
				})
			}
		}
	}
	return alerts, nil
}

// StopTracking signals a running session to stop. It reports false when the
// session is not running in this process.
func (t *Tracker) StopTracking(id int64) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	s.cancel()
	return true
}

// StopAll signals every running session and waits for the loops to exit.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	for _, s := range t.sessions {
		s.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Wait blocks until every loop has exited.
func (t *Tracker) Wait() { t.wg.Wait() }

// IsActive reports whether the session runs in this process.
func (t *Tracker) IsActive(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	return ok
}

// ActiveSessions lists running sessions ordered by id.
func (t *Tracker) ActiveSessions() []ActiveSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ActiveSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		running := true
		select {
		case <-s.done:
			running = false
		default:
		}
		out = append(out, ActiveSession{ID: s.id, Product: s.product, Interval: s.interval, Running: running})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RequireActive returns a SESSION_NOT_ACTIVE error unless the session runs here.
func (t *Tracker) RequireActive(id int64) error {
	if !t.IsActive(id) {
		return apperrors.NewSessionNotActiveError(id)
	}
	return nil
}

func (t *Tracker) emit(msg string) {
	t.logger.Debug(msg, nil)
	line := fmt.Sprintf("[%s] %s", t.now().Format("15:04:05"), msg)

	t.outMu.Lock()
	t.output = append(t.output, line)
	t.outMu.Unlock()
}

// PendingOutput drains the background messages queued since the last call.
func (t *Tracker) PendingOutput() []string {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	out := t.output
	t.output = nil
	return out
}
