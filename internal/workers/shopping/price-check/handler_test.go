// internal/workers/shopping/price-check/handler_test.go
package pricecheck

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/database"
	"shopping-agent/internal/common/camunda/camundatest"
	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/tracker"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fake Searcher
// ==========================

type fakeSearcher struct {
	mu      sync.Mutex
	reports []string
	queries []string
	err     error
}

func (f *fakeSearcher) SearchProductPrices(ctx context.Context, query string, _ agent.ProgressFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	if len(f.reports) == 0 {
		return "", nil
	}
	r := f.reports[0]
	f.reports = f.reports[1:]
	return r, nil
}

func report(amazon, walmart float64) string {
	return fmt.Sprintf(`1. **Amazon**
   - Base Price: $%.2f
   - **TOTAL: $%.2f**
   - URL: https://www.amazon.com/dp/1

2. **Walmart**
   - Base Price: $%.2f
   - **TOTAL: $%.2f**
   - URL: https://www.walmart.com/ip/2
`, amazon, amazon, walmart, walmart)
}

// ==========================
// Test Helpers
// ==========================

func newTestTracker(t *testing.T, searcher *fakeSearcher) (*tracker.Tracker, int64) {
	t.Helper()
	client, err := database.NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "prices.db")})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := tracker.NewStore(client)
	require.NoError(t, store.Migrate(context.Background()))
	id, err := store.CreateSession(context.Background(), "PlayStation 5", 60, time.Now())
	require.NoError(t, err)

	return tracker.New(store, searcher, logger.NewNoOpLogger()), id
}

func newTestHandler(t *testing.T, c Checker) *Handler {
	t.Helper()
	h, err := NewHandler(LoadConfig(), c, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

// ==========================
// Execute
// ==========================

func TestExecute_RecordsAndAlerts(t *testing.T) {
	searcher := &fakeSearcher{reports: []string{report(500, 480), report(450, 482)}}
	tr, id := newTestTracker(t, searcher)
	h := newTestHandler(t, tr)
	ctx := context.Background()

	out, err := h.execute(ctx, &Input{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, id, out.SessionID)
	assert.Equal(t, 2, out.RecordsSaved)
	assert.Empty(t, out.Alerts)
	assert.Equal(t, []string{"PlayStation 5"}, searcher.queries)

	out, err = h.execute(ctx, &Input{SessionID: id, ProductQuery: "PS5 Slim"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.RecordsSaved)
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, 1, out.AlertCount)
	assert.Equal(t, "Amazon", out.Alerts[0].Retailer)
	assert.Equal(t, 500.0, out.Alerts[0].OldPrice)
	assert.Equal(t, 450.0, out.Alerts[0].NewPrice)
	assert.InDelta(t, -10.0, out.Alerts[0].ChangePercent, 0.001)
	assert.Equal(t, "down", out.Alerts[0].Direction)
	assert.Equal(t, "PS5 Slim", searcher.queries[1])
}

func TestExecute_SessionNotFound(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeSearcher{})
	h := newTestHandler(t, tr)

	_, err := h.execute(context.Background(), &Input{SessionID: 99})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestExecute_SessionCompleted(t *testing.T) {
	searcher := &fakeSearcher{reports: []string{report(500, 480)}}
	tr, id := newTestTracker(t, searcher)
	require.NoError(t, tr.Store().CompleteSession(context.Background(), id, time.Now()))
	h := newTestHandler(t, tr)

	_, err := h.execute(context.Background(), &Input{SessionID: id})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotActive))
	assert.Empty(t, searcher.queries)
}

func TestExecute_SearchFailure(t *testing.T) {
	tr, id := newTestTracker(t, &fakeSearcher{err: errors.New("tavily unreachable")})
	h := newTestHandler(t, tr)

	_, err := h.execute(context.Background(), &Input{SessionID: id})
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCode("EXTERNAL_SERVICE_ERROR"), stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestExecute_CodedSearchFailure(t *testing.T) {
	tr, id := newTestTracker(t, &fakeSearcher{err: apperrors.NewWebSearchTimeoutError("PlayStation 5")})
	h := newTestHandler(t, tr)

	_, err := h.execute(context.Background(), &Input{SessionID: id})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeWebSearchTimeout))
}

// ==========================
// Handle
// ==========================

// slowChecker blocks every check until its context ends.
type slowChecker struct{}

func (slowChecker) Session(_ context.Context, id int64) (*tracker.Session, error) {
	return &tracker.Session{ID: id, ProductQuery: "PlayStation 5", Status: tracker.StatusActive}, nil
}

func (slowChecker) Check(ctx context.Context, _ int64, _ string) (*tracker.CheckResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testJob(vars string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                21,
		Type:               TaskType,
		Retries:            3,
		ProcessInstanceKey: 9,
		Variables:          vars,
	}}
}

func TestHandle_FailsJobAfterTimeout(t *testing.T) {
	h := newTestHandler(t, slowChecker{})
	h.config.Timeout = 50 * time.Millisecond
	client := camundatest.NewJobClient()

	err := h.Handle(client, testJob(`{"sessionId":3}`))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTimeout))

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "fail", sent[0].Command)
	assert.Equal(t, int64(21), sent[0].JobKey)
	assert.Equal(t, int32(2), sent[0].Retries)
	assert.NoError(t, sent[0].CtxErr)
}

func TestHandle_CompletesJob(t *testing.T) {
	searcher := &fakeSearcher{reports: []string{report(500, 480)}}
	tr, id := newTestTracker(t, searcher)
	h := newTestHandler(t, tr)
	client := camundatest.NewJobClient()

	require.NoError(t, h.Handle(client, testJob(fmt.Sprintf(`{"sessionId":%d}`, id))))

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "complete", sent[0].Command)
	assert.Contains(t, sent[0].Variables, `"recordsSaved":2`)
}

func TestHandle_InvalidInputThrowsError(t *testing.T) {
	h := newTestHandler(t, slowChecker{})
	client := camundatest.NewJobClient()

	err := h.Handle(client, testJob(`{"sessionId":"3"}`))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeJobInputInvalid))

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "throwError", sent[0].Command)
}

// ==========================
// Input Schema
// ==========================

func TestInputSchema(t *testing.T) {
	h := newTestHandler(t, nil)

	assert.True(t, h.schema.ValidateBytes([]byte(`{"sessionId":3}`)).Valid)
	assert.True(t, h.schema.ValidateBytes([]byte(`{"sessionId":3,"productQuery":"Laptop"}`)).Valid)
	assert.False(t, h.schema.ValidateBytes([]byte(`{}`)).Valid)
	assert.False(t, h.schema.ValidateBytes([]byte(`{"sessionId":0}`)).Valid)
	assert.False(t, h.schema.ValidateBytes([]byte(`{"sessionId":"3"}`)).Valid)
}

func TestConfigFromApp(t *testing.T) {
	c := ConfigFromApp(&config.Config{Workers: map[string]config.WorkerConfig{
		TaskType: {Enabled: true, Timeout: 45000},
	}})
	assert.True(t, c.Enabled)
	assert.Equal(t, 45*time.Second, c.Timeout)
}
