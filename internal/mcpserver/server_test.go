package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/database"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/observability"
	"shopping-agent/internal/orchestrator"
	"shopping-agent/internal/tracker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	report string
	err    error
	query  string
}

func (f *fakeSearcher) SearchProductPrices(ctx context.Context, query string, onSearch agent.ProgressFunc) (string, error) {
	f.query = query
	return f.report, f.err
}

type fakeCashback struct {
	retailers []string
	category  string
}

func (f *fakeCashback) Lookup(ctx context.Context, retailers []string, category string) (string, error) {
	f.retailers = retailers
	f.category = category
	return fmt.Sprintf("Cashback for %s (%s)", strings.Join(retailers, ", "), category), nil
}

type fakeRetailers struct{}

func (fakeRetailers) LookupRetailers(ctx context.Context, query, category string) (string, error) {
	return fmt.Sprintf("Retailers for %s (%s)", query, category), nil
}

type fakeOrchestrator struct {
	err error
}

func (f *fakeOrchestrator) SearchProductComplete(ctx context.Context, query string) (*orchestrator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{ProductQuery: query, FinalResults: "🏆 BEST OVERALL DEAL: Costco"}, nil
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func (r toolResult) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Searcher == nil {
		deps.Searcher = &fakeSearcher{report: "**Amazon**\n- TOTAL: $499.99"}
	}
	if deps.Cashback == nil {
		deps.Cashback = &fakeCashback{}
	}
	if deps.Retailers == nil {
		deps.Retailers = fakeRetailers{}
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = &fakeOrchestrator{}
	}
	return New(deps, logger.NewTestLogger(t))
}

func newTestTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	client, err := database.NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "prices.db")})
	require.NoError(t, err)

	store := tracker.NewStore(client)
	require.NoError(t, store.Migrate(context.Background()))

	tr := tracker.New(store, &fakeSearcher{}, logger.NewNoOpLogger())
	t.Cleanup(func() {
		tr.StopAll()
		client.Close()
	})
	return tr
}

func send(t *testing.T, s *Server, method string, params interface{}) rpcResponse {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	reply := s.MCPServer().HandleMessage(context.Background(), raw)
	out, err := json.Marshal(reply)
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) toolResult {
	t.Helper()
	resp := send(t, s, "tools/call", map[string]interface{}{"name": name, "arguments": args})
	require.Nil(t, resp.Error)

	var res toolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	return res
}

// ==========================
// Protocol
// ==========================

func TestInitialize(t *testing.T) {
	s := newTestServer(t, Deps{})

	resp := send(t, s, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]interface{}{"name": "test", "version": "0"},
		"capabilities":    map[string]interface{}{},
	})
	require.Nil(t, resp.Error)

	var result struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "shopping-agent", result.ServerInfo.Name)
	assert.Equal(t, "1.0.0", result.ServerInfo.Version)
	assert.Contains(t, result.Capabilities, "tools")
}

func TestListTools(t *testing.T) {
	s := newTestServer(t, Deps{Tracker: newTestTracker(t)})

	resp := send(t, s, "tools/list", nil)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name        string                 `json:"name"`
			InputSchema map[string]interface{} `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_product_prices", "lookup_cashback_rates", "get_credit_card_recommendations",
		"verify_product_url", "complete_shopping_search", "find_retailers",
		"start_price_tracking", "get_tracking_statistics", "get_tracking_summary",
		"stop_price_tracking", "list_tracking_sessions",
	}, names)
	assert.Len(t, s.ToolNames(), 11)
}

func TestListTools_WithoutTracker(t *testing.T) {
	s := newTestServer(t, Deps{})
	assert.Equal(t, []string{
		"search_product_prices", "lookup_cashback_rates", "get_credit_card_recommendations",
		"verify_product_url", "complete_shopping_search", "find_retailers",
	}, s.ToolNames())
}

func TestUnknownTool(t *testing.T) {
	s := newTestServer(t, Deps{})

	resp := send(t, s, "tools/call", map[string]interface{}{"name": "buy_now", "arguments": map[string]interface{}{}})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "buy_now")
}

// ==========================
// Shopping tools
// ==========================

func TestSearchProductPrices(t *testing.T) {
	searcher := &fakeSearcher{report: "**Amazon**\n- TOTAL: $499.99"}
	s := newTestServer(t, Deps{Searcher: searcher})

	res := callTool(t, s, "search_product_prices", map[string]interface{}{"product_query": "PlayStation 5"})
	assert.False(t, res.IsError)
	assert.Equal(t, "text", res.Content[0].Type)
	assert.Contains(t, res.Text(), "$499.99")
	assert.Equal(t, "PlayStation 5", searcher.query)
}

func TestSearchProductPrices_Errors(t *testing.T) {
	s := newTestServer(t, Deps{Searcher: &fakeSearcher{err: errors.New("tavily unavailable")}})

	res := callTool(t, s, "search_product_prices", map[string]interface{}{"product_query": "PlayStation 5"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error executing tool search_product_prices: tavily unavailable", res.Text())

	res = callTool(t, s, "search_product_prices", map[string]interface{}{})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "TOOL_ARGUMENTS_INVALID")
	assert.Contains(t, res.Text(), "product_query")
}

func TestSearchProductPrices_EmptyReport(t *testing.T) {
	s := newTestServer(t, Deps{Searcher: &fakeSearcher{}})

	res := callTool(t, s, "search_product_prices", map[string]interface{}{"product_query": "Flux capacitor"})
	assert.False(t, res.IsError)
	assert.Equal(t, "No results found for Flux capacitor", res.Text())
}

func TestLookupCashbackRates(t *testing.T) {
	cb := &fakeCashback{}
	s := newTestServer(t, Deps{Cashback: cb})

	res := callTool(t, s, "lookup_cashback_rates", map[string]interface{}{"retailers": []string{"Amazon", "Target"}})
	assert.False(t, res.IsError)
	assert.Equal(t, "Cashback for Amazon, Target (General)", res.Text())
	assert.Equal(t, []string{"Amazon", "Target"}, cb.retailers)

	res = callTool(t, s, "lookup_cashback_rates", map[string]interface{}{"retailers": "Amazon"})
	assert.True(t, res.IsError)
}

func TestCreditCardRecommendations(t *testing.T) {
	s := newTestServer(t, Deps{})

	res := callTool(t, s, "get_credit_card_recommendations", map[string]interface{}{"retailers": []string{"Amazon", "Costco"}})
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text(), "💳 Credit Card Recommendations:")
	assert.Contains(t, res.Text(), "• Amazon: Amazon Prime Visa - 5% back")
	assert.Contains(t, res.Text(), "• Costco only accepts Visa cards")
}

func TestVerifyProductURL(t *testing.T) {
	s := newTestServer(t, Deps{})

	res := callTool(t, s, "verify_product_url", map[string]interface{}{
		"url":              "https://www.amazon.com/dp/B0CL5KNB9M",
		"expected_product": "PlayStation 5",
	})
	assert.Equal(t, "✅ URL appears to be a valid product page for 'PlayStation 5'", res.Text())

	res = callTool(t, s, "verify_product_url", map[string]interface{}{
		"url":              "https://www.walmart.com/search?q=ps5",
		"expected_product": "PlayStation 5",
	})
	assert.Contains(t, res.Text(), "❌ URL Validation Issues:")
	assert.Contains(t, res.Text(), "search page")
}

func TestCompleteShoppingSearch(t *testing.T) {
	s := newTestServer(t, Deps{})
	res := callTool(t, s, "complete_shopping_search", map[string]interface{}{"product_query": "PlayStation 5"})
	assert.False(t, res.IsError)
	assert.Equal(t, "🏆 BEST OVERALL DEAL: Costco", res.Text())

	s = newTestServer(t, Deps{Orchestrator: &fakeOrchestrator{err: errors.New("llm down")}})
	res = callTool(t, s, "complete_shopping_search", map[string]interface{}{"product_query": "PlayStation 5"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error executing tool complete_shopping_search: llm down", res.Text())
}

func TestFindRetailers(t *testing.T) {
	s := newTestServer(t, Deps{})

	res := callTool(t, s, "find_retailers", map[string]interface{}{"product_query": "Sony A7 IV"})
	assert.Equal(t, "Retailers for Sony A7 IV (electronics)", res.Text())

	res = callTool(t, s, "find_retailers", map[string]interface{}{"product_query": "Sofa", "category": "home"})
	assert.Equal(t, "Retailers for Sofa (home)", res.Text())
}

// ==========================
// Tracking tools
// ==========================

func TestTrackingTools(t *testing.T) {
	tr := newTestTracker(t)
	s := newTestServer(t, Deps{Tracker: tr})

	res := callTool(t, s, "start_price_tracking", map[string]interface{}{"product_query": "PlayStation 5"})
	require.False(t, res.IsError, res.Text())
	assert.Contains(t, res.Text(), "✅ Price Tracking Started!")
	assert.Contains(t, res.Text(), "📋 Session ID: 1")
	assert.Contains(t, res.Text(), "⏱️ Interval: Every 60 minutes")
	assert.Contains(t, res.Text(), "⏳ Duration: Indefinite hours")
	assert.Contains(t, res.Text(), "session_id=1")
	assert.True(t, tr.IsActive(1))

	res = callTool(t, s, "get_tracking_statistics", map[string]interface{}{"session_id": 1})
	assert.Contains(t, res.Text(), "📊 STATISTICS - Session #1 [ACTIVE]")

	res = callTool(t, s, "get_tracking_summary", map[string]interface{}{"session_id": 1})
	assert.Contains(t, res.Text(), "📋 SUMMARY - Session #1")

	res = callTool(t, s, "list_tracking_sessions", nil)
	assert.Contains(t, res.Text(), "📋 TRACKING SESSIONS")
	assert.Contains(t, res.Text(), "PlayStation 5")

	res = callTool(t, s, "stop_price_tracking", map[string]interface{}{"session_id": 1})
	assert.False(t, res.IsError)
	assert.Equal(t, "⏹️ Stopping session #1...", res.Text())
	tr.Wait()

	res = callTool(t, s, "stop_price_tracking", map[string]interface{}{"session_id": 1})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "SESSION_NOT_ACTIVE")
}

func TestTrackingTools_DurationAndMissingSession(t *testing.T) {
	tr := newTestTracker(t)
	s := newTestServer(t, Deps{Tracker: tr})

	res := callTool(t, s, "start_price_tracking", map[string]interface{}{
		"product_query":    "Laptop",
		"interval_minutes": 15,
		"duration_hours":   3,
	})
	assert.Contains(t, res.Text(), "⏱️ Interval: Every 15 minutes")
	assert.Contains(t, res.Text(), "⏳ Duration: 3 hours")

	res = callTool(t, s, "get_tracking_statistics", map[string]interface{}{"session_id": 99})
	assert.False(t, res.IsError)
	assert.Equal(t, "❌ Session 99 not found", res.Text())

	res = callTool(t, s, "get_tracking_statistics", map[string]interface{}{"session_id": "one"})
	assert.True(t, res.IsError)

	res = callTool(t, s, "start_price_tracking", map[string]interface{}{"product_query": "Laptop", "interval_minutes": 0})
	assert.True(t, res.IsError)
}

func TestTrackingTools_RejectFractionalNumbers(t *testing.T) {
	tr := newTestTracker(t)
	s := newTestServer(t, Deps{Tracker: tr})

	res := callTool(t, s, "start_price_tracking", map[string]interface{}{
		"product_query":  "Laptop",
		"duration_hours": 0.5,
	})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "TOOL_ARGUMENTS_INVALID")

	res = callTool(t, s, "start_price_tracking", map[string]interface{}{
		"product_query":    "Laptop",
		"interval_minutes": 7.5,
	})
	assert.True(t, res.IsError)

	res = callTool(t, s, "get_tracking_statistics", map[string]interface{}{"session_id": 1.5})
	assert.True(t, res.IsError)

	res = callTool(t, s, "list_tracking_sessions", nil)
	assert.NotContains(t, res.Text(), "Laptop")
}

// ==========================
// Observability
// ==========================

func TestToolCallsRecordOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.New("shopping-agent-test", observability.Options{Registerer: reg})
	defer obs.Shutdown()

	s := newTestServer(t, Deps{Observability: obs})
	callTool(t, s, "verify_product_url", map[string]interface{}{
		"url":              "https://www.amazon.com/dp/B0CL5KNB9M",
		"expected_product": "PlayStation 5",
	})

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if strings.Contains(mf.GetName(), "processed") {
			found = true
		}
	}
	assert.True(t, found)
}
