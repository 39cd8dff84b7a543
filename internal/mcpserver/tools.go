package mcpserver

import (
	"context"
	"fmt"
	"time"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/rag/retailers"
	"shopping-agent/internal/shopping"

	"github.com/mark3labs/mcp-go/mcp"
)

const defaultIntervalMinutes = 60

func (s *Server) registerShoppingTools() {
	s.add(mcp.NewTool("search_product_prices",
		mcp.WithDescription("Search for product prices across multiple retailers. Returns prices, URLs, tax estimates, and shipping costs."),
		mcp.WithString("product_query", mcp.Required(),
			mcp.Description("The product to search for (e.g., 'PlayStation 5', 'AirPods Pro 3')")),
	), s.searchProductPrices)

	s.add(mcp.NewTool("lookup_cashback_rates",
		mcp.WithDescription("Look up cashback rates from shopping portals (Rakuten, Capital One Shopping, ShopBack) for specific retailers."),
		mcp.WithArray("retailers", mcp.Required(),
			mcp.Description("List of retailer names to look up cashback for"),
			mcp.Items(map[string]interface{}{"type": "string"})),
		mcp.WithString("category",
			mcp.Description("Product category (Electronics, Clothing, Home, Beauty, General)"),
			mcp.DefaultString("General")),
	), s.lookupCashbackRates)

	s.add(mcp.NewTool("get_credit_card_recommendations",
		mcp.WithDescription("Get credit card recommendations for maximizing rewards at specific retailers."),
		mcp.WithArray("retailers", mcp.Required(),
			mcp.Description("List of retailer names"),
			mcp.Items(map[string]interface{}{"type": "string"})),
	), s.creditCardRecommendations)

	s.add(mcp.NewTool("verify_product_url",
		mcp.WithDescription("Verify if a URL is a valid product page (not a homepage or search results page)."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to verify")),
		mcp.WithString("expected_product", mcp.Required(), mcp.Description("The product that should be on this page")),
	), s.verifyProductURL)

	s.add(mcp.NewTool("complete_shopping_search",
		mcp.WithDescription("Run a complete shopping search with price comparison, cashback rates, and credit card recommendations. This is the main tool for finding the best deal."),
		mcp.WithString("product_query", mcp.Required(), mcp.Description("The product to search for")),
	), s.completeShoppingSearch)

	s.add(mcp.NewTool("find_retailers",
		mcp.WithDescription("List the retailers worth checking for a product, with direct search URLs and notes."),
		mcp.WithString("product_query", mcp.Required(), mcp.Description("The product to search for")),
		mcp.WithString("category",
			mcp.Description("Retailer category (electronics, clothing, home, beauty)"),
			mcp.DefaultString(retailers.DefaultCategory)),
	), s.findRetailers)
}

func (s *Server) registerTrackingTools() {
	s.add(mcp.NewTool("start_price_tracking",
		mcp.WithDescription("Start tracking prices for a product over time. Monitors prices periodically and alerts on significant changes."),
		mcp.WithString("product_query", mcp.Required(), mcp.Description("The product to track")),
		mcp.WithNumber("interval_minutes",
			mcp.Description("How often to check prices (in minutes)"),
			mcp.DefaultNumber(defaultIntervalMinutes),
			mcp.Min(1),
			wholeNumber()),
		mcp.WithNumber("duration_hours",
			mcp.Description("How long to track (in whole hours). Omit for indefinite tracking."),
			mcp.Min(0),
			wholeNumber()),
	), s.startPriceTracking)

	s.add(mcp.NewTool("get_tracking_statistics",
		mcp.WithDescription("Get price statistics for a tracking session."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("The tracking session ID"), wholeNumber()),
	), s.trackingStatistics)

	s.add(mcp.NewTool("get_tracking_summary",
		mcp.WithDescription("Get the best deal, price trends and recent alerts of a tracking session."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("The tracking session ID"), wholeNumber()),
	), s.trackingSummary)

	s.add(mcp.NewTool("stop_price_tracking",
		mcp.WithDescription("Stop a running price tracking session."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("The tracking session ID"), wholeNumber()),
	), s.stopPriceTracking)

	s.add(mcp.NewTool("list_tracking_sessions",
		mcp.WithDescription("List the most recent price tracking sessions with their record counts."),
	), s.listTrackingSessions)
}

func (s *Server) searchProductPrices(ctx context.Context, args map[string]interface{}) (string, error) {
	query := argString(args, "product_query")
	report, err := s.deps.Searcher.SearchProductPrices(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if report == "" {
		return fmt.Sprintf("No results found for %s", query), nil
	}
	return report, nil
}

func (s *Server) lookupCashbackRates(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.deps.Cashback.Lookup(ctx, argStrings(args, "retailers"), argString(args, "category"))
}

func (s *Server) creditCardRecommendations(_ context.Context, args map[string]interface{}) (string, error) {
	return shopping.FormatCardRecommendations(shopping.RecommendCards(argStrings(args, "retailers"))), nil
}

func (s *Server) verifyProductURL(_ context.Context, args map[string]interface{}) (string, error) {
	return shopping.ValidateURL(argString(args, "url"), argString(args, "expected_product")).String(), nil
}

func (s *Server) completeShoppingSearch(ctx context.Context, args map[string]interface{}) (string, error) {
	res, err := s.deps.Orchestrator.SearchProductComplete(ctx, argString(args, "product_query"))
	if err != nil {
		return "", err
	}
	return res.FinalResults, nil
}

func (s *Server) findRetailers(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.deps.Retailers.LookupRetailers(ctx, argString(args, "product_query"), argString(args, "category"))
}

func (s *Server) startPriceTracking(ctx context.Context, args map[string]interface{}) (string, error) {
	query := argString(args, "product_query")
	interval := argInt(args, "interval_minutes", defaultIntervalMinutes)
	hours := argInt(args, "duration_hours", 0)

	id, err := s.deps.Tracker.StartTracking(ctx, query, time.Duration(interval)*time.Minute, time.Duration(hours)*time.Hour)
	if err != nil {
		return "", err
	}

	duration := "Indefinite"
	if hours > 0 {
		duration = fmt.Sprintf("%d", hours)
	}
	return fmt.Sprintf(`✅ Price Tracking Started!

📋 Session ID: %d
📦 Product: %s
⏱️ Interval: Every %d minutes
⏳ Duration: %s hours

Use get_tracking_statistics with session_id=%d to check progress.`, id, query, interval, duration, id), nil
}

func (s *Server) trackingStatistics(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.deps.Tracker.StatisticsText(ctx, argID(args))
}

func (s *Server) trackingSummary(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.deps.Tracker.SummaryText(ctx, argID(args))
}

func (s *Server) stopPriceTracking(_ context.Context, args map[string]interface{}) (string, error) {
	id := argID(args)
	if !s.deps.Tracker.StopTracking(id) {
		return "", apperrors.NewSessionNotActiveError(id)
	}
	return fmt.Sprintf("⏹️ Stopping session #%d...", id), nil
}

func (s *Server) listTrackingSessions(ctx context.Context, _ map[string]interface{}) (string, error) {
	return s.deps.Tracker.ListSessionsText(ctx)
}

// wholeNumber narrows a number property to JSON Schema integers, so 0.5 is
// rejected instead of truncated.
func wholeNumber() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["type"] = "integer"
	}
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// argInt reads a JSON number. Integer properties are checked by the schema first.
func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func argID(args map[string]interface{}) int64 {
	return int64(argInt(args, "session_id", 0))
}

func argStrings(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
