// Package websearch calls the Tavily search API.
package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/database"
	apperrors "shopping-agent/internal/common/errors"
	commonhttp "shopping-agent/internal/common/http"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"

	"github.com/sony/gobreaker"
)

var (
	ErrEmptyQuery  = errors.New("search query is empty")
	ErrCircuitOpen = errors.New("search API circuit breaker is open")

	whitespace = regexp.MustCompile(`\s+`)
)

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

type Client struct {
	cfg      config.TavilyConfig
	http     *commonhttp.Client
	breaker  *gobreaker.CircuitBreaker
	cache    database.Cache
	cacheTTL time.Duration
	logger   logger.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithCache caches responses for ttl.
func WithCache(cache database.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func New(cfg config.TavilyConfig, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
		logger: log.With(map[string]interface{}{"component": "websearch"}),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tavily",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search normalises the query, consults the cache and calls the API through the breaker.
func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	req = c.withDefaults(req)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	key := cacheKey(req)
	if cached, ok := c.fromCache(ctx, key); ok {
		return cached, nil
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.execute(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.WebSearchRequests.WithLabelValues("circuit_open").Inc()
			return nil, apperrors.NewWebSearchFailedError(ErrCircuitOpen)
		}
		return nil, err
	}

	resp := out.(*Response)
	c.toCache(ctx, key, resp)
	return resp, nil
}

func (c *Client) withDefaults(req Request) Request {
	req.Query = NormalizeQuery(req.Query)
	if req.MaxResults <= 0 {
		req.MaxResults = c.cfg.MaxResults
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	if req.SearchDepth == "" {
		req.SearchDepth = c.cfg.SearchDepth
	}
	if req.SearchDepth == "" {
		req.SearchDepth = "advanced"
	}
	if req.IncludeAnswer == nil {
		include := c.cfg.IncludeAnswer
		req.IncludeAnswer = &include
	}
	return req
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	var body apiResponse
	err := c.http.PostJSON(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/search",
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
		apiRequest{
			Query:             req.Query,
			MaxResults:        req.MaxResults,
			SearchDepth:       req.SearchDepth,
			IncludeAnswer:     *req.IncludeAnswer,
			IncludeRawContent: false,
		}, &body)
	if err != nil {
		if commonhttp.IsTimeout(err) {
			metrics.WebSearchRequests.WithLabelValues("timeout").Inc()
			return nil, apperrors.NewWebSearchTimeoutError(req.Query)
		}
		metrics.WebSearchRequests.WithLabelValues("error").Inc()
		var status *commonhttp.StatusError
		if errors.As(err, &status) {
			return nil, apperrors.NewWebSearchFailedError(fmt.Errorf("search API returned %d", status.StatusCode))
		}
		return nil, apperrors.NewWebSearchFailedError(err)
	}

	results := processResults(body.Results, req.MaxResults)

	c.logger.Info("web search completed", map[string]interface{}{
		"query":       req.Query,
		"resultCount": len(results),
	})
	metrics.WebSearchRequests.WithLabelValues("success").Inc()

	return &Response{
		Query:   req.Query,
		Answer:  body.Answer,
		Results: results,
	}, nil
}

// NormalizeQuery trims the query and collapses internal whitespace.
func NormalizeQuery(q string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(q), " ")
}

// processResults drops duplicate URLs, orders by score and applies the limit.
func processResults(items []Result, limit int) []Result {
	seen := make(map[string]bool, len(items))
	results := make([]Result, 0, len(items))

	for _, item := range items {
		if item.URL == "" || seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		results = append(results, item)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", strings.ToLower(req.Query), req.SearchDepth, req.MaxResults)))
	return "websearch:" + hex.EncodeToString(sum[:])
}

func (c *Client) fromCache(ctx context.Context, key string) (*Response, bool) {
	if c.cache == nil {
		return nil, false
	}

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("search cache read failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("websearch", "miss").Inc()
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("websearch", "hit").Inc()
	return &resp, true
}

func (c *Client) toCache(ctx context.Context, key string, resp *Response) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, payload, c.cacheTTL); err != nil {
		c.logger.Warn("search cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
