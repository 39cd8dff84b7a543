// Package cashback answers cashback-rate questions from the indexed cashback knowledge base.
package cashback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"shopping-agent/internal/common/database"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/knowledge"
	"shopping-agent/internal/llm"
	"shopping-agent/internal/vectorstore"
)

const (
	Collection = "cashback_rates"

	MsgNoRetailers    = "No retailers provided for cashback lookup."
	MsgNotInitialized = "Cashback information unavailable - vector store not initialized."

	retailerK = 4
	categoryK = 2
)

const synthesisSystemPrompt = `You are a cashback specialist. Based on the retrieved information,
provide accurate cashback rates for the specified retailers and product category.

RULES:
1. Only report rates that are explicitly mentioned in the context
2. If a retailer is marked as EXCLUDED, report "No cashback available"
3. Use category-specific rates when available
4. Format: [Retailer]: Rakuten X%, Capital One Shopping X%, ShopBack X%
5. If no info found for a retailer, say "No data available"
6. Be concise - one line per retailer`

const synthesisUserPrompt = `Product Category: %s
Retailers to look up: %s

Retrieved Information:
%s

Provide cashback rates for each retailer listed above.`

type Service struct {
	kbPath    string
	store     vectorstore.Store
	completer llm.Completer
	cache     database.Cache
	cacheTTL  time.Duration
	logger    logger.Logger

	mu    sync.RWMutex
	kb    *knowledge.CashbackKB
	ready bool
}

type Option func(*Service)

// WithCache caches final answers for ttl.
func WithCache(cache database.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// New wraps an already loaded knowledge base. Call Init before Lookup.
func New(kbPath string, kb *knowledge.CashbackKB, store vectorstore.Store, completer llm.Completer, log logger.Logger, opts ...Option) *Service {
	if kb == nil {
		kb = &knowledge.CashbackKB{}
	}
	s := &Service{
		kbPath:    kbPath,
		kb:        kb,
		store:     store,
		completer: completer,
		logger:    log.With(map[string]interface{}{"component": "cashback-rag"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the knowledge base from kbPath and opens or builds the index.
func Open(ctx context.Context, kbPath string, store vectorstore.Store, completer llm.Completer, log logger.Logger, opts ...Option) (*Service, error) {
	kb, err := knowledge.LoadCashback(kbPath, log)
	if err != nil {
		return nil, err
	}
	s := New(kbPath, kb, store, completer, log, opts...)
	s.Init(ctx)
	return s, nil
}

// Init opens the persisted index or builds it. Failures leave the service
// answering from the knowledge base only.
func (s *Service) Init(ctx context.Context) {
	status, err := vectorstore.OpenOrBuild(ctx, s.store, s.documents)
	s.setStatus(status, err)
}

// Rebuild reloads the knowledge base and rebuilds the index from scratch.
func (s *Service) Rebuild(ctx context.Context) (vectorstore.Status, error) {
	if s.kbPath != "" {
		kb, err := knowledge.LoadCashback(s.kbPath, s.logger)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.kb = kb
		s.mu.Unlock()
	}

	status, err := vectorstore.Rebuild(ctx, s.store, s.documents)
	s.setStatus(status, err)
	return status, err
}

func (s *Service) setStatus(status vectorstore.Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.ready = false
		s.logger.Warn("cashback index unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	s.ready = status != vectorstore.StatusEmpty
	s.logger.Info("cashback index ready", map[string]interface{}{
		"index":  s.store.Name(),
		"status": string(status),
	})
}

func (s *Service) documents() ([]vectorstore.Document, error) {
	return s.knowledgeBase().Documents(), nil
}

func (s *Service) knowledgeBase() *knowledge.CashbackKB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kb
}

// Ready reports whether the vector index can be queried.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Lookup reports cashback rates for each retailer in the given product category.
func (s *Service) Lookup(ctx context.Context, retailers []string, category string) (string, error) {
	if len(retailers) == 0 {
		return MsgNoRetailers, nil
	}
	if !s.Ready() {
		return MsgNotInitialized, nil
	}

	key := cacheKey(retailers, category)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	s.logger.Info("looking up cashback rates", map[string]interface{}{
		"retailers": strings.Join(retailers, ", "),
		"category":  category,
	})

	var docs []vectorstore.Document
	for _, retailer := range retailers {
		results, err := s.store.Search(ctx, fmt.Sprintf("cashback rate for %s %s", retailer, category), retailerK)
		if err != nil {
			return "", err
		}

		normalized := knowledge.NormalizeRetailer(retailer)
		lower := strings.ToLower(retailer)
		for _, r := range results {
			if strings.ToLower(r.Metadata["retailer"]) == normalized ||
				strings.Contains(strings.ToLower(r.Content), lower) {
				docs = append(docs, r.Document)
			}
		}
	}

	guidance, err := s.store.Search(ctx, fmt.Sprintf("cashback rates for %s products", category), categoryK)
	if err != nil {
		return "", err
	}
	for _, r := range guidance {
		if r.Metadata["source"] == knowledge.SourceCategoryGuidance {
			docs = append(docs, r.Document)
		}
	}

	if len(docs) == 0 {
		s.logger.Warn("no indexed cashback matches, using knowledge base directly", nil)
		return FallbackLookup(s.knowledgeBase(), retailers, category), nil
	}

	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
	}

	answer, err := s.completer.Complete(ctx, synthesisSystemPrompt,
		fmt.Sprintf(synthesisUserPrompt, category, strings.Join(retailers, ", "), strings.Join(contents, "\n\n---\n\n")))
	if err != nil {
		return "", err
	}

	s.toCache(ctx, key, answer)
	return answer, nil
}

// FallbackLookup answers directly from the knowledge base tables.
func FallbackLookup(kb *knowledge.CashbackKB, retailers []string, category string) string {
	lines := make([]string, 0, len(retailers))
	for _, retailer := range retailers {
		key := knowledge.NormalizeRetailer(retailer)

		if _, excluded := kb.UniversalExclusions[key]; excluded {
			lines = append(lines, retailer+": No cashback (excluded from all portals)")
			continue
		}

		var rates []string
		for _, portalID := range kb.PortalIDs() {
			portal := kb.Portals[portalID]
			name := portal.PortalName(portalID)

			if portal.Excludes(key) {
				rates = append(rates, name+": No cashback")
				continue
			}
			info, ok := portal.Retailers[key]
			if !ok {
				continue
			}
			rate, ok := info.Categories[strings.ToLower(category)]
			if !ok {
				rate = info.BaseRate
			}
			if rate == "" {
				rate = "varies"
			}
			rates = append(rates, name+" "+rate)
		}

		if len(rates) == 0 {
			lines = append(lines, retailer+": No cashback data available")
			continue
		}
		lines = append(lines, retailer+": "+strings.Join(rates, ", "))
	}
	return strings.Join(lines, "\n")
}

// CategoryGuidance describes typical rates for a category.
func (s *Service) CategoryGuidance(category string) string {
	g, ok := s.knowledgeBase().Guidance(category)
	if !ok {
		return fmt.Sprintf("No specific guidance for %s category", category)
	}
	return fmt.Sprintf("Category: %s\nTypical cashback range: %s\nBest portal: %s\nNotes: %s",
		category, orDefault(g.TypicalRange, "varies"), orDefault(g.BestPortal, "varies"), orDefault(g.Notes, "N/A"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func cacheKey(retailers []string, category string) string {
	normalized := make([]string, 0, len(retailers))
	for _, r := range retailers {
		normalized = append(normalized, knowledge.NormalizeRetailer(r))
	}
	sum := sha256.Sum256([]byte(strings.ToLower(category) + "|" + strings.Join(normalized, ",")))
	return "cashback:" + hex.EncodeToString(sum[:])
}

func (s *Service) fromCache(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	val, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cashback cache read failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("cashback", "miss").Inc()
		return "", false
	}
	metrics.CacheLookups.WithLabelValues("cashback", "hit").Inc()
	return val, true
}

func (s *Service) toCache(ctx context.Context, key, answer string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, answer, s.cacheTTL); err != nil {
		s.logger.Warn("cashback cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
