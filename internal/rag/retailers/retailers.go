// Package retailers maps product categories to retailers and their search URLs.
package retailers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/knowledge"
	"shopping-agent/internal/vectorstore"
)

const (
	Collection = "retailer_info"

	DefaultCategory  = "electronics"
	defaultSearchTip = "Use specific product name and model number"
	similarityK      = 5
)

var fallbackRetailerIDs = []string{"amazon", "best_buy", "walmart", "target", "costco"}

// SearchURL is one retailer's search page for a query.
type SearchURL struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Service struct {
	kbPath string
	store  vectorstore.Store
	logger logger.Logger

	mu    sync.RWMutex
	kb    *knowledge.RetailersKB
	ready bool
}

// New wraps a loaded knowledge base. store may be nil.
func New(kbPath string, kb *knowledge.RetailersKB, store vectorstore.Store, log logger.Logger) *Service {
	if kb == nil {
		kb = &knowledge.RetailersKB{}
	}
	return &Service{
		kbPath: kbPath,
		kb:     kb,
		store:  store,
		logger: log.With(map[string]interface{}{"component": "retailers-rag"}),
	}
}

// Open loads the knowledge base from kbPath and opens or builds the index.
func Open(ctx context.Context, kbPath string, store vectorstore.Store, log logger.Logger) (*Service, error) {
	kb, err := knowledge.LoadRetailers(kbPath, log)
	if err != nil {
		return nil, err
	}
	s := New(kbPath, kb, store, log)
	s.Init(ctx)
	return s, nil
}

// Init opens the persisted index or builds it.
func (s *Service) Init(ctx context.Context) {
	if s.store == nil {
		return
	}
	status, err := vectorstore.OpenOrBuild(ctx, s.store, s.documents)
	s.setStatus(status, err)
}

// Rebuild reloads the knowledge base and rebuilds the index.
func (s *Service) Rebuild(ctx context.Context) (vectorstore.Status, error) {
	if s.kbPath != "" {
		kb, err := knowledge.LoadRetailers(s.kbPath, s.logger)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.kb = kb
		s.mu.Unlock()
	}
	if s.store == nil {
		return vectorstore.StatusEmpty, nil
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
		s.logger.Warn("retailer index unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	s.ready = status != vectorstore.StatusEmpty
}

func (s *Service) documents() ([]vectorstore.Document, error) {
	return s.knowledgeBase().Documents(), nil
}

func (s *Service) knowledgeBase() *knowledge.RetailersKB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kb
}

func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// RetailersForCategory lists the recommended retailers in knowledge base order.
func (s *Service) RetailersForCategory(category string) []knowledge.Retailer {
	kb := s.knowledgeBase()

	ids, ok := kb.CategoryRetailers[strings.ToLower(category)]
	if !ok {
		ids, ok = kb.CategoryRetailers[DefaultCategory]
	}
	if !ok {
		ids = fallbackRetailerIDs
	}

	out := make([]knowledge.Retailer, 0, len(ids))
	for _, id := range ids {
		if r, ok := kb.Retailers[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SearchURLs renders each retailer's search URL pattern for the query.
func (s *Service) SearchURLs(query, category string) []SearchURL {
	encoded := strings.ReplaceAll(query, " ", "+")

	var urls []SearchURL
	for _, r := range s.RetailersForCategory(category) {
		if r.SearchURLPattern == "" {
			continue
		}
		urls = append(urls, SearchURL{
			Name: r.DisplayName(),
			URL:  strings.ReplaceAll(r.SearchURLPattern, "{query}", encoded),
		})
	}
	return urls
}

// RetailerInfo finds a retailer by key, then by partial display name.
func (s *Service) RetailerInfo(name string) (knowledge.Retailer, bool) {
	kb := s.knowledgeBase()

	key := strings.NewReplacer(" ", "_", "&", "", "-", "").Replace(strings.ToLower(name))
	if r, ok := kb.Retailers[key]; ok {
		return r, true
	}

	lower := strings.ToLower(name)
	for _, id := range kb.RetailerIDs() {
		r := kb.Retailers[id]
		if strings.Contains(strings.ToLower(r.Name), lower) {
			return r, true
		}
	}
	return knowledge.Retailer{}, false
}

// SearchPrompt builds the product-search instructions with retailer URLs.
func (s *Service) SearchPrompt(query, category string) string {
	urls := map[string]string{}
	for _, u := range s.SearchURLs(query, category) {
		urls[u.Name] = u.URL
	}

	var lines []string
	for _, r := range s.RetailersForCategory(category) {
		lines = append(lines, fmt.Sprintf("- %s: %s", r.DisplayName(), urls[r.DisplayName()]))
	}

	tip, ok := s.knowledgeBase().SearchTips[strings.ToLower(category)]
	if !ok {
		tip = defaultSearchTip
	}

	return fmt.Sprintf(`Search for "%s" prices at these retailers:

RETAILER URLS (use these exact URLs in your results):
%s

SEARCH TIP: %s

For each retailer, report:
- Retailer Name
- URL: Use the exact URL from above
- Base Price
- Tax (9.25%% for ZIP 94022)
- Shipping (Free unless specified)
- Total Price

Format as: [Retailer](URL)
`, query, strings.Join(lines, "\n"), tip)
}

// LookupRetailers lists the retailers to check for a product, with notes.
func (s *Service) LookupRetailers(ctx context.Context, query, category string) (string, error) {
	if category == "" {
		category = DefaultCategory
	}
	urls := s.SearchURLs(query, category)

	if !s.Ready() {
		lines := []string{fmt.Sprintf("Search URLs for %s:", query)}
		for _, u := range urls {
			lines = append(lines, fmt.Sprintf("- %s: %s", u.Name, u.URL))
		}
		return strings.Join(lines, "\n"), nil
	}

	results, err := s.store.Search(ctx, fmt.Sprintf("retailers for %s products like %s", category, query), similarityK)
	if err != nil {
		return "", err
	}
	urls = s.mergeSimilar(urls, results, query)

	lines := []string{fmt.Sprintf("Retailers for %s (%s):", query, category), ""}
	for _, u := range urls {
		info, _ := s.RetailerInfo(u.Name)
		lines = append(lines,
			fmt.Sprintf("**%s**", u.Name),
			"  URL: "+u.URL,
			"  Best for: "+strings.Join(info.BestFor, ", "),
		)
		if info.Notes != "" {
			lines = append(lines, "  Note: "+info.Notes)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n"), nil
}

// mergeSimilar appends retailers surfaced by similarity search that the category list missed.
func (s *Service) mergeSimilar(urls []SearchURL, results []vectorstore.Result, query string) []SearchURL {
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u.Name] = true
	}

	kb := s.knowledgeBase()
	encoded := strings.ReplaceAll(query, " ", "+")
	for _, res := range results {
		if res.Metadata["source"] != knowledge.SourceRetailers {
			continue
		}
		r, ok := kb.Retailers[res.Metadata["retailer_id"]]
		if !ok || r.SearchURLPattern == "" || seen[r.DisplayName()] {
			continue
		}
		seen[r.DisplayName()] = true
		urls = append(urls, SearchURL{
			Name: r.DisplayName(),
			URL:  strings.ReplaceAll(r.SearchURLPattern, "{query}", encoded),
		})
	}
	return urls
}
