package servers

import (
	"context"
	"fmt"
	"strings"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/rag/cashback"
)

const (
	CashbackName = "cashback"

	defaultCashbackCategory = "General"
)

var Portals = []string{"Rakuten", "Capital One Shopping", "ShopBack"}

// Cashback answers portal cashback questions from the indexed knowledge base,
// researching on the web when no index is available.
type Cashback struct {
	base
	rag    *cashback.Service
	runner Runner
}

// NewCashback wires the cashback server. rag may be nil.
func NewCashback(rag *cashback.Service, runner Runner, log logger.Logger) *Cashback {
	s := &Cashback{
		base:   newBase(CashbackName, "Looks up shopping portal cashback rates", log),
		rag:    rag,
		runner: runner,
	}

	portals := make([]interface{}, 0, len(Portals))
	for _, p := range Portals {
		portals = append(portals, p)
	}

	s.register(Tool{
		Name:        "lookup_cashback",
		Description: "Look up cashback rates from shopping portals for retailers",
		InputSchema: objectSchema([]string{"retailers"}, map[string]interface{}{
			"retailers": stringListProp("List of retailer names"),
			"category": map[string]interface{}{
				"type":        "string",
				"description": "Product category (Electronics, Clothing, etc.)",
				"default":     defaultCashbackCategory,
			},
		}),
	}, s.lookupCashback)

	s.register(Tool{
		Name:        "get_portal_rates",
		Description: "Get all current rates for a specific shopping portal",
		InputSchema: objectSchema([]string{"portal"}, map[string]interface{}{
			"portal": map[string]interface{}{
				"type":        "string",
				"enum":        portals,
				"description": "Shopping portal name",
			},
		}),
	}, s.portalRates)

	return s
}

func (s *Cashback) lookupCashback(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	retailers := stringsArg(args, "retailers")
	category := stringArg(args, "category")

	if s.rag != nil && (s.rag.Ready() || len(retailers) == 0) {
		answer, err := s.rag.Lookup(ctx, retailers, category)
		if err != nil {
			return ToolResult{}, err
		}
		if answer == "" {
			return errorResult("No cashback data found"), nil
		}
		return textResult(answer), nil
	}

	prompt := fmt.Sprintf(`Find current cashback rates for %s purchases at: %s

Check these portals:
- Rakuten
- Capital One Shopping
- ShopBack

Known exclusions: Costco (no cashback), Apple Store (very limited)

Format: [Retailer]: Rakuten X%%, Capital One X%%, ShopBack X%%`, category, strings.Join(retailers, ", "))

	return runAgent(ctx, s.runner, "You are a cashback research specialist.", prompt,
		agent.Options{MaxResults: 10}, "No cashback data found")
}

func (s *Cashback) portalRates(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	prompt := fmt.Sprintf("Find current %s cashback rates for major retailers. List retailer and percentage.",
		stringArg(args, "portal"))

	return runAgent(ctx, s.runner, "You are a cashback research specialist.", prompt,
		agent.Options{MaxResults: 10}, "No data found")
}
