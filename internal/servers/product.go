package servers

import (
	"context"
	"fmt"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/common/logger"
)

const (
	ProductSearchName = "product-search"

	defaultMaxRetailers = 15
)

// ProductSearch finds product prices through the search agent.
type ProductSearch struct {
	base
	runner Runner
}

func NewProductSearch(runner Runner, log logger.Logger) *ProductSearch {
	s := &ProductSearch{
		base:   newBase(ProductSearchName, "Searches retailers for product prices", log),
		runner: runner,
	}

	s.register(Tool{
		Name:        "search_product",
		Description: "Search for a product across multiple retailers and return prices",
		InputSchema: objectSchema([]string{"product_query"}, map[string]interface{}{
			"product_query": stringProp("Product to search for (e.g., 'PlayStation 5')"),
			"max_retailers": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of retailers to search",
				"default":     defaultMaxRetailers,
				"minimum":     1,
			},
		}),
	}, s.searchProduct)

	s.register(Tool{
		Name:        "search_retailer",
		Description: "Search for a product at a specific retailer",
		InputSchema: objectSchema([]string{"product_query", "retailer"}, map[string]interface{}{
			"product_query": stringProp("Product to search for"),
			"retailer":      stringProp("Retailer name (e.g., 'Amazon', 'Best Buy')"),
		}),
	}, s.searchRetailer)

	return s
}

func (s *ProductSearch) searchProduct(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	prompt := fmt.Sprintf(`Search for "%s" prices at major retailers.
For each retailer, find: name, product URL, price, tax estimate, shipping.
Search at least %d different retailers.`, stringArg(args, "product_query"), intArg(args, "max_retailers", defaultMaxRetailers))

	return runAgent(ctx, s.runner, "You are a product price search specialist.", prompt,
		agent.Options{MaxResults: 10, SearchDepth: "advanced"}, "No results found")
}

func (s *ProductSearch) searchRetailer(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	prompt := fmt.Sprintf(`Search for "%s" at %s. Find the direct product page URL and current price.`,
		stringArg(args, "product_query"), stringArg(args, "retailer"))

	return runAgent(ctx, s.runner, "You are a product search specialist.", prompt,
		agent.Options{MaxResults: 5}, "No results found")
}

// runAgent maps an empty agent answer to an error result carrying emptyMessage.
func runAgent(ctx context.Context, runner Runner, system, prompt string, opts agent.Options, emptyMessage string) (ToolResult, error) {
	report, err := runner.Run(ctx, system, prompt, opts)
	if err != nil {
		return ToolResult{}, err
	}
	if report == "" {
		return errorResult(emptyMessage), nil
	}
	return textResult(report), nil
}
