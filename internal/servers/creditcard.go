package servers

import (
	"context"
	"fmt"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/shopping"
)

const CreditCardName = "credit-card"

type CreditCard struct {
	base
	runner Runner
}

func NewCreditCard(runner Runner, log logger.Logger) *CreditCard {
	s := &CreditCard{
		base:   newBase(CreditCardName, "Recommends credit cards and looks up their rewards", log),
		runner: runner,
	}

	s.register(Tool{
		Name:        "get_card_rewards",
		Description: "Get reward rates for a specific credit card",
		InputSchema: objectSchema([]string{"card_name"}, map[string]interface{}{
			"card_name": stringProp("Credit card name (e.g., 'Citi Double Cash')"),
		}),
	}, s.cardRewards)

	s.register(Tool{
		Name:        "recommend_card",
		Description: "Recommend best credit card for specific retailers",
		InputSchema: objectSchema([]string{"retailers"}, map[string]interface{}{
			"retailers": stringListProp("List of retailer names"),
		}),
	}, s.recommendCard)

	return s
}

func (s *CreditCard) cardRewards(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	prompt := fmt.Sprintf("Find current reward rates for %s credit card. Include base rate and bonus categories.",
		stringArg(args, "card_name"))

	return runAgent(ctx, s.runner, "You are a credit card rewards specialist.", prompt,
		agent.Options{MaxResults: 5}, "No data found")
}

func (s *CreditCard) recommendCard(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	recs := shopping.RecommendCards(stringsArg(args, "retailers"))
	return textResult(shopping.FormatCardRecommendations(recs)), nil
}
