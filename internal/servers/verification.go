package servers

import (
	"context"
	"fmt"

	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/llm"
	"shopping-agent/internal/shopping"
)

const VerificationName = "verification"

const verifySystemPrompt = "You are a data verification specialist."

const verifyPrompt = `Verify and clean these shopping results for "%s":

%s

Tasks:
1. Remove duplicate retailers
2. Remove non-retailers (news sites, deal aggregators)
3. Mark invalid URLs (homepages, search pages)
4. Flag wrong products (different model/version)

Return cleaned results only.`

// Verification cleans agent output and checks product URLs.
type Verification struct {
	base
	completer llm.Completer
}

func NewVerification(completer llm.Completer, log logger.Logger) *Verification {
	s := &Verification{
		base:      newBase(VerificationName, "Verifies and cleans shopping results", log),
		completer: completer,
	}

	s.register(Tool{
		Name:        "verify_results",
		Description: "Verify and clean shopping results",
		InputSchema: objectSchema([]string{"results", "product_query"}, map[string]interface{}{
			"results":       stringProp("Raw shopping results to verify"),
			"product_query": stringProp("Original product query"),
		}),
	}, s.verifyResults)

	s.register(Tool{
		Name:        "validate_url",
		Description: "Validate if a URL is a valid product page",
		InputSchema: objectSchema([]string{"url", "expected_product"}, map[string]interface{}{
			"url":              map[string]interface{}{"type": "string"},
			"retailer":         map[string]interface{}{"type": "string"},
			"expected_product": map[string]interface{}{"type": "string"},
		}),
	}, s.validateURL)

	return s
}

func (s *Verification) verifyResults(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	answer, err := s.completer.Complete(ctx, verifySystemPrompt,
		fmt.Sprintf(verifyPrompt, stringArg(args, "product_query"), stringArg(args, "results")))
	if err != nil {
		return ToolResult{}, err
	}
	return textResult(answer), nil
}

// validateURL never fails; issues are reported in the text.
func (s *Verification) validateURL(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	check := shopping.ValidateURL(stringArg(args, "url"), stringArg(args, "expected_product"))
	return textResult(check.String()), nil
}
