// Package orchestrator runs the tool sub-servers in parallel and merges their answers.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/llm"
	"shopping-agent/internal/servers"
	"shopping-agent/internal/shopping"
	"shopping-agent/pkg/registry"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const aggregatorSystemPrompt = "You are a shopping results aggregator."

const enrichPrompt = `Combine these shopping results for "%s":

=== PRODUCT PRICES ===
%s

=== CASHBACK RATES ===
%s

=== CREDIT CARD RECOMMENDATIONS ===
%s

Create a final report with:
1. Each retailer with price, cashback, and recommended credit card
2. 🏆 BEST OVERALL DEAL (considering all factors)
3. 💳 Credit Card Strategy Summary
4. ⚠️ Important notes

Format as a numbered list for each retailer.`

// Stage identifies a progress event of SearchProductComplete.
type Stage string

const (
	StageStarted      Stage = "started"
	StageCategory     Stage = "category"
	StageParallel     Stage = "parallel"
	StageParallelDone Stage = "parallel_done"
	StageVerifying    Stage = "verifying"
	StageVerified     Stage = "verified"
	StageCombining    Stage = "combining"
)

// ProgressFunc receives stage events; detail is the query or detected category.
type ProgressFunc func(stage Stage, detail string)

// Result is the merged outcome of one complete search.
type Result struct {
	RunID          string        `json:"run_id"`
	ProductQuery   string        `json:"product_query"`
	Category       string        `json:"category"`
	ProductResults string        `json:"product_results"`
	CashbackData   string        `json:"cashback_data"`
	CreditCardData string        `json:"credit_card_data"`
	FinalResults   string        `json:"final_results"`
	Duration       time.Duration `json:"duration"`
}

// ToolInfo is the short form of a tool listed in the CLI banner.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Orchestrator struct {
	registry   *registry.Registry
	completer  llm.Completer
	retailers  []string
	onProgress ProgressFunc
	logger     logger.Logger
}

type Option func(*Orchestrator)

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithRetailers overrides the retailers used for cashback and card lookups.
func WithRetailers(retailers []string) Option {
	return func(o *Orchestrator) { o.retailers = retailers }
}

func New(reg *registry.Registry, completer llm.Completer, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		completer: completer,
		retailers: shopping.DefaultRetailers,
		logger:    log.With(map[string]interface{}{"component": "orchestrator"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CallTool routes one tool call to the named server.
func (o *Orchestrator) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) servers.ToolResult {
	s, err := o.registry.Get(server)
	if err != nil {
		return servers.ToolResult{Content: apperrors.NewUnknownServerError(server).Message, IsError: true}
	}

	start := time.Now()
	res := s.ExecuteTool(ctx, tool, args)

	status := "success"
	if res.IsError {
		status = "error"
	}
	metrics.ToolCalls.WithLabelValues(tool, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	return res
}

// ListAllTools lists each server's tools in registration order.
func (o *Orchestrator) ListAllTools() map[string][]ToolInfo {
	out := make(map[string][]ToolInfo)
	for name, tools := range o.registry.ListAll() {
		infos := make([]ToolInfo, 0, len(tools))
		for _, t := range tools {
			infos = append(infos, ToolInfo{Name: t.Name, Description: t.Description})
		}
		out[name] = infos
	}
	return out
}

// ServerNames lists the registered servers in registration order.
func (o *Orchestrator) ServerNames() []string {
	return o.registry.Names()
}

// SearchProductComplete runs product, cashback and card lookups concurrently,
// verifies the product results and asks the model for one combined report.
func (o *Orchestrator) SearchProductComplete(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.logger.With(map[string]interface{}{"runId": runID})

	o.progress(StageStarted, query)

	category := shopping.DetectCategory(query)
	o.progress(StageCategory, category)
	log.Info("starting complete search", map[string]interface{}{
		"query":    query,
		"category": category,
	})

	o.progress(StageParallel, query)

	// Tool failures come back as result content. Only the caller's
	// cancellation fails the group.
	var product, cashback, cards servers.ToolResult
	g, gctx := errgroup.WithContext(ctx)
	call := func(dst *servers.ToolResult, server, tool string, args map[string]interface{}) func() error {
		return func() error {
			*dst = o.CallTool(gctx, server, tool, args)
			return gctx.Err()
		}
	}
	g.Go(call(&product, servers.ProductSearchName, "search_product", map[string]interface{}{
		"product_query": query,
	}))
	g.Go(call(&cashback, servers.CashbackName, "lookup_cashback", map[string]interface{}{
		"retailers": o.retailers,
		"category":  category,
	}))
	g.Go(call(&cards, servers.CreditCardName, "recommend_card", map[string]interface{}{
		"retailers": o.retailers,
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	o.progress(StageParallelDone, "")

	for name, res := range map[string]servers.ToolResult{
		"search_product":  product,
		"lookup_cashback": cashback,
		"recommend_card":  cards,
	} {
		if res.IsError {
			log.Warn("tool returned an error", map[string]interface{}{
				"tool":  name,
				"error": res.Content,
			})
		}
	}

	o.progress(StageVerifying, "")
	verified := o.CallTool(ctx, servers.VerificationName, "verify_results", map[string]interface{}{
		"results":       product.Content,
		"product_query": query,
	})
	o.progress(StageVerified, "")

	o.progress(StageCombining, "")
	final, err := o.completer.Complete(ctx, aggregatorSystemPrompt,
		fmt.Sprintf(enrichPrompt, query, verified.Content, cashback.Content, cards.Content))
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:          runID,
		ProductQuery:   query,
		Category:       category,
		ProductResults: verified.Content,
		CashbackData:   cashback.Content,
		CreditCardData: cards.Content,
		FinalResults:   final,
		Duration:       time.Since(start),
	}
	log.Info("complete search finished", map[string]interface{}{
		"duration": result.Duration.String(),
	})
	return result, nil
}

func (o *Orchestrator) progress(stage Stage, detail string) {
	if o.onProgress != nil {
		o.onProgress(stage, detail)
	}
}
