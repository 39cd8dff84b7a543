// Package agent runs the tool-calling search loop behind the price comparison.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/llm"
	"shopping-agent/internal/websearch"

	openai "github.com/sashabaranov/go-openai"
)

const (
	SearchToolName   = "tavily_search"
	NoResultsMessage = "No results found. Please try again."

	defaultMaxIterations = 25
	minReportLength      = 100
	maxQueryDisplay      = 60
)

// ProgressFunc is called before every search with a 1-based counter.
type ProgressFunc func(n int, query string)

// Options tunes a single Run.
type Options struct {
	MaxResults    int
	SearchDepth   string
	MaxIterations int
	OnSearch      ProgressFunc
}

type Agent struct {
	chat          llm.Chatter
	search        websearch.Searcher
	maxIterations int
	prompts       PromptSettings
	logger        logger.Logger
}

func New(chat llm.Chatter, search websearch.Searcher, maxIterations int, prompts PromptSettings, log logger.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Agent{
		chat:          chat,
		search:        search,
		maxIterations: maxIterations,
		prompts:       prompts.normalized(),
		logger:        log.With(map[string]interface{}{"component": "agent"}),
	}
}

// Prompts returns the locale settings the agent renders its prompts with.
func (a *Agent) Prompts() PromptSettings { return a.prompts }

// SearchProductPrices runs the full price comparison for a free-form user query.
func (a *Agent) SearchProductPrices(ctx context.Context, query string, onSearch ProgressFunc) (string, error) {
	return a.Run(ctx, BuildSystemPrompt(a.prompts), EnhanceQuery(query, a.prompts), Options{
		MaxResults:  10,
		SearchDepth: "advanced",
		OnSearch:    onSearch,
	})
}

// Run chats with the model, executing search tool calls until it answers without any.
func (a *Agent) Run(ctx context.Context, system, user string, opts Options) (string, error) {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = a.maxIterations
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	tools := []openai.Tool{searchTool()}

	searches := 0
	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := a.chat.Chat(ctx, llm.ChatRequest{Messages: messages, Tools: tools})
		if err != nil {
			return "", err
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)
		if len(msg.ToolCalls) == 0 {
			break
		}

		for _, call := range msg.ToolCalls {
			if call.Function.Name != SearchToolName {
				messages = append(messages, toolReply(call.ID, fmt.Sprintf("Error: unknown tool %s", call.Function.Name)))
				continue
			}

			query := parseSearchQuery(call.Function.Arguments)
			searches++
			if opts.OnSearch != nil {
				opts.OnSearch(searches, TruncateQuery(query))
			}
			messages = append(messages, toolReply(call.ID, a.runSearch(ctx, query, opts)))
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	a.logger.Info("agent run finished", map[string]interface{}{
		"searches": searches,
		"messages": len(messages),
	})
	return FinalReport(messages), nil
}

func (a *Agent) runSearch(ctx context.Context, query string, opts Options) string {
	resp, err := a.search.Search(ctx, websearch.Request{
		Query:       query,
		MaxResults:  opts.MaxResults,
		SearchDepth: opts.SearchDepth,
	})
	if err != nil {
		metrics.ToolCalls.WithLabelValues(SearchToolName, "error").Inc()
		a.logger.Warn("search tool failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return "Error: " + err.Error()
	}
	metrics.ToolCalls.WithLabelValues(SearchToolName, "success").Inc()

	payload, err := json.Marshal(resp)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(payload)
}

// FinalReport picks the last substantial assistant answer that is not a tool request.
func FinalReport(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != openai.ChatMessageRoleAssistant || len(m.ToolCalls) > 0 {
			continue
		}
		if len([]rune(m.Content)) > minReportLength {
			return m.Content
		}
	}
	return NoResultsMessage
}

// TruncateQuery shortens a query for progress display.
func TruncateQuery(q string) string {
	r := []rune(q)
	if len(r) <= maxQueryDisplay {
		return q
	}
	return string(r[:maxQueryDisplay]) + "..."
}

func parseSearchQuery(arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	return args.Query
}

func toolReply(id, content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    content,
		ToolCallID: id,
	}
}

func searchTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        SearchToolName,
			Description: "A search engine optimized for comprehensive, accurate, and trusted results. Useful for finding current product prices, retailers, cashback rates and credit card rewards. Input should be a search query.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
