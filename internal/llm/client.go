// Package llm wraps the hosted chat and embedding models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"shopping-agent/internal/common/config"
	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"

	openai "github.com/sashabaranov/go-openai"
)

// API is the subset of openai.Client used here; tests substitute it.
type API interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Completer answers a single system+user turn.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Chatter runs one chat completion with optional tools.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (*openai.ChatCompletionResponse, error)
}

// Embedder turns texts into vectors, preserving input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is one chat completion call.
type ChatRequest struct {
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool
}

type Client struct {
	api            API
	model          string
	embeddingModel string
	temperature    float32
	maxRetries     int
	timeout        time.Duration
	logger         logger.Logger
}

// New builds a Client talking to cfg.BaseURL.
func New(cfg config.OpenAIConfig, log logger.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return NewWithAPI(openai.NewClientWithConfig(oc), cfg, log)
}

// NewWithAPI builds a Client around an existing API implementation.
func NewWithAPI(api API, cfg config.OpenAIConfig, log logger.Logger) *Client {
	return &Client{
		api:            api,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxRetries:     cfg.MaxRetries,
		timeout:        config.GetDuration(cfg.Timeout),
		logger:         log.With(map[string]interface{}{"component": "llm"}),
	}
}

func (c *Client) Model() string { return c.model }

// requestTemperature keeps an explicit zero from being dropped by omitempty.
// go-openai has no way to send a literal 0, so the smallest positive float32
// goes on the wire instead.
func (c *Client) requestTemperature() float32 {
	if c.temperature <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return c.temperature
}

// Chat runs one completion, retrying API failures with exponential backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*openai.ChatCompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: c.requestTemperature(),
	}
	if len(req.Tools) > 0 {
		request.Tools = req.Tools
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.LLMRequests.WithLabelValues("chat", "timeout").Inc()
				return nil, apperrors.NewLLMTimeoutError(ctx.Err())
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, request)
		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = errors.New("response contained no choices")
				continue
			}
			metrics.LLMRequests.WithLabelValues("chat", "success").Inc()
			return &resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			metrics.LLMRequests.WithLabelValues("chat", "timeout").Inc()
			return nil, apperrors.NewLLMTimeoutError(ctx.Err())
		}
		if !isRetryable(err) {
			break
		}

		c.logger.Warn("chat completion failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	metrics.LLMRequests.WithLabelValues("chat", "error").Inc()
	return nil, apperrors.NewLLMSynthesisFailedError(lastErr)
}

// Complete is a single-turn helper returning the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.Chat(ctx, ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per input text in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues("embedding", "error").Inc()
		if ctx.Err() != nil {
			return nil, apperrors.NewLLMTimeoutError(ctx.Err())
		}
		return nil, apperrors.NewEmbeddingFailedError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.LLMRequests.WithLabelValues("embedding", "error").Inc()
		return nil, apperrors.NewEmbeddingFailedError(
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}

	metrics.LLMRequests.WithLabelValues("embedding", "success").Inc()
	return out, nil
}

// isRetryable retries rate limits, server errors and transport failures.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return true
}
