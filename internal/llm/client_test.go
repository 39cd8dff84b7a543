package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shopping-agent/internal/common/config"
	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConfig(baseURL string) config.OpenAIConfig {
	return config.OpenAIConfig{
		BaseURL:        baseURL + "/v1",
		APIKey:         "sk-test",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Timeout:        2000,
		MaxRetries:     2,
	}
}

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
	}
}

// ==========================
// Chat
// ==========================

func TestClient_Complete(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(chatResponse("Amazon: 5% back"))
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewTestLogger(t))
	out, err := c.Complete(context.Background(), "You are a cashback research specialist.", "Amazon?")
	require.NoError(t, err)

	assert.Equal(t, "Amazon: 5% back", out)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Equal(t, "Amazon?", captured.Messages[1].Content)
	assert.Greater(t, captured.Temperature, float32(0))
	assert.Less(t, captured.Temperature, float32(1e-6))
}

func TestClient_TemperatureOnTheWire(t *testing.T) {
	tests := []struct {
		name        string
		temperature float32
		want        float64
	}{
		{"zero stays present", 0, float64(math.SmallestNonzeroFloat32)},
		{"configured value", 0.7, float64(float32(0.7))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]interface{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				_ = json.NewEncoder(w).Encode(chatResponse("ok"))
			}))
			defer srv.Close()

			cfg := createTestConfig(srv.URL)
			cfg.Temperature = tt.temperature
			_, err := New(cfg, logger.NewTestLogger(t)).Complete(context.Background(), "system", "user")
			require.NoError(t, err)

			require.Contains(t, body, "temperature")
			assert.InDelta(t, tt.want, body["temperature"], 1e-6)
		})
	}
}

func TestClient_Chat_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewNoOpLogger())
	out, err := c.Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_Chat_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewNoOpLogger())
	_, err := c.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLLMSynthesisFailed))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := createTestConfig(srv.URL)
	cfg.Timeout = 50
	c := New(cfg, logger.NewNoOpLogger())

	_, err := c.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLLMTimeout))
}

func TestClient_Chat_SendsTools(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(chatResponse("done"))
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewNoOpLogger())
	_, err := c.Chat(context.Background(), ChatRequest{
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ps5"}},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:       "tavily_search",
				Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`),
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "tavily_search", captured.Tools[0].Function.Name)
}

// ==========================
// Embeddings
// ==========================

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Reverse order to check the index mapping.
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewNoOpLogger())
	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[2])

	empty, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClient_Embed_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := New(createTestConfig(srv.URL), logger.NewNoOpLogger())
	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbeddingFailed))
}
