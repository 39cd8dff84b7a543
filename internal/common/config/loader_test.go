package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")

	cfg, err := LoadFromFile(writeConfig(t, "app:\n  name: shopping-agent\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1", cfg.APIs.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.APIs.OpenAI.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.APIs.OpenAI.EmbeddingModel)
	assert.Equal(t, 10, cfg.APIs.Tavily.MaxResults)
	assert.Equal(t, "advanced", cfg.APIs.Tavily.SearchDepth)
	assert.True(t, cfg.APIs.Tavily.IncludeAnswer)
	assert.Equal(t, "94022", cfg.Shopping.ZipCode)
	assert.InDelta(t, 9.25, cfg.Shopping.TaxRate, 1e-9)
	assert.Equal(t, "Find me the best price for PlayStation 5", cfg.Shopping.DefaultQuery)
	assert.Equal(t, 25, cfg.Shopping.MaxIterations)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "price_history.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "file", cfg.Knowledge.VectorBackend)
	assert.Equal(t, "data/cashback/index", cfg.Knowledge.CashbackIndexDir)
	assert.Equal(t, 60, cfg.Tracker.DefaultIntervalMinutes)
	assert.InDelta(t, 5.0, cfg.Tracker.AlertThresholdPercent, 1e-9)
	assert.Equal(t, "PlayStation 5", cfg.Tracker.DefaultProduct)
}

func TestLoadFromFile_EnvFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TAVILY_API_KEY", "tvly-test")

	cfg, err := LoadFromFile(writeConfig(t, "shopping:\n  zip_code: \"10001\"\n  tax_rate: 8.875\n"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.APIs.OpenAI.APIKey)
	assert.Equal(t, "tvly-test", cfg.APIs.Tavily.APIKey)
	assert.Equal(t, "10001", cfg.Shopping.ZipCode)
	assert.InDelta(t, 8.875, cfg.Shopping.TaxRate, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_ExpandsVariables(t *testing.T) {
	t.Setenv("SHOPPING_DB_PATH", "/tmp/prices.db")

	cfg, err := LoadFromFile(writeConfig(t, "database:\n  sqlite:\n    path: ${SHOPPING_DB_PATH}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/prices.db", cfg.Database.SQLite.Path)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unsupported driver",
			body:    "database:\n  driver: mysql\n",
			wantErr: "database.driver",
		},
		{
			name:    "postgres without host",
			body:    "database:\n  driver: postgres\n  postgres:\n    database: prices\n    user: agent\n",
			wantErr: "database.postgres.host",
		},
		{
			name:    "elasticsearch backend without address",
			body:    "knowledge:\n  vector_backend: elasticsearch\n",
			wantErr: "elasticsearch",
		},
		{
			name:    "cache without redis",
			body:    "cache:\n  enabled: true\n",
			wantErr: "redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_MissingKeys(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrMissingOpenAIKey)

	cfg.APIs.OpenAI.APIKey = "sk"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingTavilyKey)
	assert.Equal(t, "TAVILY_API_KEY not found. Please set it in your .env file.", cfg.Validate().Error())
}

func TestWorkerHelpers(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"price-check": {Enabled: false, MaxJobsActive: 2, Timeout: 1000, MaxRetries: 1},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "price-check"))
	assert.True(t, IsWorkerEnabled(cfg, "complete-shopping-search"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "price-check").MaxJobsActive)
	assert.Equal(t, 5, GetWorkerConfig(cfg, "complete-shopping-search").MaxJobsActive)
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "prices", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=prices sslmode=disable", p.GetDSN())
}
