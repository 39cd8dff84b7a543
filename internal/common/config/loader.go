// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingOpenAIKey = errors.New("OPENAI_API_KEY not found. Please set it in your .env file.")
	ErrMissingTavilyKey = errors.New("TAVILY_API_KEY not found. Please set it in your .env file.")
)

// Load reads .env, configs/config.yaml and the environment-specific overlay.
// API keys are not validated here; call Validate before using the hosted APIs.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found between the working directory and the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the conventional variable names used in .env files.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.APIs.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.APIs.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setIfEmpty(&cfg.APIs.Tavily.APIKey, "TAVILY_API_KEY")

	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Notifications.AWS.Region, "AWS_REGION")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "shopping-agent"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "1.0.0"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "price_history.db"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// OpenAI defaults
	if cfg.APIs.OpenAI.BaseURL == "" {
		cfg.APIs.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIs.OpenAI.Model == "" {
		cfg.APIs.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.APIs.OpenAI.EmbeddingModel == "" {
		cfg.APIs.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.APIs.OpenAI.Timeout == 0 {
		cfg.APIs.OpenAI.Timeout = 120000
	}
	if cfg.APIs.OpenAI.MaxRetries == 0 {
		cfg.APIs.OpenAI.MaxRetries = 2
	}

	// Tavily defaults
	if cfg.APIs.Tavily.BaseURL == "" {
		cfg.APIs.Tavily.BaseURL = "https://api.tavily.com"
	}
	if cfg.APIs.Tavily.MaxResults == 0 {
		cfg.APIs.Tavily.MaxResults = 10
	}
	if cfg.APIs.Tavily.SearchDepth == "" {
		cfg.APIs.Tavily.SearchDepth = "advanced"
		cfg.APIs.Tavily.IncludeAnswer = true
	}
	if cfg.APIs.Tavily.Timeout == 0 {
		cfg.APIs.Tavily.Timeout = 30000
	}

	// Shopping defaults
	if cfg.Shopping.ZipCode == "" {
		cfg.Shopping.ZipCode = "94022"
	}
	if cfg.Shopping.TaxRate == 0 {
		cfg.Shopping.TaxRate = 9.25
	}
	if cfg.Shopping.DefaultQuery == "" {
		cfg.Shopping.DefaultQuery = "Find me the best price for PlayStation 5"
	}
	if cfg.Shopping.MaxIterations == 0 {
		cfg.Shopping.MaxIterations = 25
	}
	if cfg.Shopping.MinRetailers == 0 {
		cfg.Shopping.MinRetailers = 15
	}

	// Knowledge base defaults
	if cfg.Knowledge.CashbackPath == "" {
		cfg.Knowledge.CashbackPath = "data/cashback/knowledge_base.json"
	}
	if cfg.Knowledge.CashbackIndexDir == "" {
		cfg.Knowledge.CashbackIndexDir = "data/cashback/index"
	}
	if cfg.Knowledge.RetailersPath == "" {
		cfg.Knowledge.RetailersPath = "data/retailers/knowledge_base.json"
	}
	if cfg.Knowledge.RetailersIndexDir == "" {
		cfg.Knowledge.RetailersIndexDir = "data/retailers/index"
	}
	if cfg.Knowledge.VectorBackend == "" {
		cfg.Knowledge.VectorBackend = "file"
	}
	if cfg.Knowledge.IndexPrefix == "" {
		cfg.Knowledge.IndexPrefix = "shopping"
	}

	// Tracker defaults
	if cfg.Tracker.DefaultProduct == "" {
		cfg.Tracker.DefaultProduct = "PlayStation 5"
	}
	if cfg.Tracker.DefaultIntervalMinutes == 0 {
		cfg.Tracker.DefaultIntervalMinutes = 60
	}
	if cfg.Tracker.AlertThresholdPercent == 0 {
		cfg.Tracker.AlertThresholdPercent = 5
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600000
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 300000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig checks structural settings that no command can run without.
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}

	switch cfg.Knowledge.VectorBackend {
	case "file":
	case "elasticsearch":
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch vector backend")
		}
	default:
		return fmt.Errorf("knowledge.vector_backend %q is not supported", cfg.Knowledge.VectorBackend)
	}

	if cfg.Cache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when cache is enabled")
	}

	if cfg.Shopping.TaxRate < 0 {
		return fmt.Errorf("shopping.tax_rate must not be negative")
	}

	return nil
}

// Validate checks the API keys required by every command that calls the hosted APIs.
func (c *Config) Validate() error {
	if c.APIs.OpenAI.APIKey == "" {
		return ErrMissingOpenAIKey
	}
	if c.APIs.Tavily.APIKey == "" {
		return ErrMissingTavilyKey
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       300000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
