// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Shopping      ShoppingConfig          `mapstructure:"shopping"`
	Knowledge     KnowledgeConfig         `mapstructure:"knowledge"`
	Tracker       TrackerConfig           `mapstructure:"tracker"`
	Cache         CacheConfig             `mapstructure:"cache"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Driver        string              `mapstructure:"driver"` // sqlite | postgres
	SQLite        SQLiteConfig        `mapstructure:"sqlite"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- External APIs ---

// APIsConfig holds settings for the hosted LLM and the web search API.
type APIsConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Tavily TavilyConfig `mapstructure:"tavily"`
}

type OpenAIConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature"`
	Timeout        int     `mapstructure:"timeout"` // milliseconds
	MaxRetries     int     `mapstructure:"max_retries"`
}

type TavilyConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	MaxResults    int    `mapstructure:"max_results"`
	SearchDepth   string `mapstructure:"search_depth"`
	IncludeAnswer bool   `mapstructure:"include_answer"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

// --- Domain Configuration Sections ---

// ShoppingConfig holds the price-comparison defaults.
type ShoppingConfig struct {
	ZipCode       string  `mapstructure:"zip_code"`
	TaxRate       float64 `mapstructure:"tax_rate"` // percent
	DefaultQuery  string  `mapstructure:"default_query"`
	MaxIterations int     `mapstructure:"max_iterations"`
	MinRetailers  int     `mapstructure:"min_retailers"`
}

// KnowledgeConfig points at the static knowledge bases and their vector indexes.
type KnowledgeConfig struct {
	CashbackPath      string `mapstructure:"cashback_path"`
	CashbackIndexDir  string `mapstructure:"cashback_index_dir"`
	RetailersPath     string `mapstructure:"retailers_path"`
	RetailersIndexDir string `mapstructure:"retailers_index_dir"`
	VectorBackend     string `mapstructure:"vector_backend"` // file | elasticsearch
	IndexPrefix       string `mapstructure:"index_prefix"`
}

type TrackerConfig struct {
	DefaultProduct         string  `mapstructure:"default_product"`
	DefaultIntervalMinutes int     `mapstructure:"default_interval_minutes"`
	AlertThresholdPercent  float64 `mapstructure:"alert_threshold_percent"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // milliseconds
}

// NotificationConfig holds settings for price-alert delivery.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
