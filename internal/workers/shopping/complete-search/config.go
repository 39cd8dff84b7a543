// internal/workers/shopping/complete-search/config.go
package completesearch

import (
	"time"

	"shopping-agent/internal/common/config"
)

type Config struct {
	Enabled bool
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Enabled: true,
		Timeout: 5 * time.Minute,
	}
}

// ConfigFromApp reads the worker section of the application config.
func ConfigFromApp(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	c := LoadConfig()
	c.Enabled = wc.Enabled
	if wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
