// internal/workers/shopping/price-check/config.go
package pricecheck

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
		Timeout: 3 * time.Minute,
	}
}

func ConfigFromApp(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	c := LoadConfig()
	c.Enabled = wc.Enabled
	if wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
