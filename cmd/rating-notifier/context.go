package main

import (
	"strings"
	"sync"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/observability"
)

type commandContext struct {
	configFlag  *string
	envFileFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFileFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		envFileFlag: envFileFlag,
	}
}

func defaultConfigPath() string {
	return config.DefaultConfigPath
}

// ensureConfig loads the dotenv file, then the YAML config with environment
// overrides. It runs once per process.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFileFlag != nil {
			if err := config.LoadEnvFile(strings.TrimSpace(*c.envFileFlag)); err != nil {
				c.configErr = err
				return
			}
		}
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newLogger(cfg *config.Config) (*observability.Logger, error) {
	return observability.NewLogger(observability.Options{
		LogPath:    cfg.Observability.LogPath,
		LogLevel:   cfg.Observability.LogLevel,
		MaxSizeMB:  cfg.Observability.LogMaxSizeMB,
		MaxBackups: cfg.Observability.LogMaxBackups,
		MaxAgeDays: cfg.Observability.LogMaxAgeDays,
		Compress:   cfg.Observability.LogCompress,
	})
}
