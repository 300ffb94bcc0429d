package shared

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DefaultUpstreamURL is the realtime translation endpoint used when the
// config does not name one.
const DefaultUpstreamURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01"

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Listen      string    `yaml:"listen"`
	APIKey      string    `yaml:"openai_api_key"`
	UpstreamURL string    `yaml:"upstream_url"`
	WebhookURL  string    `yaml:"webhook_url"`
	Log         LogConfig `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8000",
		UpstreamURL: DefaultUpstreamURL,
		WebhookURL:  "https://webhook.site/your-webhook-id",
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// LoadConfig reads the YAML file at path (skipped when path is empty) and
// then applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_REALTIME_URL"); v != "" {
		c.UpstreamURL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.WebhookURL == "" {
		return ErrNoWebhookURL
	}
	if c.UpstreamURL == "" {
		c.UpstreamURL = DefaultUpstreamURL
	}
	if c.Listen == "" {
		c.Listen = ":8000"
	}
	return nil
}
