package client

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		// Host is scheme plus host, e.g. "https://fms.example.com".
		Host     string `yaml:"host"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		// Grammar selects the wire dialect: "xml" for legacy Custom
		// Web Publishing, "dataapi" for the JSON Data API.
		Grammar         string `yaml:"grammar"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		LayoutCacheSize int    `yaml:"layout_cache_size"`
	}
)

const (
	defaultTimeoutSeconds  = 30
	defaultLayoutCacheSize = 64
)

func LoadConfig(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadConfig error: read config file")
	}
	config := Config{}
	if err := yaml.Unmarshal(bs, &config); err != nil {
		return nil, errors.Wrap(err, "LoadConfig error: decode config file")
	}
	config.applyDefaults()
	if err := config.check(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Grammar == "" {
		c.Grammar = "xml"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.LayoutCacheSize <= 0 {
		c.LayoutCacheSize = defaultLayoutCacheSize
	}
}

func (c *Config) check() error {
	if c.Host == "" {
		return errors.New("config error: host is required")
	}
	if c.Database == "" {
		return errors.New("config error: database is required")
	}
	if c.Grammar != "xml" && c.Grammar != "dataapi" {
		return errors.Errorf(`config error: grammar must be "xml" or "dataapi", got "%s"`, c.Grammar)
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
