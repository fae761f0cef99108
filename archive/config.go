package archive

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/webarc/fetch"
)

// Config holds all archiver configuration.
type Config struct {
	Fetch       fetch.Config `yaml:"fetch"`
	HistoryPath string       `yaml:"history_path"`
	LogLevel    string       `yaml:"log_level"`
}

func (c *Config) defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
