package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a .env file if present, maps the YAML document and applies the
// environment overrides.
func Load(data []byte, logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env file")
	}

	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}
	baseCfg, err := NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return UpdateConfigWithEnvOverrides(baseCfg, logger)
}
