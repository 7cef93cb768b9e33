package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlAPNSConfig struct {
	AuthMode     string `yaml:"auth_mode"`
	KeyID        string `yaml:"key_id"`
	TeamID       string `yaml:"team_id"`
	BundleID     string `yaml:"bundle_id"`
	KeyPath      string `yaml:"key_path"`
	KeyContent   string `yaml:"key_content"`
	CertPath     string `yaml:"cert_path"`
	CertPassword string `yaml:"cert_password"`
	Sandbox      bool   `yaml:"sandbox"`
	BackupPort   bool   `yaml:"backup_port"`
	// TokenRefresh is a Go duration string, e.g. "20m".
	TokenRefresh string `yaml:"token_refresh"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// YamlPubsubReceiveConfig tunes the Pub/Sub receiver. Zero keeps the default.
type YamlPubsubReceiveConfig struct {
	MaxOutstandingMessages int `yaml:"max_outstanding_messages"`
	NumGoroutines          int `yaml:"num_goroutines"`
}

type YamlInvalidTokensConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Collection string `yaml:"collection"`
	TTL        string `yaml:"ttl"`
	CacheTTL   string `yaml:"cache_ttl"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                  `yaml:"project_id"`
	ListenAddr             string                  `yaml:"listen_addr"`
	IdentityURL            string                  `yaml:"identity_url"`
	TopicID                string                  `yaml:"topic_id"`
	SubscriptionID         string                  `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                  `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                     `yaml:"num_pipeline_workers"`
	PubsubReceive          YamlPubsubReceiveConfig `yaml:"pubsub_receive"`
	CorsConfig             YamlCorsConfig          `yaml:"cors"`
	APNS                   YamlAPNSConfig          `yaml:"apns"`
	RedisConfig            YamlRedisConfig         `yaml:"redis"`
	InvalidTokens          YamlInvalidTokensConfig `yaml:"invalid_tokens"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		IdentityURL:            baseCfg.IdentityURL,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		APNS: APNSConfig{
			AuthMode:     AuthMode(baseCfg.APNS.AuthMode),
			KeyID:        baseCfg.APNS.KeyID,
			TeamID:       baseCfg.APNS.TeamID,
			BundleID:     baseCfg.APNS.BundleID,
			KeyPath:      baseCfg.APNS.KeyPath,
			KeyContent:   baseCfg.APNS.KeyContent,
			CertPath:     baseCfg.APNS.CertPath,
			CertPassword: baseCfg.APNS.CertPassword,
			Sandbox:      baseCfg.APNS.Sandbox,
			BackupPort:   baseCfg.APNS.BackupPort,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		InvalidTokens: InvalidTokensConfig{
			Enabled:    baseCfg.InvalidTokens.Enabled,
			Collection: baseCfg.InvalidTokens.Collection,
		},
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
		if n := baseCfg.PubsubReceive.MaxOutstandingMessages; n > 0 {
			cfg.PubsubConsumerConfig.MaxOutstandingMessages = n
		}
		if n := baseCfg.PubsubReceive.NumGoroutines; n > 0 {
			cfg.PubsubConsumerConfig.NumGoroutines = n
		}
	}

	if baseCfg.APNS.TokenRefresh != "" {
		d, err := time.ParseDuration(baseCfg.APNS.TokenRefresh)
		if err != nil {
			return nil, fmt.Errorf("apns.token_refresh: %w", err)
		}
		cfg.APNS.TokenRefresh = d
	}
	if baseCfg.InvalidTokens.TTL != "" {
		d, err := time.ParseDuration(baseCfg.InvalidTokens.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid_tokens.ttl: %w", err)
		}
		cfg.InvalidTokens.TTL = d
	}
	if baseCfg.InvalidTokens.CacheTTL != "" {
		d, err := time.ParseDuration(baseCfg.InvalidTokens.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid_tokens.cache_ttl: %w", err)
		}
		cfg.InvalidTokens.CacheTTL = d
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"auth_mode", cfg.APNS.AuthMode,
		"bundle_id", cfg.APNS.BundleID,
		"sandbox", cfg.APNS.Sandbox,
	)

	return cfg, nil
}
