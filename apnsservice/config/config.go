package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// DefaultInvalidTokenCacheTTL bounds how long a Redis entry may shadow the registry.
const DefaultInvalidTokenCacheTTL = 10 * time.Minute

type AuthMode string

const (
	AuthModeToken       AuthMode = "token"
	AuthModeCertificate AuthMode = "certificate"
)

// APNSConfig selects how the service authenticates with APNs and which
// gateway it talks to.
type APNSConfig struct {
	AuthMode AuthMode

	// Token authentication.
	KeyID        string
	TeamID       string
	BundleID     string
	KeyPath      string
	KeyContent   string
	TokenRefresh time.Duration

	// Certificate authentication. The bundle id comes from the certificate.
	CertPath     string
	CertPassword string

	Sandbox    bool
	BackupPort bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// InvalidTokensConfig controls the registry of tokens APNs reported invalid.
type InvalidTokensConfig struct {
	Enabled    bool
	Collection string
	// TTL is how long a record blocks sends. Zero keeps it until cleared.
	TTL      time.Duration
	CacheTTL time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID   string
	ListenAddr  string
	IdentityURL string

	// Pub/Sub ingestion is enabled when SubscriptionID is set.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig

	CorsConfig    middleware.CorsConfig
	APNS          APNSConfig
	Redis         RedisConfig
	InvalidTokens InvalidTokensConfig
}

// IngestionEnabled reports whether the service consumes pushes from Pub/Sub.
func (c *Config) IngestionEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityURL = val
	}

	// Pub/Sub Overrides
	overrideString(logger, "TOPIC_ID", &cfg.TopicID)
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		if cfg.PubsubConsumerConfig != nil {
			cfg.PubsubConsumerConfig.SubscriptionID = val
		}
	}
	overrideString(logger, "SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// APNs Overrides
	overrideString(logger, "APNS_KEY_ID", &cfg.APNS.KeyID)
	overrideString(logger, "APNS_TEAM_ID", &cfg.APNS.TeamID)
	overrideString(logger, "APNS_BUNDLE_ID", &cfg.APNS.BundleID)
	overrideString(logger, "APNS_KEY_PATH", &cfg.APNS.KeyPath)
	overrideString(logger, "APNS_KEY_CONTENT", &cfg.APNS.KeyContent)
	overrideString(logger, "APNS_CERT_PATH", &cfg.APNS.CertPath)
	overrideString(logger, "APNS_CERT_PASSWORD", &cfg.APNS.CertPassword)

	if val := os.Getenv("APNS_AUTH_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_AUTH_MODE", "source", "env")
		cfg.APNS.AuthMode = AuthMode(strings.ToLower(val))
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		if sandbox, err := strconv.ParseBool(val); err == nil {
			logger.Debug("Overriding config value", "key", "APNS_SANDBOX", "source", "env")
			cfg.APNS.Sandbox = sandbox
		}
	}
	if val := os.Getenv("APNS_BACKUP_PORT"); val != "" {
		if backup, err := strconv.ParseBool(val); err == nil {
			logger.Debug("Overriding config value", "key", "APNS_BACKUP_PORT", "source", "env")
			cfg.APNS.BackupPort = backup
		}
	}
	if val := os.Getenv("APNS_TOKEN_REFRESH"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "APNS_TOKEN_REFRESH", "source", "env")
			cfg.APNS.TokenRefresh = d
		}
	}

	// Invalid Token Registry Overrides
	if val := os.Getenv("INVALID_TOKENS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			logger.Debug("Overriding config value", "key", "INVALID_TOKENS_ENABLED", "source", "env")
			cfg.InvalidTokens.Enabled = enabled
		}
	}
	overrideString(logger, "INVALID_TOKENS_COLLECTION", &cfg.InvalidTokens.Collection)
	if val := os.Getenv("INVALID_TOKENS_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			logger.Debug("Overriding config value", "key", "INVALID_TOKENS_TTL", "source", "env")
			cfg.InvalidTokens.TTL = d
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if err := cfg.APNS.validate(); err != nil {
		return nil, err
	}
	if (cfg.IngestionEnabled() || cfg.InvalidTokens.Enabled) && cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required for pubsub or the invalid token registry (set via YAML or PROJECT_ID env var)")
	}
	if cfg.IngestionEnabled() && cfg.TopicID == "" {
		return nil, fmt.Errorf("topic_id is required when subscription_id is set (set via YAML or TOPIC_ID env var)")
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}
	if cfg.InvalidTokens.CacheTTL <= 0 {
		cfg.InvalidTokens.CacheTTL = DefaultInvalidTokenCacheTTL
	}
	if cfg.Redis.Enabled && !cfg.InvalidTokens.Enabled {
		logger.Warn("Redis is configured but the invalid token registry is disabled; redis will not be used")
	}

	logger.Debug("Configuration finalized and validated successfully",
		"auth_mode", cfg.APNS.AuthMode,
		"ingestion", cfg.IngestionEnabled(),
		"invalid_tokens", cfg.InvalidTokens.Enabled,
	)
	return cfg, nil
}

func overrideString(logger *slog.Logger, key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		*dst = val
	}
}

// validate fills in the auth mode when unset and checks the credentials it needs.
func (c *APNSConfig) validate() error {
	if c.AuthMode == "" {
		if c.CertPath != "" {
			c.AuthMode = AuthModeCertificate
		} else {
			c.AuthMode = AuthModeToken
		}
	}

	switch c.AuthMode {
	case AuthModeToken:
		if c.KeyID == "" {
			return fmt.Errorf("apns key_id is required for token auth (set via YAML or APNS_KEY_ID env var)")
		}
		if c.TeamID == "" {
			return fmt.Errorf("apns team_id is required for token auth (set via YAML or APNS_TEAM_ID env var)")
		}
		if c.BundleID == "" {
			return fmt.Errorf("apns bundle_id is required for token auth (set via YAML or APNS_BUNDLE_ID env var)")
		}
		if (c.KeyPath == "") == (c.KeyContent == "") {
			return fmt.Errorf("exactly one of apns key_path or key_content is required for token auth")
		}
	case AuthModeCertificate:
		if c.CertPath == "" {
			return fmt.Errorf("apns cert_path is required for certificate auth (set via YAML or APNS_CERT_PATH env var)")
		}
	default:
		return fmt.Errorf("unknown apns auth_mode %q", c.AuthMode)
	}
	return nil
}
