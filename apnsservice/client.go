package apnsservice

import (
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-apns-service/apnsservice/config"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

// NewAPNSClient builds the gateway client the configuration asks for.
// Credentials are loaded immediately so bad keys fail at startup.
func NewAPNSClient(cfg config.APNSConfig, logger *slog.Logger) (*apns.Client, error) {
	opts := []apns.Option{apns.WithLogger(logger)}
	if cfg.Sandbox {
		opts = append(opts, apns.WithSandbox())
	}
	if cfg.BackupPort {
		opts = append(opts, apns.WithBackupPort())
	}

	switch cfg.AuthMode {
	case config.AuthModeCertificate:
		client, err := apns.NewClientFromCertificateFile(cfg.CertPath, cfg.CertPassword, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create certificate client: %w", err)
		}
		logger.Info("APNs client initialized", "auth", "certificate", "bundle_id", client.BundleID(), "voip_only", client.VoipOnly())
		return client, nil
	case config.AuthModeToken:
		client, err := apns.NewClientFromTokenConfig(apns.TokenConfig{
			KeyID:           cfg.KeyID,
			TeamID:          cfg.TeamID,
			BundleID:        cfg.BundleID,
			KeyPath:         cfg.KeyPath,
			KeyContent:      cfg.KeyContent,
			RefreshInterval: cfg.TokenRefresh,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create token client: %w", err)
		}
		logger.Info("APNs client initialized", "auth", "token", "bundle_id", client.BundleID(), "key_id", cfg.KeyID)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown apns auth_mode %q", cfg.AuthMode)
	}
}
