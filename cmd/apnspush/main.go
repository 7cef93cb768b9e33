// apnspush sends a single notification through APNs using the service configuration.
//
// Usage:
//
//	apnspush send --token <device-token> --title "Hello" --body "World"
//	apnspush send --type background --token <device-token> --content-available
//	apnspush send --type voip --token <voip-token> --data call_id=42
package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

//go:embed apnspush.yaml
var configFile []byte

var (
	version  = "dev"
	verbose  bool
	sandbox  bool
	jsonLogs bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "apnspush",
		Short: "Send push notifications through APNs",
		Long: `apnspush sends one-off notifications through the Apple Push Notification service.

Credentials are read from apnspush.yaml defaults, a .env file and APNS_* environment
variables, the same way the relay service reads them.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&sandbox, "sandbox", false, "Use the development gateway")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log as JSON")

	rootCmd.AddCommand(sendCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
