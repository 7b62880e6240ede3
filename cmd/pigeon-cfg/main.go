// Pigeon-cfg is a configuration utility for Pigeon sensor devices.
//
// It finds devices over mDNS, scans the WiFi networks a device can see,
// writes its WiFi and MQTT settings and checks that it reaches its broker.
// Devices without settings run their own hotspot and answer on 192.168.4.1.
//
// Usage:
//
//	pigeon-cfg [command] [flags]
//
// Running without arguments launches the interactive wizard.
// See 'pigeon-cfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/config"
	"github.com/dovecote/pigeon/internal/logging"
	"github.com/dovecote/pigeon/internal/version"
)

func main() {
	// Interrupt cancels blocking commands such as mqtt watch
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pigeon-cfg",
	Short: "Pigeon Device Configuration Utility",
	Long: `A standalone utility for configuring Pigeon sensor devices.

Provides device discovery, an interactive configuration wizard, and
direct commands to scan WiFi networks, write WiFi and MQTT settings and
watch a device report in over MQTT.

If no command is specified, the interactive wizard will launch automatically.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runWizard,
}

// Global flags and state shared by all commands
var (
	deviceAddr     string
	devicePort     int
	requestTimeout time.Duration
	outputFormat   string
	logLevel       string

	registry *config.Registry
	logger   = zap.NewNop()

	// loadRegistry is replaced in tests
	loadRegistry = config.LoadRegistry
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Device address: host, host:port or http://host:port (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 80, "Device HTTP port when --device has none")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 0, "HTTP request timeout (default from config, 15s)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatDetailed, "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default $"+logging.LogLevelEnvVar+" or silent)")

	rootCmd.AddCommand(versionCmd)
}

// setup runs before every command: logging first, then the device registry
func setup(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	logger = logging.Named("cli")

	switch outputFormat {
	case formatDetailed, formatCompact, formatJSON:
	default:
		return fmt.Errorf("unknown format %q (use detailed, compact or json)", outputFormat)
	}

	reg, err := loadRegistry()
	if err != nil {
		// A broken registry must not block configuring a device
		logger.Warn("Failed to load device registry, using defaults", zap.Error(err))
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		reg = config.NewRegistry()
	}
	registry = reg

	if requestTimeout <= 0 {
		requestTimeout = registry.Preferences.RequestTimeoutDuration()
	}

	logger.Debug("Starting command",
		zap.String("command", cmd.CommandPath()),
		zap.String("version", version.Version),
		zap.Duration("timeout", requestTimeout),
		zap.String("registry", registry.Path()),
	)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pigeon-cfg %s\n", version.Full())
	},
}
