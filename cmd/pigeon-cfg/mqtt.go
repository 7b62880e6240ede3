package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dovecote/pigeon/internal/mqttprobe"
	"github.com/dovecote/pigeon/internal/ui"
)

// Broker flags shared by the mqtt commands
var (
	brokerURL      string
	brokerUser     string
	brokerPassword string
	brokerDeviceID string
	heartbeatWait  time.Duration
	watchDuration  time.Duration
)

func init() {
	rootCmd.AddCommand(mqttCmd)
	mqttCmd.AddCommand(mqttPingCmd)
	mqttCmd.AddCommand(mqttWaitHeartbeatCmd)
	mqttCmd.AddCommand(mqttWatchCmd)

	pf := mqttCmd.PersistentFlags()
	pf.StringVar(&brokerURL, "url", "", "Broker URL (default: read from the device)")
	pf.StringVar(&brokerUser, "user", "", "Broker username")
	pf.StringVar(&brokerPassword, "password", "", "Broker password")
	pf.StringVar(&brokerDeviceID, "id", "", "Device id (default: read from the device)")

	mqttWaitHeartbeatCmd.Flags().DurationVar(&heartbeatWait, "wait", 60*time.Second, "How long to wait")
	mqttWatchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "Stop after this long (default: until interrupted)")
}

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Check a device's MQTT broker",
	Long: `Connect to the MQTT broker a device uses.

Without --url the broker URL and credentials are read from the device's
stored settings, so these commands see what the device sees.`,
}

var mqttPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to the broker with the device's credentials",
	Example: `  # Test a broker before applying it
  pigeon-cfg mqtt ping --url mqtt://10.0.0.2:1883 --user sensor --password s3cret

  # Test the broker stored on the device
  pigeon-cfg mqtt ping --device pigeon-7.local`,
	RunE: runMQTTPing,
}

var mqttWaitHeartbeatCmd = &cobra.Command{
	Use:   "wait-heartbeat",
	Short: "Wait for the device's heartbeat on the broker",
	Long: `Subscribe to iot/sensors/<id>/events/heartbeat and wait for the health
document the device publishes after connecting to the broker.`,
	Example: `  pigeon-cfg mqtt wait-heartbeat --device pigeon-7.local
  pigeon-cfg mqtt wait-heartbeat --url mqtt://10.0.0.2 --id 7 --wait 2m`,
	RunE: runMQTTWaitHeartbeat,
}

var mqttWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the device's sensor readings as they arrive",
	Example: `  pigeon-cfg mqtt watch --device pigeon-7.local
  pigeon-cfg mqtt watch --url mqtt://10.0.0.2 --id 7 --format json`,
	RunE: runMQTTWatch,
}

// brokerTarget returns the broker to use and the device id. Values missing
// from the flags are read from the device's stored settings.
func brokerTarget(cmd *cobra.Command, needID bool) (mqttprobe.BrokerConfig, string, error) {
	cfg := mqttprobe.BrokerConfig{URL: brokerURL, Username: brokerUser, Password: brokerPassword}
	id := brokerDeviceID

	if cfg.URL != "" && (id != "" || !needID) {
		return cfg, id, nil
	}

	device, err := resolveDevice(cmd)
	if err != nil {
		return cfg, id, err
	}
	settings, err := newClient(device).FetchSettings(cmd.Context())
	if err != nil {
		return cfg, id, deviceFailure("failed to read settings", err)
	}

	if cfg.URL == "" {
		cfg = mqttprobe.FromSettings(settings)
	}
	if id == "" {
		id = settings.DeviceID
	}
	if cfg.URL == "" {
		return cfg, id, errors.New("the device has no MQTT broker configured; use --url")
	}
	if needID && id == "" {
		return cfg, id, errors.New("device id unknown; use --id")
	}
	return cfg, id, nil
}

func runMQTTPing(cmd *cobra.Command, args []string) error {
	cfg, _, err := brokerTarget(cmd, false)
	if err != nil {
		return err
	}

	if err := mqttprobe.Ping(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("broker %s: %w", cfg.URL, err)
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case formatJSON:
		return printJSON(out, map[string]any{"url": cfg.URL, "connected": true})
	case formatCompact:
		fmt.Fprintf(out, "ok %s\n", cfg.URL)
	default:
		ui.NewPrinter(out).PrintSuccess("Broker reachable",
			ui.Field{Key: "Broker", Value: cfg.URL},
			ui.Field{Key: "Username", Value: orDash(cfg.Username)},
		)
	}
	return nil
}

func runMQTTWaitHeartbeat(cmd *cobra.Command, args []string) error {
	cfg, id, err := brokerTarget(cmd, true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == formatDetailed {
		fmt.Fprintf(out, "Waiting up to %s for %s on %s...\n\n", heartbeatWait, mqttprobe.HeartbeatTopic(id), cfg.URL)
	}

	ctx, cancel := withTimeout(cmd.Context(), heartbeatWait)
	defer cancel()

	health, err := mqttprobe.WaitHeartbeat(ctx, cfg, id)
	if err != nil {
		return err
	}

	switch outputFormat {
	case formatJSON:
		return printJSON(out, health)
	case formatCompact:
		fmt.Fprintln(out, health.FormatCompact())
	default:
		fmt.Fprintf(out, "Heartbeat from device %s\n\n", id)
		fmt.Fprint(out, health.FormatDetailed())
	}
	return nil
}

func runMQTTWatch(cmd *cobra.Command, args []string) error {
	cfg, id, err := brokerTarget(cmd, true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == formatDetailed {
		fmt.Fprintf(out, "Watching %s on %s (Ctrl+C to stop)...\n\n", mqttprobe.ReadingsTopic(id), cfg.URL)
	}

	ctx, cancel := withTimeout(cmd.Context(), watchDuration)
	defer cancel()

	var printErr error
	err = mqttprobe.New(cfg).Watch(ctx, id, func(r mqttprobe.Reading) {
		if printErr != nil {
			return
		}
		switch outputFormat {
		case formatJSON:
			printErr = json.NewEncoder(out).Encode(r)
		case formatCompact:
			fmt.Fprintf(out, "%d %s %s %s\n", r.Timestamp, r.SensorType, r.Value, r.Unit)
		default:
			fmt.Fprintf(out, "%s  %-14s %s %s\n", r.Time().Format("15:04:05"), r.SensorType, r.Value, r.Unit)
		}
	})
	if err != nil {
		return err
	}
	return printErr
}
