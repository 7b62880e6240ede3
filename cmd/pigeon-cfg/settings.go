package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/discovery"
	"github.com/dovecote/pigeon/internal/mqttprobe"
	"github.com/dovecote/pigeon/internal/ui"
	"github.com/dovecote/pigeon/internal/viewmodel"
)

// applyOptions are the settings apply flags that are not settings
type applyOptions struct {
	verify           bool
	force            bool
	dryRun           bool
	waitHeartbeat    bool
	heartbeatTimeout time.Duration
}

var (
	showPasswords bool
	resetYes      bool

	applySSID         string
	applyPassword     string
	applyMQTTURL      string
	applyMQTTUser     string
	applyMQTTPassword string
	applyOpts         applyOptions

	// Replaced in tests
	stdinIsTerminal = func() bool { return ui.IsTerminal(os.Stdin) }
	readSecret      = readPasswordFromTerminal
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsApplyCmd)
	settingsCmd.AddCommand(settingsResetCmd)

	settingsShowCmd.Flags().BoolVar(&showPasswords, "show-passwords", false, "Include passwords in JSON output")

	f := settingsApplyCmd.Flags()
	f.StringVar(&applySSID, "ssid", "", "WiFi network name")
	f.StringVar(&applyPassword, "password", "", `WiFi password; prompted on a terminal when --ssid is given without it ("" for an open network)`)
	f.StringVar(&applyMQTTURL, "mqtt-url", "", "MQTT broker URL: mqtt://, mqtts://, ws:// or wss://")
	f.StringVar(&applyMQTTUser, "mqtt-user", "", "MQTT username")
	f.StringVar(&applyMQTTPassword, "mqtt-password", "", "MQTT password; prompted on a terminal when --mqtt-user is given without it")
	f.BoolVar(&applyOpts.verify, "verify", false, "Read the settings back and compare them after applying")
	f.BoolVar(&applyOpts.force, "force", false, "Send the settings without validating them first")
	f.BoolVar(&applyOpts.dryRun, "dry-run", false, "Show what would change without writing to the device")
	f.BoolVar(&applyOpts.waitHeartbeat, "wait-heartbeat", false, "Wait for the device's heartbeat on the new broker")
	f.DurationVar(&applyOpts.heartbeatTimeout, "heartbeat-timeout", 60*time.Second, "How long --wait-heartbeat waits")

	settingsResetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Erase without asking for confirmation")
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read, write or erase device settings",
	Long: `Read, write or erase the WiFi and MQTT settings stored on a device.

A device keeps five settings: WiFi SSID and password, MQTT broker URL,
username and password. Writing replaces all five at once.`,
}

// settingsShowCmd reads the stored settings
var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the settings stored on the device",
	Long: `Read the settings stored on the device. This is also the quickest way
to test that the device answers. Passwords are masked unless
--show-passwords is combined with --format json.`,
	Example: `  # Through the device hotspot
  pigeon-cfg settings show --device 192.168.4.1

  # JSON output for scripting
  pigeon-cfg settings show --device pigeon-7.local --format json`,
	RunE: runSettingsShow,
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	device, err := resolveDevice(cmd)
	if err != nil {
		return err
	}

	state, _ := deviceAction(cmd.Context(), newClient(device), viewmodel.ActionFetch, viewmodel.Fields{})
	if state.Err != nil {
		return deviceFailure("failed to read settings", state.Err)
	}
	settings := state.Settings

	if settings.DeviceID != "" {
		rememberDevice(settings.DeviceID, device)
		saveRegistry()
	}

	switch outputFormat {
	case formatJSON:
		if showPasswords {
			return printJSON(out, settings)
		}
		return printJSON(out, settings.Redacted())
	case formatCompact:
		fmt.Fprint(out, settings.FormatCompact())
	default:
		fmt.Fprintf(out, "Settings from %s\n", device.Address())
		fmt.Fprint(out, settings.FormatDetailed())
	}
	return nil
}

// settingsApplyCmd writes new settings
var settingsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write WiFi and MQTT settings to the device",
	Long: `Write WiFi and MQTT settings to the device.

Settings not given on the command line keep the value currently stored on
the device, which is read first. Give all five to skip that read.

The settings are validated before sending unless --force is given. The
device answers 202 Accepted and then joins the new network; use --verify
to read the settings back and --wait-heartbeat to wait until the device
reports in on the broker.`,
	Example: `  # Join a network (password prompted)
  pigeon-cfg settings apply --device 192.168.4.1 --ssid home

  # Point the device at a broker and wait for it to report in
  pigeon-cfg settings apply --mqtt-url mqtt://10.0.0.2:1883 \
    --mqtt-user sensor --mqtt-password s3cret --wait-heartbeat

  # Preview the change
  pigeon-cfg settings apply --ssid office --password hunter22 --dry-run`,
	RunE: runSettingsApply,
}

// overrides holds the settings given on the command line; nil fields keep
// the device's current value
type overrides struct {
	WifiSSID     *string
	WifiPassword *string
	MQTTURL      *string
	MQTTUsername *string
	MQTTPassword *string
}

func (o overrides) fields() []*string {
	return []*string{o.WifiSSID, o.WifiPassword, o.MQTTURL, o.MQTTUsername, o.MQTTPassword}
}

// empty reports whether nothing was given
func (o overrides) empty() bool {
	for _, f := range o.fields() {
		if f != nil {
			return false
		}
	}
	return true
}

// complete reports whether all five settings were given
func (o overrides) complete() bool {
	for _, f := range o.fields() {
		if f == nil {
			return false
		}
	}
	return true
}

// apply returns base with the given settings replaced
func (o overrides) apply(base deviceapi.SettingsPayload) deviceapi.SettingsPayload {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.WifiSSID, o.WifiSSID)
	set(&base.WifiPassword, o.WifiPassword)
	set(&base.MQTTURL, o.MQTTURL)
	set(&base.MQTTUsername, o.MQTTUsername)
	set(&base.MQTTPassword, o.MQTTPassword)
	return base
}

// collectOverrides reads the setting flags, prompting for passwords that
// were left out when stdin is a terminal
func collectOverrides(cmd *cobra.Command) (overrides, error) {
	flags := cmd.Flags()
	given := func(name, value string) *string {
		if !flags.Changed(name) {
			return nil
		}
		return &value
	}

	o := overrides{
		WifiSSID:     given("ssid", applySSID),
		WifiPassword: given("password", applyPassword),
		MQTTURL:      given("mqtt-url", applyMQTTURL),
		MQTTUsername: given("mqtt-user", applyMQTTUser),
		MQTTPassword: given("mqtt-password", applyMQTTPassword),
	}
	if !stdinIsTerminal() {
		return o, nil
	}

	prompt := cmd.ErrOrStderr()
	if o.WifiSSID != nil && o.WifiPassword == nil {
		pw, err := readSecret(prompt, fmt.Sprintf("WiFi password for %q (empty keeps the stored one): ", *o.WifiSSID))
		if err != nil {
			return o, fmt.Errorf("failed to read password: %w", err)
		}
		if pw != "" {
			o.WifiPassword = &pw
		}
	}
	if o.MQTTUsername != nil && *o.MQTTUsername != "" && o.MQTTPassword == nil {
		pw, err := readSecret(prompt, fmt.Sprintf("MQTT password for %q (empty keeps the stored one): ", *o.MQTTUsername))
		if err != nil {
			return o, fmt.Errorf("failed to read password: %w", err)
		}
		if pw != "" {
			o.MQTTPassword = &pw
		}
	}
	return o, nil
}

func readPasswordFromTerminal(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	return string(secret), err
}

var errInvalidSettings = errors.New("invalid settings")

// Steps of settings apply
const (
	stepRead = iota + 1
	stepValidate
	stepApply
	stepVerify
	stepHeartbeat
)

var applySteps = []string{
	"Read current settings",
	"Validate settings",
	"Apply settings",
	"Verify settings",
	"Wait for MQTT heartbeat",
}

// applyReport is what settings apply did; it is the JSON output
type applyReport struct {
	Device     string            `json:"device"`
	DeviceID   string            `json:"device_id,omitempty"`
	WifiSSID   string            `json:"wifi_ssid"`
	MQTTURL    string            `json:"mqtt_url,omitempty"`
	DryRun     bool              `json:"dry_run,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Verified   *bool             `json:"verified,omitempty"`
	Mismatches []string          `json:"mismatches,omitempty"`
	Heartbeat  *deviceapi.Health `json:"heartbeat,omitempty"`

	current *deviceapi.Settings
	payload deviceapi.SettingsPayload
}

// accepted reports whether the device took the update
func (r *applyReport) accepted() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// details are the lines of the success box
func (r *applyReport) details() []ui.Field {
	if r == nil {
		return nil
	}
	fields := []ui.Field{{Key: "Device", Value: r.Device}}
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, ui.Field{Key: key, Value: value})
		}
	}
	add("Device ID", r.DeviceID)
	add("WiFi", r.WifiSSID)
	add("Broker", r.MQTTURL)
	if r.StatusCode != 0 {
		add("Response", fmt.Sprintf("HTTP %d", r.StatusCode))
	}
	if r.Verified != nil && *r.Verified {
		add("Verified", "all five settings stored")
	}
	if r.Heartbeat != nil {
		add("Heartbeat", r.Heartbeat.FormatCompact())
	}
	add("Warnings", strings.Join(r.Warnings, "; "))
	return fields
}

// applySettings merges, validates and writes the settings, reporting each
// step through onStep. The report is returned even when a step fails.
func applySettings(ctx context.Context, client *deviceapi.Client, device *discovery.Device, o overrides, opts applyOptions, onStep ui.StepCallback) (*applyReport, error) {
	report := &applyReport{Device: device.Address(), DeviceID: device.ID, DryRun: opts.dryRun}

	var base deviceapi.SettingsPayload
	if o.complete() && !opts.dryRun {
		onStep(stepRead, ui.StepSkipped, "all settings given")
	} else {
		onStep(stepRead, ui.StepRunning, "")
		state, _ := deviceAction(ctx, client, viewmodel.ActionFetch, viewmodel.Fields{})
		if state.Err != nil {
			onStep(stepRead, ui.StepFailed, "")
			return report, fmt.Errorf("failed to read current settings: %w", state.Err)
		}
		current := state.Settings
		report.current = current
		base = current.Payload()
		if current.DeviceID != "" {
			report.DeviceID = current.DeviceID
		}
		onStep(stepRead, ui.StepComplete, "device "+orDash(report.DeviceID))
	}

	payload := o.apply(base)
	report.payload = payload
	report.WifiSSID = payload.WifiSSID
	report.MQTTURL = payload.MQTTURL

	if opts.force {
		onStep(stepValidate, ui.StepSkipped, "--force")
	} else {
		warnings, critical := deviceapi.SeparateWarningsAndErrors(deviceapi.ValidateSettingsPayload(&payload))
		for _, w := range warnings {
			report.Warnings = append(report.Warnings, w.Error())
		}
		if len(critical) > 0 {
			onStep(stepValidate, ui.StepFailed, fmt.Sprintf("%d error(s)", len(critical)))
			return report, fmt.Errorf("%w\n%sUse --force to send them anyway", errInvalidSettings, deviceapi.FormatValidationErrors(critical))
		}
		note := ""
		if len(warnings) > 0 {
			note = fmt.Sprintf("%d warning(s)", len(warnings))
		}
		onStep(stepValidate, ui.StepComplete, note)
	}

	if opts.dryRun {
		onStep(stepApply, ui.StepSkipped, "dry run")
		onStep(stepVerify, ui.StepSkipped, "dry run")
		onStep(stepHeartbeat, ui.StepSkipped, "dry run")
		return report, nil
	}

	onStep(stepApply, ui.StepRunning, "")
	if opts.verify {
		result := client.ApplyAndVerify(ctx, payload, nil)
		if result.Apply == nil {
			onStep(stepApply, ui.StepFailed, "")
			return report, result.Error
		}
		report.StatusCode = result.Apply.StatusCode
		onStep(stepApply, ui.StepComplete, fmt.Sprintf("HTTP %d", report.StatusCode))

		if result.Actual != nil && result.Actual.DeviceID != "" {
			report.DeviceID = result.Actual.DeviceID
		}
		verified := result.Success
		report.Verified = &verified
		report.Mismatches = result.Mismatches
		if !result.Success {
			note := "read back failed"
			if len(result.Mismatches) > 0 {
				note = fmt.Sprintf("%d mismatch(es)", len(result.Mismatches))
			}
			onStep(stepVerify, ui.StepFailed, note)
			return report, result.Error
		}
		onStep(stepVerify, ui.StepComplete, "")
	} else {
		state, _ := deviceAction(ctx, client, viewmodel.ActionApply, viewmodel.FieldsFromPayload(payload))
		if state.Err != nil {
			onStep(stepApply, ui.StepFailed, "")
			return report, state.Err
		}
		report.StatusCode = state.Applied.StatusCode
		onStep(stepApply, ui.StepComplete, fmt.Sprintf("HTTP %d", report.StatusCode))
		onStep(stepVerify, ui.StepSkipped, "use --verify")
	}

	switch {
	case !opts.waitHeartbeat:
		onStep(stepHeartbeat, ui.StepSkipped, "use --wait-heartbeat")
	case payload.MQTTURL == "":
		onStep(stepHeartbeat, ui.StepSkipped, "no broker configured")
	case report.DeviceID == "":
		onStep(stepHeartbeat, ui.StepSkipped, "device id unknown")
	default:
		onStep(stepHeartbeat, ui.StepRunning, "")
		hctx, cancel := withTimeout(ctx, opts.heartbeatTimeout)
		defer cancel()

		health, err := mqttprobe.WaitHeartbeat(hctx, mqttprobe.FromPayload(payload), report.DeviceID)
		if err != nil {
			onStep(stepHeartbeat, ui.StepFailed, "")
			return report, fmt.Errorf("settings applied, but no heartbeat arrived: %w", err)
		}
		report.Heartbeat = health
		onStep(stepHeartbeat, ui.StepComplete, health.FormatCompact())
	}

	return report, nil
}

func runSettingsApply(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	o, err := collectOverrides(cmd)
	if err != nil {
		return err
	}
	if o.empty() {
		return errors.New("nothing to apply: give at least one of --ssid, --password, --mqtt-url, --mqtt-user, --mqtt-password")
	}

	device, err := resolveDevice(cmd)
	if err != nil {
		return err
	}
	client := newClient(device)

	var report *applyReport
	op := func(ctx context.Context, onStep ui.StepCallback) ([]ui.Field, error) {
		var opErr error
		report, opErr = applySettings(ctx, client, device, o, applyOpts, onStep)
		return report.details(), opErr
	}

	if outputFormat == formatDetailed {
		title := "Apply settings"
		if applyOpts.dryRun {
			title = "Preview settings"
		}
		header := ui.NewHeader(title, cmd.CommandPath()).
			Add("Device", device.Address()).
			Add("Device ID", device.ID)
		if o.WifiSSID != nil {
			header.Add("WiFi", *o.WifiSSID)
		}
		if o.MQTTURL != nil {
			header.Add("Broker", *o.MQTTURL)
		}

		runner := ui.NewRunner(ui.RunnerConfig{
			Title:        title,
			Command:      cmd.CommandPath(),
			Params:       header.Params,
			Steps:        applySteps,
			Troubleshoot: applyTips,
			Output:       out,
		})
		err = runner.Run(cmd.Context(), op)
	} else {
		_, err = op(cmd.Context(), func(int, ui.StepStatus, string) {})
	}

	recordApply(report, device)

	if err != nil {
		return err
	}

	switch outputFormat {
	case formatJSON:
		return printJSON(out, report)
	case formatCompact:
		if report.DryRun {
			fmt.Fprintf(out, "dry-run %s %s\n", report.Device, report.WifiSSID)
		} else {
			fmt.Fprintf(out, "applied %s HTTP %d\n", report.Device, report.StatusCode)
		}
	default:
		if report.DryRun && report.current != nil {
			fmt.Fprintln(out)
			fmt.Fprint(out, deviceapi.FormatDiff(report.current, report.payload))
		}
	}
	return nil
}

// recordApply remembers an accepted update in the registry. Passwords are
// not stored.
func recordApply(report *applyReport, device *discovery.Device) {
	if !report.accepted() || report.DeviceID == "" {
		return
	}
	registry.RecordApplied(report.DeviceID, report.payload)
	rememberDevice(report.DeviceID, device)
	saveRegistry()
	logger.Info("Settings applied",
		zap.String("device_id", report.DeviceID),
		zap.String("address", report.Device),
		zap.String("wifi_ssid", report.WifiSSID),
	)
}

// applyTips adds advice for failures that are not device errors
func applyTips(err error) []string {
	switch {
	case errors.Is(err, mqttprobe.ErrNoHeartbeat), errors.Is(err, context.DeadlineExceeded):
		return []string{
			"The device may still be joining the new WiFi network",
			"Check the broker URL and credentials with: pigeon-cfg mqtt ping",
			"Wait longer with: pigeon-cfg mqtt wait-heartbeat",
		}
	case errors.Is(err, errInvalidSettings):
		return []string{"Fix the values above or pass --force to send them anyway"}
	}
	var devErr *deviceapi.DeviceError
	if errors.As(err, &devErr) {
		return troubleshoot(err)
	}
	return nil
}

// settingsResetCmd erases the stored settings
var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase the device's settings",
	Long: `Erase the WiFi and MQTT settings stored on the device.

The device keeps running with its current connection until it reboots;
then it opens its own hotspot (` + deviceapi.DefaultAPSSID + `) again. Asks for confirmation
unless --yes is given.`,
	Example: `  pigeon-cfg settings reset --device pigeon-7.local
  pigeon-cfg settings reset --device 10.0.0.7 --yes`,
	RunE: runSettingsReset,
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	device, err := resolveDevice(cmd)
	if err != nil {
		return err
	}

	if !resetYes {
		if !stdinIsTerminal() {
			return errors.New("refusing to erase settings without confirmation; pass --yes")
		}
		if !ui.Confirm(cmd.InOrStdin(), out, ui.ResetConfirmation(device.Address())) {
			return nil
		}
	}

	if err := newClient(device).ResetSettings(cmd.Context()); err != nil {
		return deviceFailure("reset failed", err)
	}
	logger.Info("Settings erased", zap.String("address", device.Address()))

	switch outputFormat {
	case formatJSON:
		return printJSON(out, map[string]any{"device": device.Address(), "reset": true})
	case formatCompact:
		fmt.Fprintf(out, "reset %s\n", device.Address())
	default:
		ui.NewPrinter(out).PrintSuccess("Settings erased",
			ui.Field{Key: "Device", Value: device.Address()},
			ui.Field{Key: "Next", Value: fmt.Sprintf("join WiFi %q and run pigeon-cfg wizard", deviceapi.DefaultAPSSID)},
		)
	}
	return nil
}
