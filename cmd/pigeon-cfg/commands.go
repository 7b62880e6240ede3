package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/config"
	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/discovery"
	"github.com/dovecote/pigeon/internal/viewmodel"
	"github.com/dovecote/pigeon/internal/wizard/tui"
)

// Output formats
const (
	formatDetailed = "detailed"
	formatCompact  = "compact"
	formatJSON     = "json"
)

var (
	scanTimeout int
	scanBrokers bool
	showAllAPs  bool
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(wizardCmd)

	discoverCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Scan timeout in seconds (default from config, 5)")
	discoverCmd.Flags().BoolVar(&scanBrokers, "brokers", false, "Also list MQTT brokers advertised on the network")

	networksCmd.Flags().BoolVar(&showAllAPs, "all", false, "List every access point instead of one entry per SSID")
}

// discoverCmd finds devices on the network
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Pigeon devices on the network",
	Long: `Find Pigeon devices using mDNS/DNS-SD discovery.

Only hosts advertised as pigeon-<id>.local. are found; stock firmware does
not advertise itself, so the device needs an mDNS responder on the network
(a router or avahi static host entry) to show up here. When nothing is found
the default address is checked instead. A device without settings runs its
own hotspot; join it and use --device 192.168.4.1.`,
	Example: `  # Scan for 5 seconds (default)
  pigeon-cfg discover

  # Longer scan, and show MQTT brokers too
  pigeon-cfg discover --scan-timeout 15 --brokers

  # JSON output for scripting
  pigeon-cfg discover --format json`,
	RunE: runDiscover,
}

// discoverResult is the JSON output of discover
type discoverResult struct {
	Devices []*discovery.Device `json:"devices"`
	Brokers []*discovery.Broker `json:"brokers,omitempty"`
}

func runDiscover(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	scanner := newScanner()
	if scanTimeout > 0 {
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
	}

	if outputFormat == formatDetailed {
		fmt.Fprintf(out, "Scanning for Pigeon devices (timeout: %s)...\n\n", scanner.Timeout)
	}

	devices, err := scanner.ScanForDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var brokers []*discovery.Broker
	if scanBrokers {
		brokers, err = scanner.ScanForBrokers(cmd.Context())
		if err != nil {
			return fmt.Errorf("broker scan failed: %w", err)
		}
	}

	for _, d := range devices {
		if d.ID != "" {
			registry.UpdateDeviceLastSeen(d.ID, d.Address())
		}
	}
	saveRegistry()

	switch outputFormat {
	case formatJSON:
		return printJSON(out, discoverResult{Devices: devices, Brokers: brokers})
	case formatCompact:
		for _, d := range devices {
			fmt.Fprintf(out, "%s %s\n", orDash(d.ID), d.Address())
		}
		for _, b := range brokers {
			fmt.Fprintf(out, "broker %s\n", b.URL())
		}
		return nil
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found.")
		if d, ok := reachableFallback(cmd.Context()); ok {
			fmt.Fprintf(out, "\nA device answers at the default address; use --device %s\n", d.Address())
		}
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Ensure the device is powered on and has joined your WiFi")
		fmt.Fprintf(out, "  - A device without settings runs the hotspot %q; join it and use --device %s\n",
			deviceapi.DefaultAPSSID, deviceapi.DefaultAPAddress)
		fmt.Fprintln(out, "  - Try increasing --scan-timeout for slower networks")
	} else {
		fmt.Fprintf(out, "Found %d device(s):\n\n", len(devices))
		for i, d := range devices {
			name := d.Hostname
			if entry := registry.GetDevice(d.ID); entry != nil {
				name = entry.DisplayName(d.ID)
			}
			fmt.Fprintf(out, "%d. %s\n", i+1, name)
			fmt.Fprintf(out, "   ID:      %s\n", orDash(d.ID))
			fmt.Fprintf(out, "   Address: %s\n", d.Address())
			if len(d.Metadata) > 0 {
				fmt.Fprintf(out, "   Metadata: %v\n", d.Metadata)
			}
			fmt.Fprintln(out)
		}
	}

	if scanBrokers {
		if len(brokers) == 0 {
			fmt.Fprintln(out, "No MQTT brokers advertised.")
		} else {
			fmt.Fprintf(out, "Found %d MQTT broker(s):\n\n", len(brokers))
			for _, b := range brokers {
				fmt.Fprintf(out, "  %s  (%s)\n", b.URL(), b.Instance)
			}
			fmt.Fprintln(out)
		}
	}

	if len(devices) > 0 {
		fmt.Fprintln(out, "Use 'pigeon-cfg settings show --device <address>' to view device settings")
		fmt.Fprintln(out, "Use 'pigeon-cfg wizard' for interactive configuration")
	}
	return nil
}

// networksCmd asks the device for the WiFi networks it can see
var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List WiFi networks visible to the device",
	Long: `Ask the device to scan for WiFi networks and list them, strongest first.

The scan runs on the device and blocks it for a few seconds.`,
	Example: `  # Scan through the device hotspot
  pigeon-cfg networks --device 192.168.4.1

  # One line per network
  pigeon-cfg networks --format compact`,
	RunE: runNetworks,
}

func runNetworks(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	device, err := resolveDevice(cmd)
	if err != nil {
		return err
	}

	if outputFormat == formatDetailed {
		fmt.Fprintf(out, "Scanning WiFi networks from %s...\n\n", device.Address())
	}

	state, outcome := deviceAction(cmd.Context(), newClient(device), viewmodel.ActionScan, viewmodel.Fields{})
	if state.Err != nil {
		return deviceFailure("network scan failed", state.Err)
	}
	list := &deviceapi.NetworkList{APCount: outcome.Networks.APCount, WifiList: state.WifiList}
	if list.WifiList != nil && !showAllAPs {
		list.WifiList = deviceapi.UniqueSSIDs(list.WifiList)
	}

	switch outputFormat {
	case formatJSON:
		return printJSON(out, list)
	case formatCompact:
		fmt.Fprint(out, deviceapi.FormatNetworksCompact(list))
	default:
		fmt.Fprint(out, deviceapi.FormatNetworks(list))
	}
	return nil
}

// healthCmd shows the device's connection status
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show device connection status",
	Long: `Read the device's health flags: WiFi station up, address acquired,
MQTT connected and subscribed, clock synchronised.`,
	Example: `  pigeon-cfg health --device pigeon-7.local
  pigeon-cfg health --format json`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	device, err := resolveDevice(cmd)
	if err != nil {
		return err
	}

	health, err := newClient(device).Health(cmd.Context())
	if err != nil {
		return deviceFailure("health check failed", err)
	}

	switch outputFormat {
	case formatJSON:
		return printJSON(out, health)
	case formatCompact:
		fmt.Fprintln(out, health.FormatCompact())
	default:
		fmt.Fprintf(out, "Device %s\n\n", device.Address())
		fmt.Fprint(out, health.FormatDetailed())
	}
	return nil
}

// wizardCmd launches the interactive configuration wizard
var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch the interactive configuration wizard",
	Long: `Launch the interactive terminal wizard.

The wizard finds devices (or takes --device), scans WiFi networks from the
device and edits its WiFi and MQTT settings.`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	prefs := preferences()
	opts := tui.Options{
		Registry:       registry,
		RequestTimeout: requestTimeout,
		ScanTimeout:    prefs.DiscoverTimeoutDuration(),
		HostPrefix:     prefs.HostPrefix,
	}

	if deviceAddr != "" {
		device, err := discovery.ParseAddress(deviceAddr, devicePort)
		if err != nil {
			return err
		}
		opts.Device = device
	}

	if err := tui.Run(opts); err != nil {
		return fmt.Errorf("wizard error: %w", err)
	}
	return nil
}

// preferences never returns nil
func preferences() *config.Preferences {
	if registry == nil || registry.Preferences == nil {
		return config.DefaultPreferences()
	}
	return registry.Preferences
}

func newScanner() *discovery.Scanner {
	prefs := preferences()
	scanner := discovery.NewScanner()
	scanner.Timeout = prefs.DiscoverTimeoutDuration()
	if prefs.HostPrefix != "" {
		scanner.HostPrefix = prefs.HostPrefix
	}
	return scanner
}

// resolveDevice picks the device a command talks to: --device, then a single
// device found over mDNS, then the configured default address (the soft-AP
// address unless changed).
func resolveDevice(cmd *cobra.Command) (*discovery.Device, error) {
	status := cmd.ErrOrStderr()

	if deviceAddr != "" {
		device, err := discovery.ParseAddress(deviceAddr, devicePort)
		if err != nil {
			return nil, err
		}
		attachRegistryID(device)
		return device, nil
	}

	prefs := preferences()
	if prefs.AutoDiscover {
		fmt.Fprintln(status, "No device specified, attempting auto-discovery...")
		devices, err := newScanner().ScanForDevices(cmd.Context())
		if err != nil {
			logger.Warn("Discovery failed", zap.Error(err))
		}

		switch {
		case len(devices) == 1:
			device := devices[0]
			fmt.Fprintf(status, "Found device: %s\n\n", device)
			return device, nil

		case len(devices) > 1:
			fmt.Fprintf(status, "Found %d devices:\n", len(devices))
			for i, d := range devices {
				fmt.Fprintf(status, "%d. %s\n", i+1, d)
			}
			return nil, fmt.Errorf("multiple devices found. Use --device to specify which one")
		}
	}

	device, err := fallbackDevice()
	if err != nil {
		return nil, err
	}

	if device.SoftAP {
		fmt.Fprintf(status, "Trying the device hotspot at %s (join WiFi %q first)\n\n",
			device.Address(), deviceapi.DefaultAPSSID)
	} else {
		fmt.Fprintf(status, "Using default device %s\n\n", device.Address())
	}
	return device, nil
}

// fallbackDevice is the configured default address, or the device hotspot
func fallbackDevice() (*discovery.Device, error) {
	prefs := preferences()
	device := discovery.SoftAPDevice()
	if prefs.DefaultAddress != "" && prefs.DefaultAddress != deviceapi.DefaultAPAddress {
		d, err := discovery.ParseAddress(prefs.DefaultAddress, devicePort)
		if err != nil {
			return nil, fmt.Errorf("default_address in config: %w", err)
		}
		device = d
	}
	attachRegistryID(device)
	return device, nil
}

// reachableFallback reports the fallback device when it answers GET /health
func reachableFallback(ctx context.Context) (*discovery.Device, bool) {
	device, err := fallbackDevice()
	if err != nil {
		return nil, false
	}
	if err := newClient(device).Ping(ctx); err != nil {
		logger.Debug("Default address not reachable",
			zap.String("address", device.Address()),
			zap.Error(err),
		)
		return nil, false
	}
	return device, true
}

// attachRegistryID fills in the device id remembered for this address
func attachRegistryID(device *discovery.Device) {
	if device.ID != "" || device.SoftAP || registry == nil {
		return
	}
	if id, _ := registry.FindByAddress(device.Address()); id != "" {
		device.ID = id
	}
}

// deviceAction runs one view-model action and folds its outcome into a
// fresh state, the same path the wizard takes
func deviceAction(ctx context.Context, dev viewmodel.Device, action viewmodel.Action, f viewmodel.Fields) (viewmodel.State, viewmodel.Outcome) {
	vm := viewmodel.New(dev, logger.Named("viewmodel"))

	var outcome viewmodel.Outcome
	switch action {
	case viewmodel.ActionScan:
		outcome = vm.Scan(ctx)
	case viewmodel.ActionApply:
		outcome = vm.Apply(ctx, f)
	case viewmodel.ActionFetch:
		outcome = vm.Fetch(ctx)
	default:
		outcome = viewmodel.Outcome{Action: action, Err: fmt.Errorf("unknown action %v", action)}
	}
	return viewmodel.State{}.WithFields(f).Begin(action).Apply(outcome), outcome
}

func newClient(device *discovery.Device) *deviceapi.Client {
	client := deviceapi.NewClientWithURL(device.BaseURL())
	client.SetTimeout(requestTimeout)
	return client
}

// rememberDevice records a device the CLI just talked to
func rememberDevice(id string, device *discovery.Device) {
	if id == "" || device.SoftAP {
		return
	}
	registry.UpdateDeviceLastSeen(id, device.Address())
}

func saveRegistry() {
	if err := registry.Save(); err != nil {
		logger.Warn("Failed to save device registry", zap.Error(err))
	}
}

// deviceFailure wraps a device error with its short message; the full
// troubleshooting hint is logged at debug level.
func deviceFailure(what string, err error) error {
	logger.Debug(what, zap.Error(err), zap.String("hint", deviceapi.GetTroubleshootingHint(err)))
	return fmt.Errorf("%s: %s\n\n%s", what, deviceapi.GetShortErrorMessage(err), deviceapi.GetTroubleshootingHint(err))
}

// troubleshoot turns a troubleshooting hint into the tips of a result box
func troubleshoot(err error) []string {
	var tips []string
	for _, line := range strings.Split(deviceapi.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, strings.TrimPrefix(line, "• "))
	}
	return tips
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// withTimeout bounds waits that are not HTTP requests
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
