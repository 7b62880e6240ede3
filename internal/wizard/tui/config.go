package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/config"
	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/discovery"
	"github.com/dovecote/pigeon/internal/logging"
	"github.com/dovecote/pigeon/internal/mqttprobe"
	"github.com/dovecote/pigeon/internal/viewmodel"
)

// Message types for async operations
type outcomeMsg struct {
	outcome viewmodel.Outcome
}

type brokerCheckMsg struct {
	url string
	err error
}

// Form field indexes. focusNetworks is the network list below the form.
const (
	fieldWifiSSID = iota
	fieldWifiPassword
	fieldMQTTURL
	fieldMQTTUsername
	fieldMQTTPassword
	fieldCount

	focusNetworks = fieldCount
)

// maxListedNetworks bounds how many scan results are drawn
const maxListedNetworks = 12

// fieldByteLimits are the device buffer sizes. textinput limits count runes,
// so multibyte input is trimmed to these as it is typed.
var fieldByteLimits = [fieldCount]int{
	deviceapi.MaxWifiSSIDLen,
	deviceapi.MaxWifiPasswordLen,
	deviceapi.MaxMQTTURLLen,
	deviceapi.MaxMQTTUsernameLen,
	deviceapi.MaxMQTTPasswordLen,
}

var fieldLabels = [fieldCount]string{
	"WiFi SSID",
	"WiFi password",
	"MQTT URL",
	"MQTT username",
	"MQTT password",
}

// configKeyMap defines key bindings for the config screen
type configKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Select key.Binding
	Scan   key.Binding
	Apply  key.Binding
	Test   key.Binding
	Broker key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k configKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Scan, k.Apply, k.Test, k.Broker, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k configKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Select},
		{k.Scan, k.Apply, k.Test, k.Broker},
		{k.Back},
	}
}

// ConfigModel edits a device's WiFi and MQTT settings. The form and the
// results of device calls are kept in a viewmodel.State; every device call
// runs as a tea.Cmd and comes back as one outcomeMsg.
type ConfigModel struct {
	Device   *discovery.Device
	DeviceID string

	VM      *viewmodel.ViewModel
	State   viewmodel.State
	Timeout time.Duration

	// Registry receives what was applied; nil disables it
	Registry *config.Registry

	// Form
	Inputs    []textinput.Model
	Focus     int
	NetCursor int

	// Broker check
	CheckingBroker bool
	BrokerURL      string
	BrokerErr      error
	BrokerChecked  bool

	// UI state
	Width         int
	Height        int
	Spinner       spinner.Model
	Help          help.Model
	Keys          configKeyMap
	BackRequested bool

	logger *zap.Logger
}

// NewConfigModel creates the config screen for device. Remembered non-secret
// values from the registry pre-fill the form.
func NewConfigModel(device *discovery.Device, dev viewmodel.Device, registry *config.Registry, timeout time.Duration) ConfigModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Prompt = ""
		in.Width = 40
		in.CharLimit = fieldByteLimits[i]
		inputs[i] = in
	}
	inputs[fieldWifiSSID].Placeholder = "pick a network below or type it"
	inputs[fieldWifiPassword].Placeholder = "empty for an open network"
	inputs[fieldMQTTURL].Placeholder = "mqtt://broker.local:1883"
	for _, i := range []int{fieldWifiPassword, fieldMQTTPassword} {
		inputs[i].EchoMode = textinput.EchoPassword
		inputs[i].EchoCharacter = '•'
	}
	inputs[fieldWifiSSID].Focus()

	m := ConfigModel{
		Device:   device,
		DeviceID: device.ID,
		VM:       viewmodel.New(dev, logging.Named("wizard")),
		Timeout:  timeout,
		Registry: registry,
		Inputs:   inputs,
		Spinner:  s,
		Help:     help.New(),
		Keys: configKeyMap{
			Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
			Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
			Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use network")),
			Scan:   key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "scan")),
			Apply:  key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "apply")),
			Test:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "test")),
			Broker: key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "check broker")),
			Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		},
		logger: logging.Named("wizard"),
	}

	if registry != nil && device.ID != "" {
		if known := registry.GetDevice(device.ID); known != nil {
			m.Inputs[fieldWifiSSID].SetValue(known.WifiSSID)
			m.Inputs[fieldMQTTURL].SetValue(known.MQTTURL)
			m.Inputs[fieldMQTTUsername].SetValue(known.MQTTUsername)
		}
	}
	m.State = m.State.WithFields(m.fields())

	return m
}

// autoScanMsg starts the first scan once the screen is shown
type autoScanMsg struct{}

// Init starts with a network scan so the list is ready to pick from
func (m ConfigModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return autoScanMsg{} })
}

// Update handles messages and updates the model
func (m ConfigModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case autoScanMsg:
		return m.runAction(viewmodel.ActionScan)

	case outcomeMsg:
		return m.handleOutcome(msg.outcome), nil

	case brokerCheckMsg:
		m.CheckingBroker = false
		m.BrokerChecked = true
		m.BrokerURL = msg.url
		m.BrokerErr = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.State.Busy() && !m.CheckingBroker {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateFocusedInput(msg)
}

func (m ConfigModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Back):
		m.BackRequested = true
		return m, nil

	case key.Matches(msg, m.Keys.Scan):
		return m.runAction(viewmodel.ActionScan)

	case key.Matches(msg, m.Keys.Apply):
		return m.runAction(viewmodel.ActionApply)

	case key.Matches(msg, m.Keys.Test):
		return m.runAction(viewmodel.ActionFetch)

	case key.Matches(msg, m.Keys.Broker):
		return m.checkBroker()
	}

	if m.Focus == focusNetworks {
		return m.handleNetworkKey(msg)
	}

	switch msg.String() {
	case "tab", "down", "enter":
		return m.moveFocus(1), nil
	case "shift+tab", "up":
		return m.moveFocus(-1), nil
	}

	return m.updateFocusedInput(msg)
}

func (m ConfigModel) handleNetworkKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	networks := m.displayedNetworks()

	switch msg.String() {
	case "up", "k":
		if m.NetCursor > 0 {
			m.NetCursor--
			return m, nil
		}
		return m.moveFocus(-1), nil
	case "down", "j":
		if m.NetCursor < len(networks)-1 {
			m.NetCursor++
		}
		return m, nil
	case "tab":
		return m.moveFocus(1), nil
	case "shift+tab":
		return m.moveFocus(-1), nil
	case "enter", " ":
		if m.NetCursor < len(networks) {
			m.Inputs[fieldWifiSSID].SetValue(networks[m.NetCursor].SSID)
			m.Inputs[fieldWifiPassword].SetValue("")
			m.State = m.State.WithFields(m.fields())
			m = m.setFocus(fieldWifiPassword)
			if networks[m.NetCursor].IsOpen() {
				m = m.setFocus(fieldMQTTURL)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m ConfigModel) updateFocusedInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.Focus >= fieldCount {
		return m, nil
	}
	var cmd tea.Cmd
	m.Inputs[m.Focus], cmd = m.Inputs[m.Focus].Update(msg)
	if v := m.Inputs[m.Focus].Value(); len(v) > fieldByteLimits[m.Focus] {
		m.Inputs[m.Focus].SetValue(fitBytes(v, fieldByteLimits[m.Focus]))
	}
	m.State = m.State.WithFields(m.fields())
	return m, cmd
}

// moveFocus cycles through the inputs and the network list
func (m ConfigModel) moveFocus(delta int) ConfigModel {
	next := (m.Focus + delta + fieldCount + 1) % (fieldCount + 1)
	return m.setFocus(next)
}

func (m ConfigModel) setFocus(focus int) ConfigModel {
	for i := range m.Inputs {
		if i == focus {
			m.Inputs[i].Focus()
		} else {
			m.Inputs[i].Blur()
		}
	}
	m.Focus = focus
	return m
}

// fields reads the form
func (m ConfigModel) fields() viewmodel.Fields {
	value := func(i int) string {
		return fitBytes(m.Inputs[i].Value(), fieldByteLimits[i])
	}
	return viewmodel.Fields{
		WifiSSID:     value(fieldWifiSSID),
		WifiPassword: value(fieldWifiPassword),
		MQTTURL:      strings.TrimSpace(value(fieldMQTTURL)),
		MQTTUsername: value(fieldMQTTUsername),
		MQTTPassword: value(fieldMQTTPassword),
	}
}

// fitBytes cuts s to at most limit bytes without splitting a rune
func fitBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// runAction starts one device call. The screen runs one call at a time.
func (m ConfigModel) runAction(action viewmodel.Action) (ConfigModel, tea.Cmd) {
	if m.State.Busy() {
		return m, nil
	}
	f := m.fields()
	m.State = m.State.WithFields(f).Begin(action)
	return m, tea.Batch(m.Spinner.Tick, actionCmd(m.VM, action, f, m.Timeout))
}

// actionCmd runs action against the device and resolves to an outcomeMsg
func actionCmd(vm *viewmodel.ViewModel, action viewmodel.Action, f viewmodel.Fields, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		switch action {
		case viewmodel.ActionScan:
			return outcomeMsg{vm.Scan(ctx)}
		case viewmodel.ActionApply:
			return outcomeMsg{vm.Apply(ctx, f)}
		default:
			return outcomeMsg{vm.Fetch(ctx)}
		}
	}
}

func (m ConfigModel) handleOutcome(out viewmodel.Outcome) ConfigModel {
	m.State = m.State.Apply(out)
	if !out.OK() {
		return m
	}

	switch out.Action {
	case viewmodel.ActionScan:
		if m.NetCursor >= len(m.State.WifiList) {
			m.NetCursor = 0
		}
	case viewmodel.ActionFetch:
		if m.DeviceID == "" && out.Settings != nil {
			m.DeviceID = out.Settings.DeviceID
		}
	case viewmodel.ActionApply:
		m.rememberApplied()
	}
	return m
}

// rememberApplied writes the non-secret settings to the registry
func (m ConfigModel) rememberApplied() {
	if m.Registry == nil || m.DeviceID == "" {
		return
	}
	m.Registry.RecordApplied(m.DeviceID, m.State.Fields.Payload())
	m.Registry.UpdateDeviceLastSeen(m.DeviceID, m.Device.BaseURL())
	if err := m.Registry.Save(); err != nil {
		m.logger.Warn("Failed to save registry", zap.Error(err))
	}
}

// checkBroker connects to the broker in the form with the form's credentials
func (m ConfigModel) checkBroker() (tea.Model, tea.Cmd) {
	f := m.fields()
	if m.CheckingBroker || f.MQTTURL == "" {
		return m, nil
	}
	m.CheckingBroker = true
	m.BrokerChecked = false

	cfg := mqttprobe.FromPayload(f.Payload())
	return m, tea.Batch(m.Spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mqttprobe.DefaultConnectTimeout)
		defer cancel()
		return brokerCheckMsg{url: cfg.URL, err: mqttprobe.Ping(ctx, cfg)}
	})
}

// displayedNetworks is the scan result, strongest first
func (m ConfigModel) displayedNetworks() []deviceapi.WifiNetwork {
	networks := deviceapi.SortBySignal(m.State.WifiList)
	if len(networks) > maxListedNetworks {
		networks = networks[:maxListedNetworks]
	}
	return networks
}

// IsBackRequested reports whether the user asked to leave the screen
func (m ConfigModel) IsBackRequested() bool {
	return m.BackRequested
}

// View renders the config screen
func (m ConfigModel) View() string {
	return RenderApplicationContainer(m.buildContent(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m ConfigModel) buildContent() string {
	var b strings.Builder

	b.WriteString(RenderTitle(m.deviceTitle()))
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("WiFi"))
	b.WriteString("\n")
	b.WriteString(m.renderInput(fieldWifiSSID))
	b.WriteString(m.renderInput(fieldWifiPassword))
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("MQTT"))
	b.WriteString("\n")
	b.WriteString(m.renderInput(fieldMQTTURL))
	b.WriteString(m.renderInput(fieldMQTTUsername))
	b.WriteString(m.renderInput(fieldMQTTPassword))
	b.WriteString("\n")

	b.WriteString(m.renderNetworks())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())

	if broker := m.renderBroker(); broker != "" {
		b.WriteString("\n")
		b.WriteString(broker)
	}

	return b.String()
}

func (m ConfigModel) deviceTitle() string {
	id := m.DeviceID
	if id == "" {
		return "Pigeon at " + m.Device.Address()
	}
	if m.Registry != nil {
		if known := m.Registry.GetDevice(id); known != nil && known.Nickname != "" {
			return fmt.Sprintf("%s (Pigeon %s) at %s", known.Nickname, id, m.Device.Address())
		}
	}
	return fmt.Sprintf("Pigeon %s at %s", id, m.Device.Address())
}

func (m ConfigModel) renderInput(i int) string {
	label := fmt.Sprintf("  %-15s", fieldLabels[i])
	if m.Focus == i {
		label = FocusedInputStyle.Render("→ " + fmt.Sprintf("%-15s", fieldLabels[i]))
	} else {
		label = BlurredInputStyle.Render(label)
	}
	return label + " " + m.Inputs[i].View() + "\n"
}

func (m ConfigModel) renderNetworks() string {
	var b strings.Builder

	title := "Networks"
	if m.Focus == focusNetworks {
		title = "→ Networks"
	}
	b.WriteString(SectionStyle.Render(title))
	b.WriteString("\n")

	if m.State.WifiList == nil {
		if m.State.LastAction == viewmodel.ActionScan && m.State.Status == viewmodel.StatusSucceeded {
			b.WriteString(SubtitleStyle.Render("  Device returned no network list"))
		} else {
			b.WriteString(SubtitleStyle.Render("  No scan yet (ctrl+r)"))
		}
		b.WriteString("\n")
		return b.String()
	}

	networks := m.displayedNetworks()
	if len(networks) == 0 {
		b.WriteString(SubtitleStyle.Render("  No networks in range"))
		b.WriteString("\n")
		return b.String()
	}

	for i, n := range networks {
		row := fmt.Sprintf("%s %4d dBm  ch %-2d  %-8s %s",
			deviceapi.FormatSignal(n.SignalBars()), n.RSSI, n.Channel, n.SecurityLabel(), n.DisplayName())
		b.WriteString(RenderMenuItem(row, m.Focus == focusNetworks && i == m.NetCursor))
		b.WriteString("\n")
	}
	if hidden := len(m.State.WifiList) - len(networks); hidden > 0 {
		b.WriteString(SubtitleStyle.Render(fmt.Sprintf("  ... and %d weaker", hidden)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ConfigModel) renderStatus() string {
	s := m.State

	switch s.Status {
	case viewmodel.StatusBusy:
		return m.Spinner.View() + " " + busyText(s.LastAction)

	case viewmodel.StatusFailed:
		text := fmt.Sprintf("%s failed: %s", s.LastAction, deviceapi.GetShortErrorMessage(s.Err))
		var devErr *deviceapi.DeviceError
		if errors.As(s.Err, &devErr) {
			text += "\n\n" + deviceapi.GetTroubleshootingHint(s.Err)
		}
		return RenderError(text)

	case viewmodel.StatusSucceeded:
		switch s.LastAction {
		case viewmodel.ActionApply:
			text := "Settings accepted"
			if s.Applied != nil {
				text = fmt.Sprintf("Settings accepted (HTTP %d)", s.Applied.StatusCode)
			}
			return RenderSuccess(text + "\nThe device reconnects with the new settings after a restart.")
		case viewmodel.ActionFetch:
			if s.Settings != nil {
				return RenderInfo(strings.TrimRight(s.Settings.FormatCompact(), "\n"))
			}
		case viewmodel.ActionScan:
			return SubtitleStyle.Render(fmt.Sprintf("Scan complete, %d networks", len(s.WifiList)))
		}
	}
	return ""
}

func busyText(a viewmodel.Action) string {
	switch a {
	case viewmodel.ActionScan:
		return "Scanning for networks (the device is busy for a few seconds)..."
	case viewmodel.ActionApply:
		return "Sending settings..."
	case viewmodel.ActionFetch:
		return "Reading stored settings..."
	default:
		return "Working..."
	}
}

func (m ConfigModel) renderBroker() string {
	switch {
	case m.CheckingBroker:
		return m.Spinner.View() + " Connecting to broker..."
	case !m.BrokerChecked:
		return ""
	case m.BrokerErr != nil:
		return lipgloss.NewStyle().Foreground(ErrorColor).Render(fmt.Sprintf("✗ Broker %s: %v", m.BrokerURL, m.BrokerErr))
	default:
		return lipgloss.NewStyle().Foreground(SecondaryColor).Render(fmt.Sprintf("✓ Broker %s accepted the credentials", m.BrokerURL))
	}
}
