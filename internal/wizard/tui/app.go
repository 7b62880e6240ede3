package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dovecote/pigeon/internal/config"
	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/discovery"
	"github.com/dovecote/pigeon/internal/viewmodel"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenConfig    Screen = "config"
)

// Options configures the wizard
type Options struct {
	// Device skips discovery when set
	Device *discovery.Device

	// Registry remembers devices; nil disables it
	Registry *config.Registry

	// RequestTimeout bounds each device call
	RequestTimeout time.Duration

	// ScanTimeout bounds mDNS discovery
	ScanTimeout time.Duration

	// HostPrefix selects devices by mDNS hostname
	HostPrefix string

	// NewDevice builds the device API for a selected device. Defaults to an
	// HTTP client.
	NewDevice func(*discovery.Device) viewmodel.Device
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	ConfigModel    ConfigModel

	SelectedDevice *discovery.Device
	opts           Options

	Width  int
	Height int
}

// NewAppModel creates the wizard. It starts on the config screen when a
// device is given and on discovery otherwise.
func NewAppModel(opts Options) AppModel {
	if opts.NewDevice == nil {
		timeout := opts.RequestTimeout
		opts.NewDevice = func(d *discovery.Device) viewmodel.Device {
			client := deviceapi.NewClientWithURL(d.BaseURL())
			if timeout > 0 {
				client.SetTimeout(timeout)
			}
			return client
		}
	}

	m := AppModel{opts: opts, SelectedDevice: opts.Device}
	if opts.Device != nil {
		m.CurrentScreen = ScreenConfig
		m.ConfigModel = m.newConfigModel(opts.Device)
	} else {
		m.CurrentScreen = ScreenDiscovery
		m.DiscoveryModel = NewDiscoveryModel(opts.ScanTimeout, opts.HostPrefix)
	}
	return m
}

func (m AppModel) newConfigModel(device *discovery.Device) ConfigModel {
	return NewConfigModel(device, m.opts.NewDevice(device), m.opts.Registry, m.opts.RequestTimeout)
}

// Init initializes the current screen
func (m AppModel) Init() tea.Cmd {
	switch m.CurrentScreen {
	case ScreenConfig:
		return m.ConfigModel.Init()
	default:
		return m.DiscoveryModel.Init()
	}
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		updated, _ := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = updated.(DiscoveryModel)
		m.ConfigModel.Width = msg.Width
		m.ConfigModel.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.CurrentScreen == ScreenDiscovery && m.discoveryAcceptsQuit() {
			if msg.String() == "q" || msg.String() == "esc" {
				return m, tea.Quit
			}
		}
	}

	return m.updateCurrentScreen(msg)
}

// discoveryAcceptsQuit is false while the user is typing
func (m AppModel) discoveryAcceptsQuit() bool {
	return !m.DiscoveryModel.ManualMode && m.DiscoveryModel.DeviceList.FilterState() != list.Filtering
}

func (m AppModel) updateCurrentScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		updated, cmd := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = updated.(DiscoveryModel)

		if device := m.DiscoveryModel.GetSelectedDevice(); device != nil {
			return m.transitionTo(ScreenConfig, device)
		}
		return m, cmd

	case ScreenConfig:
		updated, cmd := m.ConfigModel.Update(msg)
		m.ConfigModel = updated.(ConfigModel)

		if m.ConfigModel.IsBackRequested() {
			return m.transitionTo(ScreenDiscovery, nil)
		}
		return m, cmd
	}

	return m, nil
}

// transitionTo switches screens, building the target screen fresh
func (m AppModel) transitionTo(screen Screen, device *discovery.Device) (tea.Model, tea.Cmd) {
	m.CurrentScreen = screen

	switch screen {
	case ScreenConfig:
		m.SelectedDevice = device
		m.ConfigModel = m.newConfigModel(device)
		m.ConfigModel.Width = m.Width
		m.ConfigModel.Height = m.Height
		return m, m.ConfigModel.Init()

	default:
		m.SelectedDevice = nil
		m.DiscoveryModel = NewDiscoveryModel(m.opts.ScanTimeout, m.opts.HostPrefix)
		updated, _ := m.DiscoveryModel.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height})
		m.DiscoveryModel = updated.(DiscoveryModel)
		return m, m.DiscoveryModel.Init()
	}
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenConfig:
		return m.ConfigModel.View()
	default:
		return m.DiscoveryModel.View()
	}
}

// Run starts the wizard in the alternate screen and blocks until it exits
func Run(opts Options) error {
	program := tea.NewProgram(NewAppModel(opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
