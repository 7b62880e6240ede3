package config

import (
	"sort"
	"time"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

// Registry represents the entire user configuration file.
// This stores user-defined metadata for devices and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device id
	Preferences *Preferences       `yaml:"preferences,omitempty"`

	path string
}

// Device represents what we remember about a single Pigeon device.
// Passwords are never recorded.
type Device struct {
	Nickname     string    `yaml:"nickname,omitempty"`      // User-friendly name
	LastAddress  string    `yaml:"last_address,omitempty"`  // Last base URL the device answered on
	LastSeen     time.Time `yaml:"last_seen,omitempty"`     // Last successful contact
	WifiSSID     string    `yaml:"wifi_ssid,omitempty"`     // Network last written to the device
	MQTTURL      string    `yaml:"mqtt_url,omitempty"`      // Broker last written to the device
	MQTTUsername string    `yaml:"mqtt_username,omitempty"` // Broker user last written to the device
	LastApplied  time.Time `yaml:"last_applied,omitempty"`  // When settings were last accepted
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultAddress  string `yaml:"default_address"`       // Device address used when none is given
	RequestTimeout  int    `yaml:"request_timeout"`       // HTTP request timeout in seconds
	AutoDiscover    bool   `yaml:"auto_discover"`         // Browse mDNS before falling back to DefaultAddress
	DiscoverTimeout int    `yaml:"discover_timeout"`      // mDNS discovery timeout in seconds
	HostPrefix      string `yaml:"host_prefix,omitempty"` // mDNS hostname prefix of devices
}

// DefaultPreferences returns the preferences of a fresh installation
func DefaultPreferences() *Preferences {
	return &Preferences{
		DefaultAddress:  deviceapi.DefaultAPAddress,
		RequestTimeout:  int(deviceapi.DefaultTimeout / time.Second),
		AutoDiscover:    false,
		DiscoverTimeout: 5,
		HostPrefix:      "pigeon",
	}
}

// RequestTimeoutDuration returns the request timeout, falling back to the default
func (p *Preferences) RequestTimeoutDuration() time.Duration {
	if p == nil || p.RequestTimeout <= 0 {
		return deviceapi.DefaultTimeout
	}
	return time.Duration(p.RequestTimeout) * time.Second
}

// DiscoverTimeoutDuration returns the discovery timeout, falling back to 5s
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves device metadata by id.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(id string) *Device {
	return r.Devices[id]
}

// EnsureDevice returns the entry for id, creating it if needed.
func (r *Registry) EnsureDevice(id string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[id]; exists {
		return device
	}

	device := &Device{}
	r.Devices[id] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and address for a device.
func (r *Registry) UpdateDeviceLastSeen(id, address string) {
	device := r.EnsureDevice(id)
	device.LastSeen = time.Now()
	device.LastAddress = address
}

// RecordApplied remembers the non-secret part of settings accepted by a device.
func (r *Registry) RecordApplied(id string, p deviceapi.SettingsPayload) {
	device := r.EnsureDevice(id)
	device.WifiSSID = p.WifiSSID
	device.MQTTURL = p.MQTTURL
	device.MQTTUsername = p.MQTTUsername
	device.LastApplied = time.Now()
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(id, nickname string) {
	device := r.EnsureDevice(id)
	device.Nickname = nickname
}

// FindByAddress returns the device last seen at address
func (r *Registry) FindByAddress(address string) (string, *Device) {
	for _, id := range r.DeviceIDs() {
		if d := r.Devices[id]; d.LastAddress == address {
			return id, d
		}
	}
	return "", nil
}

// DeviceIDs returns the known device ids in sorted order
func (r *Registry) DeviceIDs() []string {
	ids := make([]string, 0, len(r.Devices))
	for id := range r.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisplayName returns the nickname, or the id when there is none
func (d *Device) DisplayName(id string) string {
	if d != nil && d.Nickname != "" {
		return d.Nickname
	}
	return "Pigeon " + id
}
