package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

// Device represents a discovered Pigeon device on the network
type Device struct {
	// ID is the device id guessed from the hostname (e.g. "7" for
	// "pigeon-7.local"); empty when the hostname carries none
	ID string `json:"id,omitempty"`

	// Hostname is the mDNS hostname (e.g., "pigeon-7.local.")
	Hostname string `json:"hostname"`

	// IP is the IPv4 address (e.g., "192.168.1.40")
	IP string `json:"ip"`

	// Port is the HTTP port (typically 80)
	Port int `json:"port"`

	// Metadata contains additional mDNS TXT record data
	Metadata map[string]string `json:"metadata,omitempty"`

	// SoftAP is set for the fallback entry describing the device's own hotspot
	SoftAP bool `json:"soft_ap,omitempty"`

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SoftAPDevice returns the address a device answers on while it runs its
// own hotspot. Use it when mDNS finds nothing.
func SoftAPDevice() *Device {
	return &Device{
		Hostname:     deviceapi.DefaultAPSSID,
		IP:           deviceapi.DefaultAPAddress,
		Port:         deviceapi.DefaultPort,
		SoftAP:       true,
		DiscoveredAt: time.Now(),
	}
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	if d.SoftAP {
		return fmt.Sprintf("Pigeon hotspot %s at %s:%d", d.Hostname, d.IP, d.Port)
	}
	if d.ID != "" {
		return fmt.Sprintf("Pigeon %s (%s) at %s:%d", d.ID, d.Hostname, d.IP, d.Port)
	}
	return fmt.Sprintf("Pigeon (%s) at %s:%d", d.Hostname, d.IP, d.Port)
}

// Address returns host:port
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return "http://" + d.Address()
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// Broker is an MQTT broker advertised over mDNS
type Broker struct {
	Instance string `json:"instance"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
}

// URL returns the broker URL in the notation device settings use
func (b *Broker) URL() string {
	return "mqtt://" + net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// ParseAddress builds a device from a user-supplied address: "host",
// "host:port" or "http://host[:port]". port is used when the address has
// none; zero means DefaultPort.
func ParseAddress(value string, port int) (*Device, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("enter an IP address or hostname")
	}

	u, err := url.Parse(deviceapi.BaseURL(value, port))
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid address %q", value)
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid port in %q", value)
	}

	host := u.Hostname()
	return &Device{
		Hostname:     host,
		IP:           host,
		Port:         p,
		SoftAP:       host == deviceapi.DefaultAPAddress,
		DiscoveredAt: time.Now(),
	}, nil
}
