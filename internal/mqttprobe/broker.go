package mqttprobe

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

// DefaultConnectTimeout bounds how long a broker connection may take
const DefaultConnectTimeout = 10 * time.Second

// default ports per scheme, as assumed by the device's MQTT client
var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// paho transport scheme for each device scheme
var pahoSchemes = map[string]string{
	"mqtt":  "tcp",
	"mqtts": "ssl",
	"ws":    "ws",
	"wss":   "wss",
}

// BrokerConfig describes how to reach a broker
type BrokerConfig struct {
	// URL uses the device's notation: mqtt://, mqtts://, ws:// or wss://
	URL      string
	Username string
	Password string

	// ClientID defaults to "pigeon-cfg-<pid>"
	ClientID string

	// ConnectTimeout defaults to DefaultConnectTimeout
	ConnectTimeout time.Duration
}

// FromPayload builds a broker config from a settings update
func FromPayload(p deviceapi.SettingsPayload) BrokerConfig {
	return BrokerConfig{
		URL:      p.MQTTURL,
		Username: p.MQTTUsername,
		Password: p.MQTTPassword,
	}
}

// FromSettings builds a broker config from settings read off a device
func FromSettings(s *deviceapi.Settings) BrokerConfig {
	return FromPayload(s.Payload())
}

// BrokerURL converts a device broker URL into the URL paho dials,
// filling in the scheme's default port.
func BrokerURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("no broker URL configured")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	pahoScheme, ok := pahoSchemes[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("broker URL %q has no host", raw)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultPorts[scheme])
	}

	out := &url.URL{Scheme: pahoScheme, Host: host}
	if pahoScheme == "ws" || pahoScheme == "wss" {
		out.Path = u.Path
	}
	return out, nil
}

// HeartbeatTopic is where a device publishes its health after connecting
func HeartbeatTopic(deviceID string) string {
	return fmt.Sprintf("iot/sensors/%s/events/heartbeat", deviceID)
}

// ReadingsTopic matches every sensor reading of a device
func ReadingsTopic(deviceID string) string {
	return fmt.Sprintf("iot/sensors/%s/events/+/reading", deviceID)
}

// DeviceTopicFilter is the filter the device itself subscribes to
func DeviceTopicFilter(deviceID string) string {
	return fmt.Sprintf("iot/sensors/%s/#", deviceID)
}

func (c BrokerConfig) clientOptions() (*mqtt.ClientOptions, error) {
	broker, err := BrokerURL(c.URL)
	if err != nil {
		return nil, err
	}

	clientID := c.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("pigeon-cfg-%d", os.Getpid())
	}
	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker.String())
	opts.SetClientID(clientID)
	opts.SetUsername(c.Username)
	opts.SetPassword(c.Password)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	return opts, nil
}
