package deviceapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultAPSSID is the soft-AP network a device opens when it has no stored settings
	DefaultAPSSID = "pigeon_esp"

	// DefaultAPPassword is the soft-AP password of a factory-fresh device
	DefaultAPPassword = "dovecote"

	// DefaultAPAddress is the device address on its own soft-AP network
	DefaultAPAddress = "192.168.4.1"

	// DefaultDeviceID is the device id reported by a factory-fresh device
	DefaultDeviceID = "1"
)

// API paths served by the device.
const (
	PathWifiNetworks = "/wifi/networks"
	PathSettings     = "/settings"
	PathHealth       = "/health"
)

// Flag is a boolean the device may encode either as a JSON bool or as the
// strings "true"/"false".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = false
			return nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid flag value %q", s)
		}
		*f = Flag(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Flag(v)
	return nil
}

// CountryRestrictions mirrors the country information the device reports per access point
type CountryRestrictions struct {
	CountryCode  string `json:"country_code"`
	StartChannel int    `json:"start_channel"`
	NumChannels  int    `json:"num_of_channel"`
	MaxTxPower   int    `json:"max_tx_pwr"`
	Policy       string `json:"policy"` // "AUTO" or "MANUAL"
}

// WifiNetwork is one access point seen by the device's WiFi scan.
// The shape is owned by the firmware; unknown keys are ignored.
type WifiNetwork struct {
	SSID           string `json:"ssid"`
	BSSID          string `json:"bssid"`
	RSSI           int    `json:"rssi"`
	Channel        int    `json:"channel"`
	AuthMode       string `json:"authmode"`        // e.g. "WIFI_AUTH_WPA2_PSK"
	HTMode         string `json:"ht_mode"`         // "HT20", "HT40+", "HT40-"
	PairwiseCipher string `json:"pairwise_cipher"` // e.g. "WIFI_CIPHER_TYPE_CCMP"
	GroupCipher    string `json:"group_cipher"`

	PHY11b Flag `json:"11b"`
	PHY11g Flag `json:"11g"`
	PHY11n Flag `json:"11n"`
	LR     Flag `json:"lr"`
	WPS    Flag `json:"wps"`

	Country *CountryRestrictions `json:"country_restrictions,omitempty"`
}

// NetworkList is the body of GET /wifi/networks.
// WifiList is nil when the device omits the key.
type NetworkList struct {
	APCount  int           `json:"ap_count"`
	WifiList []WifiNetwork `json:"wifi_list"`
}

// Settings is the body of GET /settings
type Settings struct {
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`
	APSSID       string `json:"ap_ssid"`
	APPassword   string `json:"ap_password"`
	MQTTURL      string `json:"mqtt_url"`
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"mqtt_password"`
	DeviceID     string `json:"device_id"`
}

// SettingsPayload is the body of POST /settings: exactly the five fields a
// user edits, sent verbatim.
type SettingsPayload struct {
	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`
	MQTTURL      string `json:"mqtt_url"`
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"mqtt_password"`
}

// ApplyResult describes how the device acknowledged a settings update.
// The firmware answers 202 Accepted with an empty body.
type ApplyResult struct {
	StatusCode int
	Body       json.RawMessage // raw response body, nil when empty
}

// Accepted reports whether the device acknowledged the update
func (r *ApplyResult) Accepted() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Health is the body of GET /health, also published as the MQTT heartbeat
type Health struct {
	StationUp      bool `json:"station_up"`
	StationIP      bool `json:"station_ip"`
	MQTTConnected  bool `json:"mqtt_connected"`
	MQTTSubscribed bool `json:"mqtt_subscribed"`
	TimeSynced     bool `json:"time_synced"`
}

// Healthy reports whether the device is fully online: joined the network,
// got an address and reached its broker.
func (h *Health) Healthy() bool {
	return h.StationUp && h.StationIP && h.MQTTConnected
}

// IsOpen reports whether the network requires no password
func (n WifiNetwork) IsOpen() bool {
	return n.AuthMode == "WIFI_AUTH_OPEN"
}

// SecurityLabel returns a short label for the authentication mode
func (n WifiNetwork) SecurityLabel() string {
	switch n.AuthMode {
	case "WIFI_AUTH_OPEN":
		return "open"
	case "WIFI_AUTH_WEP":
		return "WEP"
	case "WIFI_AUTH_WPA_PSK":
		return "WPA"
	case "WIFI_AUTH_WPA2_PSK":
		return "WPA2"
	case "WIFI_AUTH_WPA_WPA2_PSK":
		return "WPA/WPA2"
	case "":
		return "?"
	default:
		return strings.TrimPrefix(n.AuthMode, "WIFI_AUTH_")
	}
}

// SignalBars converts RSSI to a 0-4 bar scale
func (n WifiNetwork) SignalBars() int {
	switch {
	case n.RSSI >= -55:
		return 4
	case n.RSSI >= -67:
		return 3
	case n.RSSI >= -75:
		return 2
	case n.RSSI >= -85:
		return 1
	default:
		return 0
	}
}

// DisplayName returns the SSID, or a placeholder for hidden networks
func (n WifiNetwork) DisplayName() string {
	if n.SSID == "" {
		return "(hidden " + n.BSSID + ")"
	}
	return n.SSID
}

// SortBySignal returns a copy of networks ordered strongest first.
// Ties keep the device's order.
func SortBySignal(networks []WifiNetwork) []WifiNetwork {
	if networks == nil {
		return nil
	}
	sorted := make([]WifiNetwork, len(networks))
	copy(sorted, networks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RSSI > sorted[j].RSSI
	})
	return sorted
}

// UniqueSSIDs returns the visible SSIDs without duplicates, keeping the
// strongest entry for each name.
func UniqueSSIDs(networks []WifiNetwork) []WifiNetwork {
	seen := make(map[string]bool)
	var out []WifiNetwork
	for _, n := range SortBySignal(networks) {
		if n.SSID == "" || seen[n.SSID] {
			continue
		}
		seen[n.SSID] = true
		out = append(out, n)
	}
	return out
}

// Payload builds the update body carrying the device's current values
func (s *Settings) Payload() SettingsPayload {
	return SettingsPayload{
		WifiSSID:     s.WifiSSID,
		WifiPassword: s.WifiPassword,
		MQTTURL:      s.MQTTURL,
		MQTTUsername: s.MQTTUsername,
		MQTTPassword: s.MQTTPassword,
	}
}

// Redacted returns a copy with every password masked
func (s Settings) Redacted() Settings {
	s.WifiPassword = mask(s.WifiPassword)
	s.APPassword = mask(s.APPassword)
	s.MQTTPassword = mask(s.MQTTPassword)
	return s
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// decodeJSON unmarshals a device body, treating an empty body as an empty object
func decodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
