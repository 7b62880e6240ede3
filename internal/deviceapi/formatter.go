package deviceapi

import (
	"fmt"
	"strings"
)

// Summary returns a one-line summary of the stored settings
func (s *Settings) Summary() string {
	mqtt := s.MQTTURL
	if mqtt == "" {
		mqtt = "(no broker)"
	}
	return fmt.Sprintf("Pigeon %s on %s, broker %s", s.DeviceID, displaySSID(s.WifiSSID), mqtt)
}

// FormatCompact returns a compact multi-line format suitable for terminal display
func (s *Settings) FormatCompact() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Device:  %s\n", s.DeviceID)
	fmt.Fprintf(&b, "WiFi:    %s\n", displaySSID(s.WifiSSID))
	fmt.Fprintf(&b, "Hotspot: %s\n", s.APSSID)
	fmt.Fprintf(&b, "MQTT:    %s\n", orNone(s.MQTTURL))

	return b.String()
}

// FormatDetailed returns every stored setting. Passwords are masked.
func (s *Settings) FormatDetailed() string {
	r := s.Redacted()
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	b.WriteString("║                PIGEON DEVICE SETTINGS                          ║\n")
	b.WriteString("╚════════════════════════════════════════════════════════════════╝\n")
	b.WriteString("\n")

	b.WriteString("=== Device ===\n")
	fmt.Fprintf(&b, "Device ID:     %s\n", r.DeviceID)
	b.WriteString("\n")

	b.WriteString("=== WiFi Station ===\n")
	fmt.Fprintf(&b, "SSID:          %s\n", displaySSID(r.WifiSSID))
	fmt.Fprintf(&b, "Password:      %s\n", orNone(r.WifiPassword))
	b.WriteString("\n")

	b.WriteString("=== Soft-AP ===\n")
	fmt.Fprintf(&b, "SSID:          %s\n", r.APSSID)
	fmt.Fprintf(&b, "Password:      %s\n", orNone(r.APPassword))
	b.WriteString("\n")

	b.WriteString("=== MQTT ===\n")
	fmt.Fprintf(&b, "Broker URL:    %s\n", orNone(r.MQTTURL))
	fmt.Fprintf(&b, "Username:      %s\n", orNone(r.MQTTUsername))
	fmt.Fprintf(&b, "Password:      %s\n", orNone(r.MQTTPassword))

	return b.String()
}

// FormatChanges returns a formatted string showing what an update will write
func (p *SettingsPayload) FormatChanges() string {
	var b strings.Builder

	b.WriteString("=== Settings Update ===\n")
	fmt.Fprintf(&b, "  WiFi SSID:     %s\n", displaySSID(p.WifiSSID))
	if p.WifiPassword == "" {
		b.WriteString("  WiFi Password: (open network)\n")
	} else {
		b.WriteString("  WiFi Password: ********\n")
	}
	fmt.Fprintf(&b, "  MQTT URL:      %s\n", orNone(p.MQTTURL))
	fmt.Fprintf(&b, "  MQTT Username: %s\n", orNone(p.MQTTUsername))
	fmt.Fprintf(&b, "  MQTT Password: %s\n", orNone(mask(p.MQTTPassword)))

	return b.String()
}

// FormatDiff returns the differences between stored settings and an update
func FormatDiff(old *Settings, update SettingsPayload) string {
	var b strings.Builder

	b.WriteString("=== Settings Differences ===\n")
	changed := false
	line := func(name, from, to string) {
		if from != to {
			fmt.Fprintf(&b, "  %-14s %s → %s\n", name+":", from, to)
			changed = true
		}
	}

	line("WiFi SSID", displaySSID(old.WifiSSID), displaySSID(update.WifiSSID))
	if old.WifiPassword != update.WifiPassword {
		b.WriteString("  WiFi Password: (changed)\n")
		changed = true
	}
	line("MQTT URL", orNone(old.MQTTURL), orNone(update.MQTTURL))
	line("MQTT Username", orNone(old.MQTTUsername), orNone(update.MQTTUsername))
	if old.MQTTPassword != update.MQTTPassword {
		b.WriteString("  MQTT Password: (changed)\n")
		changed = true
	}

	if !changed {
		b.WriteString("\n(no differences detected)\n")
	}
	return b.String()
}

// FormatNetworks renders a scan result as a table, strongest first.
// A nil list (no wifi_list in the response) is reported as such.
func FormatNetworks(list *NetworkList) string {
	var b strings.Builder

	if list == nil || list.WifiList == nil {
		b.WriteString("Device returned no network list\n")
		return b.String()
	}

	fmt.Fprintf(&b, "=== WiFi Networks (%d found) ===\n", list.APCount)
	if len(list.WifiList) == 0 {
		b.WriteString("(none)\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-32s  %-17s  %4s  %3s  %-8s  %s\n", "SSID", "BSSID", "RSSI", "CH", "SECURITY", "SIGNAL")
	for _, n := range SortBySignal(list.WifiList) {
		fmt.Fprintf(&b, "%-32s  %-17s  %4d  %3d  %-8s  %s\n",
			n.DisplayName(), n.BSSID, n.RSSI, n.Channel, n.SecurityLabel(), FormatSignal(n.SignalBars()))
	}
	return b.String()
}

// FormatNetworksCompact renders one network per line
func FormatNetworksCompact(list *NetworkList) string {
	if list == nil || list.WifiList == nil {
		return "(no network list)\n"
	}
	var b strings.Builder
	for _, n := range SortBySignal(list.WifiList) {
		fmt.Fprintf(&b, "%s %s %d\n", n.DisplayName(), n.SecurityLabel(), n.RSSI)
	}
	return b.String()
}

// FormatSignal draws a 4-step signal bar
func FormatSignal(bars int) string {
	if bars < 0 {
		bars = 0
	}
	if bars > 4 {
		bars = 4
	}
	return strings.Repeat("▮", bars) + strings.Repeat("▯", 4-bars)
}

// FormatDetailed returns the health flags one per line
func (h *Health) FormatDetailed() string {
	var b strings.Builder

	b.WriteString("=== Device Health ===\n")
	fmt.Fprintf(&b, "WiFi station up:   %s\n", yesNo(h.StationUp))
	fmt.Fprintf(&b, "IP address:        %s\n", yesNo(h.StationIP))
	fmt.Fprintf(&b, "MQTT connected:    %s\n", yesNo(h.MQTTConnected))
	fmt.Fprintf(&b, "MQTT subscribed:   %s\n", yesNo(h.MQTTSubscribed))
	fmt.Fprintf(&b, "Clock synced:      %s\n", yesNo(h.TimeSynced))
	if h.Healthy() {
		b.WriteString("\nStatus: ONLINE\n")
	} else {
		b.WriteString("\nStatus: DEGRADED\n")
	}

	return b.String()
}

// FormatCompact returns the health flags on one line
func (h *Health) FormatCompact() string {
	flag := func(name string, v bool) string {
		if v {
			return name + "+"
		}
		return name + "-"
	}
	return strings.Join([]string{
		flag("wifi", h.StationUp),
		flag("ip", h.StationIP),
		flag("mqtt", h.MQTTConnected),
		flag("sub", h.MQTTSubscribed),
		flag("ntp", h.TimeSynced),
	}, " ") + "\n"
}

func displaySSID(ssid string) string {
	if ssid == "" {
		return "(not configured)"
	}
	return ssid
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
