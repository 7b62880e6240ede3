package deviceapi

import (
	"fmt"
	"net/url"
	"strings"
)

// Storage limits of the device, in bytes. Each field is stored in a
// NUL-terminated buffer one byte larger.
const (
	MaxWifiSSIDLen     = 31
	MaxWifiPasswordLen = 63
	MinWPAPasswordLen  = 8
	MaxMQTTURLLen      = 255
	MaxMQTTUsernameLen = 31
	MaxMQTTPasswordLen = 31
)

// mqttSchemes lists the broker URL schemes the device's MQTT client accepts
var mqttSchemes = map[string]bool{
	"mqtt":  true,
	"mqtts": true,
	"ws":    true,
	"wss":   true,
}

// ValidateWifiSSID validates a WiFi SSID.
// SSIDs must be non-empty and fit the device buffer.
func ValidateWifiSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("WiFi SSID cannot be empty")
	}
	if len(ssid) > MaxWifiSSIDLen {
		return NewValidationError(fmt.Sprintf("WiFi SSID too long (max %d bytes): %d bytes", MaxWifiSSIDLen, len(ssid)))
	}
	return nil
}

// ValidateWifiPassword validates a WiFi password.
// An empty password selects an open network; otherwise WPA2 rules apply.
func ValidateWifiPassword(password string) error {
	if password == "" {
		return nil
	}
	if len(password) < MinWPAPasswordLen {
		return NewValidationError(fmt.Sprintf("WPA2 password too short (min %d chars): %d chars", MinWPAPasswordLen, len(password)))
	}
	if len(password) > MaxWifiPasswordLen {
		return NewValidationError(fmt.Sprintf("WPA2 password too long (max %d chars): %d chars", MaxWifiPasswordLen, len(password)))
	}
	return nil
}

// ValidateMQTTURL validates a broker URL. Empty disables MQTT.
func ValidateMQTTURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxMQTTURLLen {
		return NewValidationError(fmt.Sprintf("MQTT URL too long (max %d bytes): %d bytes", MaxMQTTURLLen, len(raw)))
	}
	if strings.ContainsAny(raw, " \t\n\r") {
		return NewValidationError("MQTT URL contains whitespace")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError(fmt.Sprintf("MQTT URL is not a valid URL: %v", err))
	}
	if !mqttSchemes[strings.ToLower(u.Scheme)] {
		return NewValidationError(fmt.Sprintf("MQTT URL scheme must be mqtt, mqtts, ws or wss, got '%s'", u.Scheme))
	}
	if u.Hostname() == "" {
		return NewValidationError("MQTT URL has no host")
	}
	return nil
}

// ValidateMQTTCredentials validates the broker username and password lengths
func ValidateMQTTCredentials(username, password string) []error {
	var errs []error
	if len(username) > MaxMQTTUsernameLen {
		errs = append(errs, NewValidationError(fmt.Sprintf("MQTT username too long (max %d bytes): %d bytes", MaxMQTTUsernameLen, len(username))))
	}
	if len(password) > MaxMQTTPasswordLen {
		errs = append(errs, NewValidationError(fmt.Sprintf("MQTT password too long (max %d bytes): %d bytes", MaxMQTTPasswordLen, len(password))))
	}
	if password != "" && username == "" {
		errs = append(errs, NewValidationError("warning: MQTT password set without a username"))
	}
	return errs
}

// ValidateSettingsPayload validates a complete settings update.
// Returns a slice of validation errors (empty if valid).
func ValidateSettingsPayload(p *SettingsPayload) []error {
	var errs []error

	if err := ValidateWifiSSID(p.WifiSSID); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateWifiPassword(p.WifiPassword); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateMQTTURL(p.MQTTURL); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, ValidateMQTTCredentials(p.MQTTUsername, p.MQTTPassword)...)

	if p.MQTTURL == "" && (p.MQTTUsername != "" || p.MQTTPassword != "") {
		errs = append(errs, NewValidationError("warning: MQTT credentials given without a broker URL"))
	}

	return errs
}

// FormatValidationErrors formats a slice of validation errors into a user-friendly message.
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return "No validation errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Settings validation failed with %d error(s):\n", len(errs))
	for i, err := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// IsWarning checks if a validation error is a warning (non-fatal).
// Warnings have messages starting with "warning:".
func IsWarning(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return strings.HasPrefix(devErr.Message, "warning:")
	}
	return strings.Contains(err.Error(), "warning:")
}

// SeparateWarningsAndErrors splits validation results into warnings and
// errors that must block the update.
func SeparateWarningsAndErrors(errs []error) (warnings []error, critical []error) {
	for _, err := range errs {
		if IsWarning(err) {
			warnings = append(warnings, err)
		} else {
			critical = append(critical, err)
		}
	}
	return warnings, critical
}
