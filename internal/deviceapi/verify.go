package deviceapi

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// VerificationOptions configures ApplyAndVerify
type VerificationOptions struct {
	// InitialDelay is how long to wait before reading the settings back.
	// The device stores the update before answering, so a short pause is enough.
	// Default: 500ms
	InitialDelay time.Duration
}

// DefaultVerificationOptions returns the defaults for verification
func DefaultVerificationOptions() *VerificationOptions {
	return &VerificationOptions{
		InitialDelay: 500 * time.Millisecond,
	}
}

// VerificationResult contains the results of a settings verification
type VerificationResult struct {
	// Success indicates whether the read-back matched the update
	Success bool

	// Apply is the device's acknowledgement of the update
	Apply *ApplyResult

	// Actual is the settings read back from the device
	Actual *Settings

	// Mismatches lists every field that differs from the update
	Mismatches []string

	// Error is any error that occurred
	Error error
}

// ApplyAndVerify posts the update and reads the settings back once to check
// that all five fields were stored. Failed requests are not retried.
func (c *Client) ApplyAndVerify(ctx context.Context, payload SettingsPayload, opts *VerificationOptions) *VerificationResult {
	if opts == nil {
		opts = DefaultVerificationOptions()
	}

	result := &VerificationResult{}

	applied, err := c.ApplySettings(ctx, payload)
	if err != nil {
		result.Error = fmt.Errorf("update failed: %w", err)
		return result
	}
	result.Apply = applied

	if opts.InitialDelay > 0 {
		timer := time.NewTimer(opts.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Error = fmt.Errorf("verification cancelled: %w", ctx.Err())
			return result
		case <-timer.C:
		}
	}

	actual, err := c.FetchSettings(ctx)
	if err != nil {
		result.Error = fmt.Errorf("failed to read settings back: %w", err)
		return result
	}
	result.Actual = actual

	result.Mismatches = CompareSettings(payload, actual)
	if len(result.Mismatches) > 0 {
		result.Error = fmt.Errorf("verification failed: %s", formatMismatches(result.Mismatches))
		return result
	}

	result.Success = true
	return result
}

// CompareSettings compares an update with settings read from the device.
// Passwords are compared but never printed.
func CompareSettings(expected SettingsPayload, actual *Settings) []string {
	var mismatches []string

	if actual.WifiSSID != expected.WifiSSID {
		mismatches = append(mismatches, fmt.Sprintf("wifi_ssid: expected %q, got %q", expected.WifiSSID, actual.WifiSSID))
	}
	if actual.WifiPassword != expected.WifiPassword {
		mismatches = append(mismatches, "wifi_password: stored value differs")
	}
	if actual.MQTTURL != expected.MQTTURL {
		mismatches = append(mismatches, fmt.Sprintf("mqtt_url: expected %q, got %q", expected.MQTTURL, actual.MQTTURL))
	}
	if actual.MQTTUsername != expected.MQTTUsername {
		mismatches = append(mismatches, fmt.Sprintf("mqtt_username: expected %q, got %q", expected.MQTTUsername, actual.MQTTUsername))
	}
	if actual.MQTTPassword != expected.MQTTPassword {
		mismatches = append(mismatches, "mqtt_password: stored value differs")
	}

	return mismatches
}

func formatMismatches(mismatches []string) string {
	switch len(mismatches) {
	case 0:
		return "none"
	case 1:
		return mismatches[0]
	}
	return fmt.Sprintf("%d mismatches: %s", len(mismatches), strings.Join(mismatches, "; "))
}
