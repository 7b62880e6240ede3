package deviceapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	wrap := func(inner error) error {
		return &url.Error{
			Op:  "Get",
			URL: "http://192.168.4.1/settings",
			Err: &net.OpError{Op: "dial", Net: "tcp", Err: inner},
		}
	}

	tests := []struct {
		name        string
		err         error
		wantType    ErrorType
		wantSubtype NetworkErrorSubtype
	}{
		{"timeout", wrap(&timeoutError{}), ErrTypeTimeout, NetworkErrorTimeout},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrTypeTimeout, NetworkErrorTimeout},
		{"refused", wrap(syscall.ECONNREFUSED), ErrTypeConnectionRefused, NetworkErrorConnectionRefused},
		{"host unreachable", wrap(syscall.EHOSTUNREACH), ErrTypeNetwork, NetworkErrorHostUnreachable},
		{"network unreachable", wrap(syscall.ENETUNREACH), ErrTypeNetwork, NetworkErrorNetworkUnreachable},
		{"dns", &url.Error{Op: "Get", URL: "http://pigeon.local", Err: &net.DNSError{Name: "pigeon.local", Err: "no such host"}}, ErrTypeDNS, NetworkErrorDNS},
		{"other", errors.New("boom"), ErrTypeNetwork, NetworkErrorGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devErr := ClassifyNetworkError(tt.err, "192.168.4.1")
			if devErr == nil {
				t.Fatal("Expected DeviceError, got nil")
			}
			if devErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", devErr.Type, tt.wantType)
			}
			if devErr.NetworkSubtype != tt.wantSubtype {
				t.Errorf("NetworkSubtype = %v, want %v", devErr.NetworkSubtype, tt.wantSubtype)
			}
			if devErr.Address != "192.168.4.1" {
				t.Errorf("Address = %q, want 192.168.4.1", devErr.Address)
			}
			if !IsNetworkError(devErr) {
				t.Error("IsNetworkError() = false")
			}
		})
	}

	if ClassifyNetworkError(nil, "x") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestDeviceError_Error(t *testing.T) {
	err := &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    "unexpected status code: 500",
		Method:     "POST",
		Path:       "/settings",
		StatusCode: 500,
		Body:       "Failed to save settings",
	}

	want := "HTTP Error: unexpected status code: 500 (POST /settings): Failed to save settings"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDeviceError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := fmt.Errorf("apply: %w", NewParseError("bad json", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through DeviceError")
	}
	if !IsParseError(err) {
		t.Error("IsParseError should see through fmt wrapping")
	}
	if IsHTTPError(err) || IsValidationError(err) {
		t.Error("parse error misclassified")
	}
}

func TestNewNetworkError_KeepsClassification(t *testing.T) {
	devErr := NewNetworkError("", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})
	if devErr.Type != ErrTypeConnectionRefused {
		t.Errorf("Type = %v, want %v", devErr.Type, ErrTypeConnectionRefused)
	}
	if devErr.Message != "device refused connection" {
		t.Errorf("Message = %q", devErr.Message)
	}

	devErr = NewNetworkError("failed to read body", errors.New("eof"))
	if devErr.Message != "failed to read body" {
		t.Errorf("Message = %q, want override", devErr.Message)
	}
}

func TestStatusCode(t *testing.T) {
	if StatusCode(NewHTTPError(404, "nope")) != 404 {
		t.Error("StatusCode should return 404")
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("StatusCode of a plain error should be 0")
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	withBody := NewHTTPError(500, "unexpected status code: 500")
	withBody.Body = "Failed to scan WiFi networks"

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &DeviceError{Type: ErrTypeTimeout}, "Device not responding (timeout)"},
		{"refused", &DeviceError{Type: ErrTypeConnectionRefused}, "Device refused connection"},
		{"dns", &DeviceError{Type: ErrTypeDNS}, "Cannot resolve device hostname"},
		{"unreachable", &DeviceError{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorHostUnreachable}, "Device unreachable - check network connection"},
		{"http body", withBody, "Device error (HTTP 500): Failed to scan WiFi networks"},
		{"http 404", NewHTTPError(404, ""), "Device does not support this request (HTTP 404)"},
		{"validation", NewValidationError("WiFi SSID cannot be empty"), "WiFi SSID cannot be empty"},
		{"plain", errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetShortErrorMessage(tt.err); got != tt.want {
				t.Errorf("GetShortErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		contain string
	}{
		{"timeout", &DeviceError{Type: ErrTypeTimeout}, "--timeout"},
		{"network unreachable", &DeviceError{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorNetworkUnreachable}, DefaultAPSSID},
		{"dns", &DeviceError{Type: ErrTypeDNS}, DefaultAPAddress},
		{"server error", &DeviceError{Type: ErrTypeHTTP, StatusCode: 500, Body: "nvs full"}, "Device said: nvs full"},
		{"parse", &DeviceError{Type: ErrTypeParse}, "PIGEON_LOG_LEVEL"},
		{"plain", errors.New("x"), "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := GetTroubleshootingHint(tt.err)
			if !strings.Contains(hint, tt.contain) {
				t.Errorf("hint %q should contain %q", hint, tt.contain)
			}
		})
	}
}
