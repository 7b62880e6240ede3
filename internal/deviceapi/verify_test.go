package deviceapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// settingsDevice is an in-memory device that stores what it is sent
type settingsDevice struct {
	mu       sync.Mutex
	stored   Settings
	drop     bool // accept updates without storing them
	posts    int
	gets     int
	failPost bool
}

func (d *settingsDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		d.posts++
		if d.failPost {
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
		var p SettingsPayload
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &p); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if !d.drop {
			d.stored.WifiSSID = p.WifiSSID
			d.stored.WifiPassword = p.WifiPassword
			d.stored.MQTTURL = p.MQTTURL
			d.stored.MQTTUsername = p.MQTTUsername
			d.stored.MQTTPassword = p.MQTTPassword
		}
		w.WriteHeader(http.StatusAccepted)
	case http.MethodGet:
		d.gets++
		json.NewEncoder(w).Encode(d.stored)
	}
}

var verifyPayload = SettingsPayload{
	WifiSSID:     "attic",
	WifiPassword: "hunter22",
	MQTTURL:      "mqtt://broker.lan",
	MQTTUsername: "pigeon",
	MQTTPassword: "coo",
}

func TestApplyAndVerify_Success(t *testing.T) {
	device := &settingsDevice{stored: Settings{DeviceID: "7"}}
	server := httptest.NewServer(device)
	defer server.Close()

	client := NewClientWithURL(server.URL)
	result := client.ApplyAndVerify(context.Background(), verifyPayload, &VerificationOptions{InitialDelay: time.Millisecond})

	if !result.Success {
		t.Fatalf("ApplyAndVerify() failed: %v", result.Error)
	}
	if !result.Apply.Accepted() {
		t.Errorf("Apply = %+v, want accepted", result.Apply)
	}
	if result.Actual.DeviceID != "7" {
		t.Errorf("Actual.DeviceID = %q, want 7", result.Actual.DeviceID)
	}
	if device.posts != 1 || device.gets != 1 {
		t.Errorf("posts=%d gets=%d, want 1 and 1", device.posts, device.gets)
	}
}

func TestApplyAndVerify_Mismatch(t *testing.T) {
	device := &settingsDevice{drop: true, stored: Settings{WifiSSID: "old"}}
	server := httptest.NewServer(device)
	defer server.Close()

	result := NewClientWithURL(server.URL).ApplyAndVerify(context.Background(), verifyPayload, &VerificationOptions{})

	if result.Success {
		t.Fatal("ApplyAndVerify() should report a mismatch")
	}
	if len(result.Mismatches) != 5 {
		t.Errorf("Mismatches = %v, want 5 entries", result.Mismatches)
	}
	for _, m := range result.Mismatches {
		if strings.Contains(m, "hunter22") || strings.Contains(m, `"coo"`) {
			t.Errorf("mismatch leaks a password: %s", m)
		}
	}
	if device.gets != 1 {
		t.Errorf("gets = %d, want a single read-back", device.gets)
	}
}

func TestApplyAndVerify_PostFails(t *testing.T) {
	device := &settingsDevice{failPost: true}
	server := httptest.NewServer(device)
	defer server.Close()

	result := NewClientWithURL(server.URL).ApplyAndVerify(context.Background(), verifyPayload, &VerificationOptions{})

	if result.Success {
		t.Fatal("ApplyAndVerify() should fail")
	}
	if !IsHTTPError(result.Error) {
		t.Errorf("Error = %v, want HTTP error", result.Error)
	}
	if device.posts != 1 || device.gets != 0 {
		t.Errorf("posts=%d gets=%d, want 1 and 0", device.posts, device.gets)
	}
}

func TestApplyAndVerify_Cancelled(t *testing.T) {
	device := &settingsDevice{}
	server := httptest.NewServer(device)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClientWithURL(server.URL)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result := client.ApplyAndVerify(ctx, verifyPayload, &VerificationOptions{InitialDelay: time.Minute})

	if result.Success || result.Error == nil {
		t.Fatal("ApplyAndVerify() should stop when the context is cancelled")
	}
	if device.gets != 0 {
		t.Errorf("gets = %d, want 0", device.gets)
	}
}

func TestCompareSettings(t *testing.T) {
	actual := &Settings{WifiSSID: "attic", WifiPassword: "hunter22", MQTTURL: "mqtt://broker.lan", MQTTUsername: "pigeon", MQTTPassword: "coo"}
	if m := CompareSettings(verifyPayload, actual); len(m) != 0 {
		t.Errorf("CompareSettings() = %v, want none", m)
	}

	actual.MQTTURL = "mqtt://other"
	m := CompareSettings(verifyPayload, actual)
	if len(m) != 1 || !strings.HasPrefix(m[0], "mqtt_url:") {
		t.Errorf("CompareSettings() = %v, want one mqtt_url mismatch", m)
	}
}

func TestFormatMismatches(t *testing.T) {
	if got := formatMismatches(nil); got != "none" {
		t.Errorf("formatMismatches(nil) = %q", got)
	}
	if got := formatMismatches([]string{"a", "b"}); got != "2 mismatches: a; b" {
		t.Errorf("formatMismatches() = %q", got)
	}
}
