package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if filepath.Base(configDir) != "pigeon" {
		t.Errorf("GetConfigDir() = %v, should end in 'pigeon'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	default:
		if configDir != filepath.Join("/tmp/xdg-test", "pigeon") {
			t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME/pigeon", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}

	prefs := reg.Preferences
	if prefs == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if prefs.DefaultAddress != "192.168.4.1" {
		t.Errorf("DefaultAddress = %q, want 192.168.4.1", prefs.DefaultAddress)
	}
	if prefs.AutoDiscover {
		t.Error("AutoDiscover should be false by default")
	}
	if prefs.RequestTimeoutDuration() != deviceapi.DefaultTimeout {
		t.Errorf("RequestTimeoutDuration() = %v, want %v", prefs.RequestTimeoutDuration(), deviceapi.DefaultTimeout)
	}
	if prefs.HostPrefix != "pigeon" {
		t.Errorf("HostPrefix = %q, want pigeon", prefs.HostPrefix)
	}
}

func TestPreferences_Durations(t *testing.T) {
	var nilPrefs *Preferences
	if nilPrefs.RequestTimeoutDuration() != deviceapi.DefaultTimeout {
		t.Error("nil preferences should give the default request timeout")
	}
	if nilPrefs.DiscoverTimeoutDuration() != 5*time.Second {
		t.Error("nil preferences should give a 5s discovery timeout")
	}

	p := &Preferences{RequestTimeout: 30, DiscoverTimeout: 2}
	if p.RequestTimeoutDuration() != 30*time.Second || p.DiscoverTimeoutDuration() != 2*time.Second {
		t.Errorf("durations = %v / %v", p.RequestTimeoutDuration(), p.DiscoverTimeoutDuration())
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("7")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}
	if device2 := reg.EnsureDevice("7"); device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same id")
	}
	if device3 := reg.EnsureDevice("8"); device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different id")
	}

	if got := reg.DeviceIDs(); strings.Join(got, ",") != "7,8" {
		t.Errorf("DeviceIDs() = %v, want [7 8]", got)
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen("7", "http://192.168.1.40:80")
	after := time.Now()

	device := reg.GetDevice("7")
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}
	if device.LastAddress != "http://192.168.1.40:80" {
		t.Errorf("LastAddress = %v", device.LastAddress)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}

	id, found := reg.FindByAddress("http://192.168.1.40:80")
	if id != "7" || found != device {
		t.Errorf("FindByAddress() = %q, %v", id, found)
	}
	if id, _ := reg.FindByAddress("http://elsewhere"); id != "" {
		t.Errorf("FindByAddress(unknown) = %q, want empty", id)
	}
}

func TestRegistryRecordApplied(t *testing.T) {
	reg := NewRegistry()
	reg.RecordApplied("7", deviceapi.SettingsPayload{
		WifiSSID:     "attic",
		WifiPassword: "hunter22",
		MQTTURL:      "mqtt://broker.lan",
		MQTTUsername: "pigeon",
		MQTTPassword: "coo",
	})

	device := reg.GetDevice("7")
	if device.WifiSSID != "attic" || device.MQTTURL != "mqtt://broker.lan" || device.MQTTUsername != "pigeon" {
		t.Errorf("device = %+v", device)
	}
	if device.LastApplied.IsZero() {
		t.Error("LastApplied should be set")
	}
}

func TestDevice_DisplayName(t *testing.T) {
	if got := (&Device{Nickname: "Garden"}).DisplayName("7"); got != "Garden" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := (*Device)(nil).DisplayName("7"); got != "Pigeon 7" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.SetDeviceNickname("7", "Garden feeder")
	reg.RecordApplied("7", deviceapi.SettingsPayload{WifiSSID: "attic", WifiPassword: "hunter22", MQTTPassword: "coo"})
	reg.Preferences.RequestTimeout = 30

	if err := reg.SaveTo(configPath); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, secret := range []string{"hunter22", "coo"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("saved file contains password %q", secret)
		}
	}
	if !strings.HasPrefix(string(data), "# Pigeon configuration file") {
		t.Error("saved file should start with the header comment")
	}
	if _, err := os.Stat(configPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone after save")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	device := loaded.GetDevice("7")
	if device == nil || device.Nickname != "Garden feeder" || device.WifiSSID != "attic" {
		t.Errorf("loaded device = %+v", device)
	}
	if loaded.Preferences.RequestTimeout != 30 {
		t.Errorf("RequestTimeout = %d, want 30", loaded.Preferences.RequestTimeout)
	}
}

func TestLoadFrom_Missing(t *testing.T) {
	reg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if reg.Version != 1 || reg.Preferences == nil {
		t.Errorf("missing file should give defaults, got %+v", reg)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "version: [1"},
		{"wrong version", "version: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("LoadFrom() should fail")
			}
		})
	}
}

func TestLoadFrom_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if reg.Devices == nil || reg.Preferences == nil {
		t.Errorf("LoadFrom() should fill defaults, got %+v", reg)
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("7")
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "elsewhere.yaml")
	t.Setenv(ConfigPathEnvVar, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}
}

func TestRegistrySave_WritesBackToLoadedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yaml")
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	reg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	reg.SetDeviceNickname("7", "Garden feeder")
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if reg.Path() != path {
		t.Errorf("Path() = %q, want %q", reg.Path(), path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(filepath.Join(dir, "xdg")); !os.IsNotExist(err) {
		t.Error("Save() should not write to the default location")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the registry", len(entries))
	}
}
