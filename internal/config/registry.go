package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName        = "pigeon"
	configFile     = "config.yaml"
	currentVersion = 1

	// ConfigPathEnvVar points pigeon-cfg at another registry file
	ConfigPathEnvVar = "PIGEON_CONFIG"
)

// saveMu serialises writers within the process; the rename makes each
// write atomic for readers.
var saveMu sync.Mutex

// GetConfigDir returns the directory holding the registry:
//   - Unix and macOS: $XDG_CONFIG_HOME/pigeon, else $HOME/.config/pigeon
//   - Windows: %AppData%\pigeon
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine config directory: %w", err)
		}
		return filepath.Join(dir, appName), nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the registry file path. PIGEON_CONFIG wins over the
// config directory.
func GetConfigPath() (string, error) {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry reads the registry from GetConfigPath
func LoadRegistry() (*Registry, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads a registry file. A missing file yields a default registry
// that saves to path.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		registry := NewRegistry()
		registry.path = path
		return registry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	registry := &Registry{}
	if err := yaml.Unmarshal(data, registry); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if registry.Version != currentVersion {
		return nil, fmt.Errorf("unsupported config version %d in %s (expected %d)", registry.Version, path, currentVersion)
	}

	if registry.Devices == nil {
		registry.Devices = make(map[string]*Device)
	}
	if registry.Preferences == nil {
		registry.Preferences = DefaultPreferences()
	}
	registry.path = path
	return registry, nil
}

// Path is the file the registry was loaded from, or "" for one built in memory
func (r *Registry) Path() string {
	return r.path
}

// Save writes the registry back to the file it came from, or to
// GetConfigPath when it was built in memory.
func (r *Registry) Save() error {
	path := r.path
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}
	return r.SaveTo(path)
}

// SaveTo writes the registry to path through a temp file in the same
// directory, so a crash never leaves a half-written registry.
func (r *Registry) SaveTo(path string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+configFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary config file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeRegistryFile(tmp, path, body); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	r.path = path
	return nil
}

// writeRegistryFile writes the header and body to f and closes it
func writeRegistryFile(f *os.File, path string, body []byte) error {
	if _, err := fmt.Fprintf(f, fileHeader, path); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

const fileHeader = `# Pigeon configuration file
# This file stores what pigeon-cfg remembers about your devices.
#
# Security Note: WiFi and MQTT passwords are NEVER stored in this file.
# They are always prompted when needed.
#
# Location: %s

`
