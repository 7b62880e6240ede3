// Package config provides user configuration management for pigeon-cfg.
//
// This package manages a YAML file that remembers devices by their id
// (nickname, last address, the network and broker last written to them)
// and application preferences such as the default device address and
// timeouts. The file follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/pigeon/config.yaml or $HOME/.config/pigeon/config.yaml
//   - macOS: $HOME/.config/pigeon/config.yaml
//   - Windows: %AppData%\pigeon\config.yaml
//
// PIGEON_CONFIG overrides the location. A registry saves back to the file it
// was loaded from.
//
// # Security
//
// IMPORTANT: This package NEVER stores WiFi or MQTT passwords. These are
// always prompted from the user when needed.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDeviceNickname("7", "Garden feeder")
//	registry.UpdateDeviceLastSeen("7", "http://192.168.1.40:80")
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// A Registry is not safe for concurrent use. Saves are serialised within the
// process and replace the file with a rename.
package config
