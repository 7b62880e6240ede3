// Package tui implements the terminal user interface for the Pigeon configuration wizard.
//
// Built on Bubble Tea, the wizard has two screens:
//   - Discovery: browse mDNS for devices, enter an address by hand, or pick
//     the soft-AP hotspot entry (192.168.4.1) of a device that has no settings yet
//   - Config: edit the WiFi and MQTT settings, scan for networks, apply,
//     read the stored settings back and check the broker credentials
//
// Every screen renders through RenderApplicationContainer for a consistent
// header, content area and context-sensitive help footer.
//
// # Config Screen
//
// The config screen keeps a viewmodel.State. Each device call runs as a
// tea.Cmd through a viewmodel.ViewModel and resolves to exactly one message
// carrying a viewmodel.Outcome, which is folded into the state with
// State.Apply. The screen runs one device call at a time.
//
// Key bindings:
//   - tab / shift+tab: move between fields and the network list
//   - enter on the network list: copy the SSID into the form
//   - ctrl+r: scan for networks
//   - ctrl+s: apply the form
//   - ctrl+t: read the stored settings (test)
//   - ctrl+g: connect to the MQTT broker with the form's credentials
//   - esc: back to discovery
//
// # Usage Example
//
//	err := tui.Run(tui.Options{
//	    Registry:       registry,
//	    RequestTimeout: 15 * time.Second,
//	})
package tui
