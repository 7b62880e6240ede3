// Package deviceapi provides an HTTP client for a Pigeon device's local API.
//
// The device serves a small JSON API on port 80, both on its own soft-AP
// (SSID "pigeon_esp", address 192.168.4.1) and on the network it joins:
//
//	GET    /wifi/networks  scan for access points ({"ap_count": n, "wifi_list": [...]})
//	GET    /settings       read stored settings
//	POST   /settings       store new WiFi and MQTT settings (202 Accepted)
//	DELETE /settings       erase stored settings
//	GET    /health         connectivity flags
//
// Requests go through the Transport interface; HTTPTransport is the
// net/http implementation and tests substitute their own.
//
// # Usage Example
//
//	client := deviceapi.NewClient("192.168.4.1", 80)
//
//	networks, err := client.ScanNetworks(ctx)
//	if err != nil {
//	    log.Fatal(deviceapi.GetShortErrorMessage(err))
//	}
//
//	result := client.ApplyAndVerify(ctx, deviceapi.SettingsPayload{
//	    WifiSSID:     networks.WifiList[0].SSID,
//	    WifiPassword: "secret123",
//	    MQTTURL:      "mqtt://broker.lan:1883",
//	}, nil)
//	if !result.Success {
//	    log.Fatalf("apply failed: %v", result.Error)
//	}
//
// # Retries
//
// Nothing in this package retries. A failed request is reported once to
// the caller as a *DeviceError.
package deviceapi
