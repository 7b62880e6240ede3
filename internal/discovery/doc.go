// Package discovery finds Pigeon devices and MQTT brokers with mDNS.
//
// Devices are browsed as "_http._tcp" services and recognised by a hostname
// prefix ("pigeon" by default, so "pigeon-7.local." is device 7). The device
// firmware does not advertise itself, so only hosts published by another
// responder on the network (a router or an avahi static entry) are found.
// A device that has not joined any network answers on its own hotspot at
// 192.168.4.1, which SoftAPDevice describes.
//
// Brokers are browsed as "_mqtt._tcp" services so the wizard can offer a
// broker URL.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 5 * time.Second
//	devices, err := scanner.ScanForDevices(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if len(devices) == 0 {
//	    devices = append(devices, discovery.SoftAPDevice())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
