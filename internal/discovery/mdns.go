package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/logging"
)

const (
	// ServiceType is the mDNS service type Pigeon devices are found under
	ServiceType = "_http._tcp"

	// BrokerServiceType is the mDNS service type of MQTT brokers
	BrokerServiceType = "_mqtt._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the default HTTP port for Pigeon devices
	DefaultPort = 80

	// DefaultHostPrefix is the hostname prefix identifying Pigeon devices
	DefaultHostPrefix = "pigeon"

	// DefaultBrokerPort is used when a broker advertisement has no port
	DefaultBrokerPort = 1883
)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// HostPrefix selects devices by hostname, case-insensitively
	HostPrefix string

	logger *zap.Logger
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:    DefaultScanTimeout,
		HostPrefix: DefaultHostPrefix,
		logger:     logging.Named("discovery"),
	}
}

// ScanForDevices discovers all Pigeon devices on the local network until
// the timeout or ctx ends
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	var (
		mu      sync.Mutex
		devices = make([]*Device, 0)
		seen    = make(map[string]bool)
	)

	err := s.browse(ctx, ServiceType, func(entry *zeroconf.ServiceEntry) bool {
		device := s.parseServiceEntry(entry)
		if device == nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if !seen[device.Address()] {
			seen[device.Address()] = true
			devices = append(devices, device)
			s.logger.Debug("Found device", zap.String("device", device.String()))
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

// ScanForBrokers discovers MQTT brokers advertising _mqtt._tcp
func (s *Scanner) ScanForBrokers(ctx context.Context) ([]*Broker, error) {
	var (
		mu      sync.Mutex
		brokers = make([]*Broker, 0)
	)

	err := s.browse(ctx, BrokerServiceType, func(entry *zeroconf.ServiceEntry) bool {
		broker := parseBrokerEntry(entry)
		if broker == nil {
			return false
		}
		mu.Lock()
		brokers = append(brokers, broker)
		mu.Unlock()
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return brokers, nil
}

// browse runs one mDNS browse. handle returns true to stop early.
func (s *Scanner) browse(ctx context.Context, service string, handle func(*zeroconf.ServiceEntry) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if handle(entry) {
				cancel()
				return
			}
		}
	}()

	s.logger.Debug("Browsing mDNS", zap.String("service", service), zap.Duration("timeout", s.Timeout))
	if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device
// Returns nil if the entry is not a Pigeon device
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}

	id, ok := matchHost(hostname, s.HostPrefix)
	if !ok {
		return nil
	}

	ip := entryIP(entry)
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Device{
		ID:           id,
		Hostname:     hostname,
		IP:           ip,
		Port:         port,
		Metadata:     parseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

func parseBrokerEntry(entry *zeroconf.ServiceEntry) *Broker {
	ip := entryIP(entry)
	if ip == "" {
		return nil
	}
	port := entry.Port
	if port == 0 {
		port = DefaultBrokerPort
	}
	return &Broker{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     port,
	}
}

// matchHost checks hostname against prefix and extracts the id that follows
// it, e.g. "pigeon-7.local." gives "7"
func matchHost(hostname, prefix string) (string, bool) {
	if prefix == "" {
		prefix = DefaultHostPrefix
	}
	host := strings.TrimSuffix(strings.TrimSuffix(hostname, "."), ".local")
	if strings.Contains(host, ".") {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(host), strings.ToLower(prefix)) {
		return "", false
	}
	id := strings.TrimLeft(host[len(prefix):], "-_")
	return id, true
}

// entryIP prefers IPv4
func entryIP(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}

// parseTXT splits "key=value" TXT records
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string)
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}
