package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver answers Browse from a fixed set of entries. It lets
// Browser and Find run in tests without touching the network.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry

	// Hold keeps Browse open until the context ends, like a live resolver.
	Hold bool
}

// NewMockMDNSResolver returns a resolver with no entries.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService adds entry to the answers for service.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	answers := append([]*zeroconf.ServiceEntry(nil), m.services[service]...)
	m.mu.RUnlock()

	for _, entry := range answers {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.Hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// MockHAPService creates a _hap._tcp entry for testing. The accessory is
// advertised as unpaired when paired is false.
func MockHAPService(instanceName, deviceID string, port int, ip net.IP, paired bool) *zeroconf.ServiceEntry {
	sf := "1"
	if paired {
		sf = "0"
	}
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instanceName,
			Service:  ServiceHAP,
			Domain:   DefaultDomain,
		},
		HostName: "accessory.local.",
		Port:     port,
		AddrIPv4: []net.IP{ip},
		Text: []string{
			"c#=1",
			"ff=0",
			"id=" + deviceID,
			"md=Mock",
			"pv=1.1",
			"s#=1",
			"sf=" + sf,
			"ci=5",
		},
	}
}
