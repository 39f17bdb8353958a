package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultFindTimeout bounds Find when the context has no deadline.
const DefaultFindTimeout = 10 * time.Second

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse sends entries for services of the given type until ctx ends
	// or the source is exhausted. It must not close entries.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

// Browse forwards from a channel owned by the library, which closes it on
// its own schedule.
func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	inner := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Browse(ctx, service, domain, inner); err != nil {
		return err
	}
	for {
		select {
		case e, ok := <-inner:
			if !ok {
				return nil
			}
			select {
			case entries <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// BrowserConfig holds configuration for the Browser.
type BrowserConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// FindTimeout bounds Find when the context has no deadline.
	// If zero, DefaultFindTimeout is used.
	FindTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browser discovers IP accessories via DNS-SD.
type Browser struct {
	config   BrowserConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewBrowser creates a new Browser with the given configuration.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}
	if config.FindTimeout == 0 {
		config.FindTimeout = DefaultFindTimeout
	}

	b := &Browser{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("hap-discovery")
	}
	return b, nil
}

// Browse feeds every _hap._tcp announcement to handle until ctx ends.
// Entries with unusable TXT records are logged and skipped.
func (b *Browser) Browse(ctx context.Context, handle func(*hap.AccessoryDescriptor)) error {
	entries := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		errc <- b.resolver.Browse(ctx, ServiceHAP, DefaultDomain, entries)
	}()

	for entry := range entries {
		d, err := DescriptorFromEntry(entry)
		if err != nil {
			if b.log != nil {
				b.log.Debugf("skipping %q: %v", entry.Instance, err)
			}
			continue
		}
		if b.log != nil {
			b.log.Tracef("found %s", d)
		}
		handle(d)
	}

	err := <-errc
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Find browses until the accessory with deviceID is announced.
func (b *Browser) Find(ctx context.Context, deviceID string) (*hap.AccessoryDescriptor, error) {
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	// Apply the find timeout if the context doesn't have a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.FindTimeout)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var found *hap.AccessoryDescriptor
	err = b.Browse(ctx, func(d *hap.AccessoryDescriptor) {
		if found == nil && d.DeviceID == id {
			found = d
			stop()
		}
	})
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return nil, ErrServiceNotFound
}
