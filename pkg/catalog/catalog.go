package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Config configures a Catalog.
type Config struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Catalog answers metadata lookups. The built-in tables are static; vendor
// extensions may be added at any time.
type Catalog struct {
	log logging.LeveledLogger

	services map[accessory.Type]ServiceEntry
	chars    map[accessory.Type]Entry
	scoped   map[scopeKey]Entry

	mu     sync.RWMutex
	vendor map[accessory.Type]Entry
}

// New creates a catalog holding the built-in tables.
func New(config Config) *Catalog {
	c := &Catalog{
		services: serviceTable,
		chars:    make(map[accessory.Type]Entry, len(charTable)),
		scoped:   make(map[scopeKey]Entry, len(scopedTable)),
		vendor:   make(map[accessory.Type]Entry),
	}
	for t, e := range charTable {
		e.index()
		c.chars[t] = e
	}
	for k, e := range scopedTable {
		e.index()
		c.scoped[k] = e
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("hap-catalog")
	}
	return c
}

// Lookup returns the entry for characteristic type char inside service type
// service.
func (c *Catalog) Lookup(service, char accessory.Type) (Entry, bool) {
	if e, ok := c.scoped[scopeKey{service, char}]; ok {
		return e, true
	}
	if e, ok := c.chars[char]; ok {
		return e, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.vendor[char]
	return e, ok
}

// Service returns the entry for a service type.
func (c *Catalog) Service(t accessory.Type) (ServiceEntry, bool) {
	e, ok := c.services[t]
	return e, ok
}

// Register adds or replaces a vendor extension keyed by raw UUID.
func (c *Catalog) Register(t accessory.Type, e Entry) {
	e.index()
	c.mu.Lock()
	c.vendor[t] = e
	c.mu.Unlock()
}

type extensionFile struct {
	Extensions []extension `yaml:"extensions"`
}

type extension struct {
	UUID   string           `yaml:"uuid"`
	Label  string           `yaml:"label"`
	Type   ValueType        `yaml:"type"`
	Unit   string           `yaml:"unit"`
	Min    *float64         `yaml:"min"`
	Max    *float64         `yaml:"max"`
	Step   *float64         `yaml:"step"`
	Enum   map[int64]string `yaml:"enum"`
	Tags   []string         `yaml:"tags"`
	Action *Action          `yaml:"action"`
}

func (x *extension) entry() (accessory.Type, Entry, error) {
	t, err := accessory.ParseType(x.UUID)
	if err != nil {
		return accessory.Type{}, Entry{}, fmt.Errorf("%w: %v", ErrInvalidExtension, err)
	}
	if x.Label == "" {
		return accessory.Type{}, Entry{}, fmt.Errorf("%w: %s has no label", ErrInvalidExtension, x.UUID)
	}
	switch x.Type {
	case TypeBoolean, TypeInteger, TypeNumber, TypeString:
	case "":
		x.Type = TypeNumber
		if len(x.Enum) > 0 {
			x.Type = TypeString
		}
	default:
		return accessory.Type{}, Entry{}, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidExtension, x.UUID, x.Type)
	}
	if x.Action != nil && x.Action.Name == "" {
		return accessory.Type{}, Entry{}, fmt.Errorf("%w: %s action has no name", ErrInvalidExtension, x.UUID)
	}
	return t, Entry{
		Label:  x.Label,
		Type:   x.Type,
		Unit:   x.Unit,
		Min:    x.Min,
		Max:    x.Max,
		Step:   x.Step,
		Enum:   x.Enum,
		Tags:   x.Tags,
		Action: x.Action,
	}, nil
}

// LoadExtensions reads vendor extensions from YAML and registers them. The
// whole file is rejected if any extension is malformed.
func (c *Catalog) LoadExtensions(r io.Reader) (int, error) {
	var f extensionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidExtension, err)
	}

	types := make([]accessory.Type, 0, len(f.Extensions))
	entries := make([]Entry, 0, len(f.Extensions))
	for i := range f.Extensions {
		t, e, err := f.Extensions[i].entry()
		if err != nil {
			return 0, err
		}
		types = append(types, t)
		entries = append(entries, e)
	}
	for i := range types {
		c.Register(types[i], entries[i])
	}
	if c.log != nil {
		c.log.Infof("loaded %d vendor extensions", len(types))
	}
	return len(types), nil
}

// LoadExtensionsFile reads vendor extensions from a YAML file.
func (c *Catalog) LoadExtensionsFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()
	return c.LoadExtensions(f)
}
