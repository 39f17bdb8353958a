package controller

import (
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/catalog"
	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/transport"
	"github.com/benbjohnson/clock"
)

// DeviceState is the lifecycle state of a Device.
type DeviceState int

const (
	// StateDiscovered means the device is known but not paired.
	StateDiscovered DeviceState = iota

	// StateAwaitingPIN means a pairing attempt waits for ProvidePIN.
	StateAwaitingPIN

	// StatePaired means pairing data is stored but no session is open.
	StatePaired

	// StateConnected means a verified session is open.
	StateConnected
)

// String returns a human-readable name for the state.
func (s DeviceState) String() string {
	switch s {
	case StateDiscovered:
		return "Discovered"
	case StateAwaitingPIN:
		return "AwaitingPIN"
	case StatePaired:
		return "Paired"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// pendingSetup is a display-PIN attempt and the link it runs over. The
// timer reaps it once the attempt outlives its TTL.
type pendingSetup struct {
	setup *pairing.Setup
	link  io.Closer
	timer *clock.Timer
}

func (p *pendingSetup) close() error {
	p.timer.Stop()
	return p.link.Close()
}

// Device is one accessory server: a plain accessory or a bridge.
type Device struct {
	id string

	// op serializes pairing and session lifecycle.
	op sync.Mutex

	mu      sync.Mutex
	desc    *hap.AccessoryDescriptor
	data    *pairing.Data
	pending *pendingSetup
	sess    transport.Session
	db      *accessory.Accessories
	logical []*LogicalDevice
}

// ID returns the accessory device ID.
func (d *Device) ID() string {
	return d.id
}

// Descriptor returns the latest discovery descriptor.
func (d *Device) Descriptor() *hap.AccessoryDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc
}

// State returns the lifecycle state.
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.sess != nil:
		return StateConnected
	case d.data != nil:
		return StatePaired
	case d.pending != nil:
		return StateAwaitingPIN
	}
	return StateDiscovered
}

// Accessories returns the attribute database read on the last connect,
// or nil.
func (d *Device) Accessories() *accessory.Accessories {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db
}

// Bridge reports whether the device exposes more than one accessory.
func (d *Device) Bridge() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db != nil && len(d.db.Accessories) > 1
}

// LogicalDevices returns the accessories surfaced for this device.
func (d *Device) LogicalDevices() []*LogicalDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*LogicalDevice(nil), d.logical...)
}

func (d *Device) session() transport.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

func (d *Device) pairingData() *pairing.Data {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

func (d *Device) logicalByID(id string) *LogicalDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.logical {
		if l.id == id {
			return l
		}
	}
	return nil
}

func (d *Device) logicalByAID(aid uint64) *LogicalDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.logical {
		if l.aid == aid {
			return l
		}
	}
	return nil
}

func (d *Device) removeLogical(l *LogicalDevice) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.logical {
		if x == l {
			d.logical = append(d.logical[:i], d.logical[i+1:]...)
			return true
		}
	}
	return false
}

// LogicalDevice is one accessory of a Device as seen by a gateway. It
// holds a non-owning reference to its Device: closing or unpairing goes
// through the Controller, which owns both.
type LogicalDevice struct {
	id    string
	aid   uint64
	desc  *catalog.Description
	owner *Device

	mu   sync.Mutex
	last map[accessory.ID]any
}

// newLogicalDevice seeds the value cache from the database snapshot.
func newLogicalDevice(id string, acc *accessory.Accessory, desc *catalog.Description, owner *Device) *LogicalDevice {
	l := &LogicalDevice{id: id, aid: acc.AID, desc: desc, owner: owner, last: make(map[accessory.ID]any)}
	for _, svc := range acc.Services {
		for _, ch := range svc.Characteristics {
			if ch.Value != nil {
				l.last[ch.ID()] = ch.Value
			}
		}
	}
	return l
}

// ID returns the logical ID: the device ID, or "<device>-<aid>" for
// bridged accessories.
func (l *LogicalDevice) ID() string {
	return l.id
}

// AID returns the accessory instance ID.
func (l *LogicalDevice) AID() uint64 {
	return l.aid
}

// Name returns the accessory name, falling back to the logical ID.
func (l *LogicalDevice) Name() string {
	if l.desc.Name != "" {
		return l.desc.Name
	}
	return l.id
}

// Description returns the catalog description.
func (l *LogicalDevice) Description() *catalog.Description {
	return l.desc
}

// Owner returns the accessory server exposing this accessory.
func (l *LogicalDevice) Owner() *Device {
	return l.owner
}

// remember records a raw value and reports whether it feeds the color
// property.
func (l *LogicalDevice) remember(id accessory.ID, raw any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[id] = raw
	c := l.desc.Color
	return c != nil && (id == c.Hue || id == c.Saturation || id == c.Brightness)
}

// color returns the current color when hue, saturation and brightness
// are all known.
func (l *LogicalDevice) color() (string, bool) {
	c := l.desc.Color
	if c == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var hsv [3]float64
	for i, id := range []accessory.ID{c.Hue, c.Saturation, c.Brightness} {
		f, ok := accessory.NormalizeValue(accessory.FormatFloat, l.last[id]).(float64)
		if !ok {
			return "", false
		}
		hsv[i] = f
	}
	return catalog.HSVToRGB(hsv[0], hsv[1], hsv[2]), true
}

// owns reports whether id addresses this logical device.
func (l *LogicalDevice) owns(id accessory.ID) error {
	if id.AID != l.aid {
		return fmt.Errorf("%w: %s on %s", ErrForeignCharacteristic, id, l.id)
	}
	return nil
}

// logicalDevices maps a database onto logical devices. A plain accessory
// keeps the device ID. A bridge yields one logical device per bridged
// accessory that has properties; the bridge's own accessory is skipped
// unless it exposes some.
func logicalDevices(dev *Device, db *accessory.Accessories, cat *catalog.Catalog) []*LogicalDevice {
	if len(db.Accessories) == 1 {
		acc := db.Accessories[0]
		desc := cat.Describe(acc)
		return []*LogicalDevice{newLogicalDevice(dev.id, acc, desc, dev)}
	}
	var out []*LogicalDevice
	for _, acc := range db.Accessories {
		desc := cat.Describe(acc)
		if len(desc.Properties) == 0 {
			continue
		}
		id := fmt.Sprintf("%s-%d", dev.id, acc.AID)
		out = append(out, newLogicalDevice(id, acc, desc, dev))
	}
	return out
}
