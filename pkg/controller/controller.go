package controller

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/queue"
	"github.com/backkem/hap/pkg/storage"
	"github.com/pion/logging"
	"go.uber.org/multierr"
)

// gsnNotifier is implemented by BLE sessions.
type gsnNotifier interface {
	NotifyGSN(gsn uint16) bool
}

// Controller manages the accessories known to a gateway.
type Controller struct {
	cfg      Config
	log      logging.LeveledLogger
	queue    *queue.Queue
	ownQueue bool

	mu      sync.RWMutex
	devices map[string]*Device
	closed  bool

	// forwarders drain subscriptions into OnEvent.
	forwarders sync.WaitGroup
}

// New creates a Controller.
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	c := &Controller{
		cfg:     config,
		queue:   config.Queue,
		devices: make(map[string]*Device),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("hap-controller")
	}
	if c.queue == nil {
		c.queue = queue.New(queue.Config{Scanner: config.Scanner, LoggerFactory: config.LoggerFactory})
		c.ownQueue = true
	}
	return c, nil
}

// Queue returns the queue serializing BLE procedures.
func (c *Controller) Queue() *queue.Queue {
	return c.queue
}

func (c *Controller) emit(ev Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}
}

// HandleDescriptor feeds a discovery result. Unknown devices are
// registered, with stored pairing data when there is some; known devices
// get the new descriptor. A changed GSN of a connected BLE device triggers
// an immediate poll. It never blocks on the network.
func (c *Controller) HandleDescriptor(d *hap.AccessoryDescriptor) {
	if d == nil || d.DeviceID == "" {
		return
	}
	id := normalizeID(d.DeviceID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	dev, known := c.devices[id]
	if !known {
		dev = &Device{id: id}
		c.devices[id] = dev
	}
	c.mu.Unlock()

	dev.mu.Lock()
	prev := dev.desc
	dev.desc = d
	sess := dev.sess
	if !known {
		data, err := c.cfg.Store.Load(id)
		switch {
		case err == nil:
			dev.data = data
		case !errors.Is(err, storage.ErrNotFound) && c.log != nil:
			c.log.Warnf("loading pairing for %s: %v", id, err)
		}
	}
	dev.mu.Unlock()

	if !known {
		if c.log != nil {
			c.log.Infof("discovered %s", d)
		}
		c.emit(Event{Kind: EventDiscovered, DeviceID: id, Descriptor: d})
		return
	}

	if n, ok := sess.(gsnNotifier); ok && d.Transport == hap.TransportBLE {
		if n.NotifyGSN(d.GlobalStateNumber) && c.log != nil {
			c.log.Debugf("%s GSN %d, polling", id, d.GlobalStateNumber)
		}
	}
	if descriptorChanged(prev, d) {
		if prev.ConfigNumber != d.ConfigNumber && sess != nil && c.log != nil {
			c.log.Infof("%s configuration number %d -> %d, reconnect to refresh", id, prev.ConfigNumber, d.ConfigNumber)
		}
		c.emit(Event{Kind: EventUpdated, DeviceID: id, Descriptor: d})
	}
}

// descriptorChanged ignores the GSN, which moves on every value change.
func descriptorChanged(a, b *hap.AccessoryDescriptor) bool {
	if a == nil {
		return true
	}
	return a.Address() != b.Address() ||
		a.Name != b.Name ||
		a.ConfigNumber != b.ConfigNumber ||
		a.Status != b.Status
}

// Devices returns the registered devices ordered by ID.
func (c *Controller) Devices() []*Device {
	c.mu.RLock()
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Device returns the device with the given device ID.
func (c *Controller) Device(id string) (*Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	d, ok := c.devices[normalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return d, nil
}

// LogicalDevices returns the logical devices of every connected device.
func (c *Controller) LogicalDevices() []*LogicalDevice {
	var out []*LogicalDevice
	for _, d := range c.Devices() {
		out = append(out, d.LogicalDevices()...)
	}
	return out
}

// resolve maps a device ID or logical ID onto its device. For a bridged
// logical ID it also returns the accessory ID.
func (c *Controller) resolve(id string) (*Device, uint64, error) {
	if d, err := c.Device(id); err == nil || errors.Is(err, ErrClosed) {
		return d, 0, err
	}
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	aid, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil || aid == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	d, err := c.Device(id[:i])
	if err != nil {
		return nil, 0, err
	}
	return d, aid, nil
}

// Close disconnects every device, abandons pending pairing attempts and
// releases the queue. Stored pairings are kept.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	devices := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	c.mu.Unlock()

	var err error
	for _, d := range devices {
		d.mu.Lock()
		sess, pending := d.sess, d.pending
		d.sess, d.pending = nil, nil
		d.mu.Unlock()
		if sess != nil {
			err = multierr.Append(err, sess.Close())
		}
		if pending != nil {
			err = multierr.Append(err, pending.close())
		}
	}
	c.forwarders.Wait()
	if c.ownQueue {
		err = multierr.Append(err, c.queue.Close())
	}
	return err
}
