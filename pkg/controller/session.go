package controller

import (
	"context"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/transport"
)

// Connect opens a verified session to a paired device, reads its
// attribute database and builds its logical devices. Connecting a
// connected device is a no-op.
func (c *Controller) Connect(ctx context.Context, id string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}
	dev.op.Lock()
	defer dev.op.Unlock()
	return c.connectLocked(ctx, dev)
}

// connectLocked requires dev.op.
func (c *Controller) connectLocked(ctx context.Context, dev *Device) error {
	dev.mu.Lock()
	sess, data, desc := dev.sess, dev.data, dev.desc
	dev.mu.Unlock()
	if sess != nil {
		return nil
	}
	if data == nil {
		return fmt.Errorf("%w: %s", ErrNotPaired, dev.id)
	}

	sess, err := c.openSession(ctx, desc, data)
	if err != nil {
		return fmt.Errorf("connect %s: %w", dev.id, err)
	}
	db, err := sess.Accessories(ctx)
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("connect %s: %w", dev.id, err)
	}
	logical := logicalDevices(dev, db, c.cfg.Catalog)

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		_ = sess.Close()
		return ErrClosed
	}

	dev.mu.Lock()
	dev.sess = sess
	dev.db = db
	dev.logical = logical
	dev.mu.Unlock()

	if c.log != nil {
		c.log.Infof("connected to %s (%d accessories)", dev.id, len(db.Accessories))
	}
	c.emit(Event{Kind: EventConnected, DeviceID: dev.id})
	return nil
}

func (c *Controller) openSession(ctx context.Context, d *hap.AccessoryDescriptor, data *pairing.Data) (transport.Session, error) {
	switch d.Transport {
	case hap.TransportIP:
		return transport.OpenIP(ctx, transport.IPConfig{
			Address:           d.Address(),
			Data:              data,
			Dialer:            c.cfg.Dialer,
			ReconnectDelay:    c.cfg.ReconnectDelay,
			ReconnectAttempts: c.cfg.ReconnectAttempts,
			Clock:             c.cfg.Clock,
			Rand:              c.cfg.Rand,
			LoggerFactory:     c.cfg.LoggerFactory,
		})
	case hap.TransportBLE:
		if c.cfg.GATTDialer == nil {
			return nil, ErrNoGATTDialer
		}
		s, err := transport.OpenBLE(ctx, transport.BLEConfig{
			Peripheral:        d.Peripheral,
			Dialer:            c.cfg.GATTDialer,
			Data:              data,
			Queue:             c.queue,
			PollInterval:      c.cfg.PollInterval,
			ReconnectDelay:    c.cfg.ReconnectDelay,
			ReconnectAttempts: c.cfg.ReconnectAttempts,
			Clock:             c.cfg.Clock,
			Rand:              c.cfg.Rand,
			LoggerFactory:     c.cfg.LoggerFactory,
		})
		if err != nil {
			return nil, err
		}
		// The advertisement that led here sets the GSN baseline.
		s.NotifyGSN(d.GlobalStateNumber)
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, d.Transport)
}

// Disconnect closes the device's session. Its subscriptions end; the
// pairing is kept.
func (c *Controller) Disconnect(id string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}
	dev.op.Lock()
	defer dev.op.Unlock()
	return c.disconnectLocked(dev)
}

func (c *Controller) disconnectLocked(dev *Device) error {
	dev.mu.Lock()
	sess := dev.sess
	dev.sess = nil
	dev.mu.Unlock()
	if sess == nil {
		return nil
	}
	err := sess.Close()
	c.emit(Event{Kind: EventDisconnected, DeviceID: dev.id})
	return err
}

// sessionFor returns the device's session, connecting first if needed.
func (c *Controller) sessionFor(ctx context.Context, dev *Device) (transport.Session, error) {
	if s := dev.session(); s != nil {
		return s, nil
	}
	dev.op.Lock()
	defer dev.op.Unlock()
	if err := c.connectLocked(ctx, dev); err != nil {
		return nil, err
	}
	return dev.session(), nil
}
