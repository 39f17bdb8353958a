package controller

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/transport"
	"go.uber.org/multierr"
)

// Pair runs pair-setup with the device, stores the pairing data and
// connects. An empty pin falls back to Config.PINs; without a configured
// code the display-PIN flow starts, EventPINRequired is sent and
// pairing.ErrPINRequired is returned until ProvidePIN completes it.
func (c *Controller) Pair(ctx context.Context, id, pin string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}
	dev.op.Lock()
	defer dev.op.Unlock()

	if dev.pairingData() != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyPaired, dev.id)
	}
	if pin == "" {
		pin = c.cfg.PINs[dev.id]
	}
	if pin != pairing.DisplayPIN {
		if pin, err = pairing.NormalizePIN(pin); err != nil {
			return err
		}
		if pairing.IsTrivialPIN(pin) && c.log != nil {
			c.log.Warnf("%s uses a setup code HAP disallows", dev.id)
		}
	}
	if err := c.dropPending(dev); err != nil && c.log != nil {
		c.log.Debugf("closing previous pairing link: %v", err)
	}

	ex, link, err := c.pairingExchanger(ctx, dev.Descriptor())
	if err != nil {
		return err
	}
	setup, err := pairing.NewSetup(pairing.SetupConfig{
		Exchanger:     ex,
		Identity:      c.cfg.Identity,
		PendingTTL:    c.cfg.PendingTTL,
		Clock:         c.cfg.Clock,
		Rand:          c.cfg.Rand,
		LoggerFactory: c.cfg.LoggerFactory,
	})
	if err != nil {
		_ = link.Close()
		return err
	}

	data, err := setup.Run(ctx, pin)
	if errors.Is(err, pairing.ErrPINRequired) {
		dev.mu.Lock()
		p := &pendingSetup{setup: setup, link: link}
		p.timer = c.cfg.Clock.AfterFunc(c.cfg.PendingTTL, func() { c.expirePending(dev, p) })
		dev.pending = p
		dev.mu.Unlock()
		c.emit(Event{Kind: EventPINRequired, DeviceID: dev.id})
		return err
	}
	if cerr := link.Close(); cerr != nil && c.log != nil {
		c.log.Debugf("closing pairing link: %v", cerr)
	}
	if err != nil {
		return fmt.Errorf("pair %s: %w", dev.id, err)
	}
	return c.completePairing(ctx, dev, data)
}

// ProvidePIN continues a display-PIN attempt started by Pair. A malformed
// code leaves the attempt pending; any other failure discards it.
func (c *Controller) ProvidePIN(ctx context.Context, id, pin string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}
	dev.op.Lock()
	defer dev.op.Unlock()

	dev.mu.Lock()
	p := dev.pending
	dev.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNoPendingPairing, dev.id)
	}
	if norm, err := pairing.NormalizePIN(pin); err == nil {
		pin = norm
	}

	data, err := p.setup.Resume(ctx, pin)
	if err != nil {
		if p.setup.State() != pairing.SetupAwaitingPIN {
			_ = c.dropPending(dev)
		}
		return fmt.Errorf("pair %s: %w", dev.id, err)
	}
	_ = c.dropPending(dev)
	return c.completePairing(ctx, dev, data)
}

// dropPending abandons the pending display-PIN attempt, if any.
func (c *Controller) dropPending(dev *Device) error {
	dev.mu.Lock()
	p := dev.pending
	dev.pending = nil
	dev.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.close()
}

// expirePending abandons p once its TTL has passed without ProvidePIN.
func (c *Controller) expirePending(dev *Device, p *pendingSetup) {
	dev.mu.Lock()
	if dev.pending != p {
		dev.mu.Unlock()
		return
	}
	dev.pending = nil
	dev.mu.Unlock()

	if err := p.link.Close(); err != nil && c.log != nil {
		c.log.Debugf("closing expired pairing link: %v", err)
	}
	if c.log != nil {
		c.log.Infof("pairing attempt with %s expired waiting for a setup code", dev.id)
	}
	c.emit(Event{Kind: EventPINExpired, DeviceID: dev.id, Err: pairing.ErrPINExpired})
}

// completePairing stores data and connects. Caller holds dev.op.
func (c *Controller) completePairing(ctx context.Context, dev *Device, data *pairing.Data) error {
	if err := c.cfg.Store.Save(dev.id, data); err != nil {
		return fmt.Errorf("store pairing for %s: %w", dev.id, err)
	}
	dev.mu.Lock()
	dev.data = data
	dev.mu.Unlock()

	if c.log != nil {
		c.log.Infof("paired with %s", dev.id)
	}
	c.emit(Event{Kind: EventPaired, DeviceID: dev.id})
	return c.connectLocked(ctx, dev)
}

// pairingExchanger opens an unsecured link for pair-setup.
func (c *Controller) pairingExchanger(ctx context.Context, d *hap.AccessoryDescriptor) (pairing.Exchanger, io.Closer, error) {
	switch d.Transport {
	case hap.TransportIP:
		conn, err := transport.DialPlain(ctx, c.cfg.Dialer, d.Address())
		if err != nil {
			return nil, nil, err
		}
		return conn, conn, nil
	case hap.TransportBLE:
		if c.cfg.GATTDialer == nil {
			return nil, nil, ErrNoGATTDialer
		}
		ex, err := transport.NewBLEPairingExchanger(transport.BLEConfig{
			Peripheral:    d.Peripheral,
			Dialer:        c.cfg.GATTDialer,
			Queue:         c.queue,
			LoggerFactory: c.cfg.LoggerFactory,
		})
		if err != nil {
			return nil, nil, err
		}
		return ex, ex, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, d.Transport)
}

// Unpair removes the controller's pairing from the device, then deletes
// the stored pairing data. For a bridged logical ID only that logical
// device is forgotten; the bridge stays paired.
func (c *Controller) Unpair(ctx context.Context, id string) error {
	dev, aid, err := c.resolve(id)
	if err != nil {
		return err
	}
	if aid != 0 {
		l := dev.logicalByID(normalizeID(id))
		if l == nil || !dev.removeLogical(l) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
		c.emit(Event{Kind: EventUnpaired, DeviceID: dev.id, Logical: l})
		return nil
	}

	dev.op.Lock()
	defer dev.op.Unlock()

	data := dev.pairingData()
	if data == nil {
		return fmt.Errorf("%w: %s", ErrNotPaired, dev.id)
	}
	if err := c.connectLocked(ctx, dev); err != nil {
		return err
	}
	if err := pairing.RemovePairing(ctx, dev.session().Pairings(), data.ControllerID); err != nil {
		return fmt.Errorf("unpair %s: %w", dev.id, err)
	}

	err = c.disconnectLocked(dev)
	if derr := c.cfg.Store.Delete(dev.id); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
		err = multierr.Append(err, derr)
	}
	dev.mu.Lock()
	dev.data = nil
	dev.db = nil
	dev.logical = nil
	dev.mu.Unlock()

	if c.log != nil {
		c.log.Infof("unpaired %s", dev.id)
	}
	c.emit(Event{Kind: EventUnpaired, DeviceID: dev.id})
	return err
}

// UnpairAll unpairs every paired device and returns the combined errors.
func (c *Controller) UnpairAll(ctx context.Context) error {
	var err error
	for _, d := range c.Devices() {
		if d.pairingData() == nil {
			continue
		}
		err = multierr.Append(err, c.Unpair(ctx, d.id))
	}
	return err
}
