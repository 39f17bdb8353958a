package controller

import (
	"io"
	"strings"
	"time"

	"github.com/backkem/hap/pkg/catalog"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/queue"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Config holds the configuration of a Controller.
type Config struct {
	// Store persists pairing data. Required.
	Store storage.PairingStore

	// Catalog describes accessories. Defaults to the built-in catalog.
	Catalog *catalog.Catalog

	// Identity is the controller identity registered with accessories.
	// When nil every pairing gets a fresh identity.
	Identity *pairing.Identity

	// PINs holds setup codes by device ID. Pair falls back to it when
	// called without a code, and to the display-PIN flow after that.
	PINs map[string]string

	// Dialer opens TCP connections to IP accessories. Defaults to
	// net.Dialer.
	Dialer transport.Dialer

	// GATTDialer connects to BLE accessories. BLE accessories are
	// registered without it but cannot be paired or connected.
	GATTDialer transport.GATTDialer

	// Queue serializes BLE procedures. A queue is created when nil.
	Queue *queue.Queue

	// Scanner is paused while the created queue is busy. Ignored when
	// Queue is set.
	Scanner queue.Scanner

	// Session tuning. Zero values use the transport defaults.
	PollInterval      time.Duration
	ReconnectDelay    time.Duration
	ReconnectAttempts int

	// PendingTTL bounds how long a display-PIN attempt waits for
	// ProvidePIN. Defaults to pairing.DefaultPendingTTL.
	PendingTTL time.Duration

	// Clock drives timers. Defaults to the wall clock.
	Clock clock.Clock

	// Rand is the entropy source for key material. Defaults to crypto/rand.
	Rand io.Reader

	// OnEvent receives lifecycle and value events. It is called from
	// controller goroutines and must not block for long.
	OnEvent func(Event)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store == nil {
		return ErrStoreRequired
	}
	for id, pin := range c.PINs {
		if pin == "" {
			continue
		}
		if _, err := pairing.NormalizePIN(pin); err != nil {
			return &PINConfigError{DeviceID: id, Err: err}
		}
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Catalog == nil {
		c.Catalog = catalog.New(catalog.Config{LoggerFactory: c.LoggerFactory})
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = pairing.DefaultPendingTTL
	}
	pins := make(map[string]string, len(c.PINs))
	for id, pin := range c.PINs {
		pins[normalizeID(id)] = pin
	}
	c.PINs = pins
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// PINConfigError reports a malformed entry in Config.PINs.
type PINConfigError struct {
	DeviceID string
	Err      error
}

func (e *PINConfigError) Error() string {
	return "controller: PIN for " + e.DeviceID + ": " + e.Err.Error()
}

func (e *PINConfigError) Unwrap() error {
	return e.Err
}
