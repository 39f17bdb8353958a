package discovery

import (
	"context"
	"sync"

	"github.com/backkem/hap/pkg/hap"
	"github.com/pion/logging"
	"github.com/rigado/ble"
)

// ScanFunc runs a BLE scan until ctx ends. ble.Scan has this shape.
type ScanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler, f ble.AdvFilter) error

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// Handler receives a descriptor whenever an accessory is first seen or
	// its GSN, configuration number or status flags change. Required. It
	// runs on the scan goroutine and must not block on the operation queue.
	Handler func(*hap.AccessoryDescriptor)

	// Scan runs the radio scan. Defaults to ble.Scan on the default device.
	Scan ScanFunc

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

type advState struct {
	gsn    uint16
	cn     uint32
	status hap.StatusFlags
}

// Scanner feeds HAP BLE advertisements to a handler. It implements the
// operation queue's Scanner so the radio is released while GATT
// procedures run.
type Scanner struct {
	cfg ScannerConfig
	log logging.LeveledLogger

	mu      sync.Mutex
	parent  context.Context
	started bool
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
	seen    map[string]advState
}

// NewScanner creates a stopped Scanner.
func NewScanner(config ScannerConfig) *Scanner {
	if config.Scan == nil {
		config.Scan = ble.Scan
	}
	s := &Scanner{cfg: config, seen: make(map[string]advState)}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hap-ble-scan")
	}
	return s
}

// Start begins scanning until ctx ends or Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.parent = ctx
	if !s.paused {
		s.runLocked()
	}
	return nil
}

// Stop ends scanning and waits for the scan to return.
func (s *Scanner) Stop() {
	s.mu.Lock()
	s.started = false
	done := s.haltLocked()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// PauseScan suspends scanning. Pauses do not nest.
func (s *Scanner) PauseScan() {
	s.mu.Lock()
	s.paused = true
	done := s.haltLocked()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	if s.log != nil {
		s.log.Trace("scan paused")
	}
}

// ResumeScan restarts a paused scan.
func (s *Scanner) ResumeScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	if s.started && s.cancel == nil && s.parent.Err() == nil {
		s.runLocked()
		if s.log != nil {
			s.log.Trace("scan resumed")
		}
	}
}

func (s *Scanner) haltLocked() chan struct{} {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	return s.done
}

func (s *Scanner) runLocked() {
	ctx, cancel := context.WithCancel(s.parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		err := s.cfg.Scan(ctx, true, s.handle, IsHAPAdvertisement)
		if err != nil && ctx.Err() == nil && s.log != nil {
			s.log.Warnf("scan ended: %v", err)
		}
	}()
}

func (s *Scanner) handle(adv ble.Advertisement) {
	d, err := ParseAdvertisement(adv)
	if err != nil {
		if s.log != nil {
			s.log.Tracef("ignoring advertisement: %v", err)
		}
		return
	}
	st := advState{gsn: d.GlobalStateNumber, cn: d.ConfigNumber, status: d.Status}

	s.mu.Lock()
	prev, ok := s.seen[d.DeviceID]
	s.seen[d.DeviceID] = st
	s.mu.Unlock()
	if ok && prev == st {
		return
	}
	s.cfg.Handler(d)
}
