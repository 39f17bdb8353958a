package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/queue"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
	"github.com/rigado/ble"
	"go.uber.org/multierr"
)

// BLEConfig configures a BLE session.
type BLEConfig struct {
	// Peripheral is the accessory's BLE address. Required.
	Peripheral ble.Addr

	// Dialer connects to the peripheral. Required.
	Dialer GATTDialer

	// Data is the pairing to verify with. Required by OpenBLE.
	Data *pairing.Data

	// Queue serializes procedures across every BLE accessory. A private
	// queue is created when nil.
	Queue *queue.Queue

	// PollInterval is the telemetry interval. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration

	// ReconnectDelay and ReconnectAttempts bound the attempts of one poll
	// before subscriptions fail. See connection.BackoffConfig.
	ReconnectDelay    time.Duration
	ReconnectAttempts int

	// Clock drives polling. Defaults to the wall clock.
	Clock clock.Clock

	// Rand is the entropy source for pair-verify. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the fields needed to reach the peripheral.
func (c *BLEConfig) Validate() error {
	if c.Peripheral == nil || c.Peripheral.String() == "" {
		return ErrNoAddress
	}
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// joinContext returns a context canceled when either ctx or other ends.
func joinContext(ctx, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// linkHolder lets the queue close an owner's idle link.
type linkHolder struct {
	release func()
}

// Release implements queue.Link.
func (h *linkHolder) Release() {
	h.release()
}

// BLESession is a Session over HAP-BLE. Notifications are modelled by
// polling: subscribed characteristics are re-read on an interval and when
// the advertised GSN changes, and changed values are emitted as events.
// The link is held through the queue, which closes it when another
// accessory needs the radio or the queue drains; the next procedure
// reconnects and re-verifies.
type BLESession struct {
	cfg      BLEConfig
	log      logging.LeveledLogger
	queue    *queue.Queue
	ownQueue bool
	holder   *linkHolder
	poller   *Poller
	subs     subscriptions

	mu     sync.Mutex
	link   *bleLink
	db     *accessory.Accessories
	last   map[accessory.ID]any
	closed bool
}

var _ Session = (*BLESession)(nil)

// OpenBLE connects and verifies with the peripheral.
func OpenBLE(ctx context.Context, config BLEConfig) (*BLESession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Data == nil {
		return nil, ErrNotPaired
	}
	if err := config.Data.Validate(); err != nil {
		return nil, err
	}

	s := &BLESession{cfg: config, queue: config.Queue, last: make(map[accessory.ID]any)}
	if s.queue == nil {
		s.queue = queue.New(queue.Config{LoggerFactory: config.LoggerFactory})
		s.ownQueue = true
	}
	s.holder = &linkHolder{release: s.release}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hap-ble")
	}
	p, err := NewPoller(PollerConfig{
		Poll:          s.Poll,
		Interval:      config.PollInterval,
		RetryDelay:    config.ReconnectDelay,
		RetryAttempts: config.ReconnectAttempts,
		OnFailure:     s.subs.failAll,
		Clock:         config.Clock,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	s.poller = p

	if _, err := queue.Do(ctx, s.queue, func(qctx context.Context) (struct{}, error) {
		ctx, cancel := joinContext(ctx, qctx)
		defer cancel()
		_, err := s.ensure(ctx)
		return struct{}{}, err
	}); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// ensure returns a verified link, dialing when needed. Queue worker only.
func (s *BLESession) ensure(ctx context.Context) (*bleLink, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	l := s.link
	s.mu.Unlock()
	s.queue.Hold(s.holder)
	if l != nil {
		return l, nil
	}

	link, err := s.cfg.Dialer.Dial(ctx, s.cfg.Peripheral)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionLost, s.cfg.Peripheral, err)
	}
	l = newBLELink(link)
	if err := l.verify(ctx, s.cfg.Data, s.cfg.Rand, s.cfg.LoggerFactory); err != nil {
		_ = link.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = link.Close()
		return nil, ErrClosed
	}
	s.link = l
	if s.log != nil {
		s.log.Infof("BLE session established with %s", s.cfg.Data.AccessoryID)
	}
	return l, nil
}

// release closes the link the queue no longer lets this session hold.
func (s *BLESession) release() {
	s.mu.Lock()
	l := s.link
	s.link = nil
	s.mu.Unlock()
	if l == nil {
		return
	}
	_ = l.link.Close()
	if s.log != nil {
		s.log.Debugf("BLE link to %s released", s.cfg.Peripheral)
	}
}

// drop discards l after a failure; the next procedure reconnects.
func (s *BLESession) drop(l *bleLink, cause error) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	s.link = nil
	s.mu.Unlock()

	_ = l.link.Close()
	if s.log != nil {
		s.log.Warnf("BLE link to %s dropped: %v", s.cfg.Peripheral, cause)
	}
}

// bleRun executes one procedure through the queue on a verified link.
func bleRun[T any](ctx context.Context, s *BLESession, op func(ctx context.Context, l *bleLink) (T, error)) (T, error) {
	return queue.Do(ctx, s.queue, func(qctx context.Context) (T, error) {
		ctx, cancel := joinContext(ctx, qctx)
		defer cancel()

		var zero T
		l, err := s.ensure(ctx)
		if err != nil {
			return zero, err
		}
		v, err := op(ctx, l)
		if err != nil && !errors.Is(err, ErrPDUStatus) && !errors.Is(err, ErrUnknownCharacteristic) {
			s.drop(l, err)
		}
		return v, err
	})
}

// Accessories implements Session. The tree is built from signature reads
// of every HAP characteristic and describes a single accessory with aid 1.
func (s *BLESession) Accessories(ctx context.Context) (*accessory.Accessories, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db != nil {
		return db, nil
	}

	db, err := bleRun(ctx, s, func(ctx context.Context, l *bleLink) (*accessory.Accessories, error) {
		acc := &accessory.Accessory{AID: 1}
		services := make(map[uint64]*accessory.Service)
		for _, gc := range l.chars {
			if gc.ServiceType == TypePairingService || isPairingType(gc.Type) {
				continue
			}
			sig, err := l.signature(ctx, gc.IID)
			if err != nil {
				return nil, err
			}
			svc, ok := services[gc.ServiceIID]
			if !ok {
				svc = &accessory.Service{IID: gc.ServiceIID, Type: gc.ServiceType}
				services[gc.ServiceIID] = svc
				acc.Services = append(acc.Services, svc)
			}
			svc.Characteristics = append(svc.Characteristics, sig.Characteristic(acc.AID, gc.IID))
		}
		return &accessory.Accessories{Accessories: []*accessory.Accessory{acc}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return db, nil
}

// GetCharacteristics implements Session. Each characteristic is one
// queued procedure.
func (s *BLESession) GetCharacteristics(ctx context.Context, ids []accessory.ID) ([]accessory.Value, error) {
	db, err := s.Accessories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]accessory.Value, len(ids))
	for i, id := range ids {
		out[i].ID = id
		c, err := db.Find(id)
		if err != nil {
			out[i].Status = accessory.StatusResourceDoesNotExist
			continue
		}
		if !c.Readable() {
			out[i].Status = accessory.StatusWriteOnly
			continue
		}
		v, err := bleRun(ctx, s, func(ctx context.Context, l *bleLink) (any, error) {
			return l.read(ctx, id.IID, c.Format)
		})
		var pe *PDUError
		switch {
		case errors.As(err, &pe):
			out[i].Status = pe.AccessoryStatus()
		case err != nil:
			return nil, err
		default:
			out[i].Value = v
		}
	}
	return out, nil
}

// SetCharacteristics implements Session.
func (s *BLESession) SetCharacteristics(ctx context.Context, values map[accessory.ID]any) error {
	db, err := s.Accessories(ctx)
	if err != nil {
		return err
	}

	type write struct {
		id     accessory.ID
		format accessory.Format
		value  any
	}
	var (
		writes []write
		errs   error
	)
	for _, id := range sortedIDs(values) {
		c, err := db.Find(id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		v, err := c.Coerce(values[id])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		writes = append(writes, write{id: id, format: c.Format, value: v})
	}
	if errs != nil {
		return errs
	}

	for _, w := range writes {
		_, err := bleRun(ctx, s, func(ctx context.Context, l *bleLink) (struct{}, error) {
			return struct{}{}, l.write(ctx, w.id.IID, w.format, w.value)
		})
		var pe *PDUError
		switch {
		case errors.As(err, &pe):
			errs = multierr.Append(errs, &accessory.StatusError{ID: w.id, Status: pe.AccessoryStatus()})
		case err != nil:
			return multierr.Append(errs, err)
		}
	}
	return errs
}

// Subscribe implements Session. Events arrive from polling; the first poll
// after subscribing reports the current values.
func (s *BLESession) Subscribe(ctx context.Context, ids []accessory.ID) (*Subscription, error) {
	db, err := s.Accessories(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		c, err := db.Find(id)
		if err != nil {
			return nil, err
		}
		if !c.Notifies() {
			return nil, fmt.Errorf("%w: %s", accessory.ErrNoNotify, id)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	for _, id := range ids {
		delete(s.last, id)
	}
	s.mu.Unlock()

	sub := newSubscription(ids)
	s.subs.add(sub)
	s.poller.Start()
	return sub, nil
}

// Unsubscribe implements Session.
func (s *BLESession) Unsubscribe(_ context.Context, ids []accessory.ID) error {
	released := s.subs.remove(ids)
	s.mu.Lock()
	for _, id := range released {
		delete(s.last, id)
	}
	s.mu.Unlock()
	return nil
}

// Poll re-reads every subscribed characteristic and emits changed values.
func (s *BLESession) Poll(ctx context.Context) error {
	ids := s.subs.ids()
	if len(ids) == 0 {
		return nil
	}
	values, err := s.GetCharacteristics(ctx, ids)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v.Status != accessory.StatusSuccess {
			continue
		}
		s.mu.Lock()
		prev, seen := s.last[v.ID]
		s.last[v.ID] = v.Value
		s.mu.Unlock()
		if !seen || !reflect.DeepEqual(prev, v.Value) {
			s.subs.dispatch(Event{ID: v.ID, Value: v.Value})
		}
	}
	return nil
}

// NotifyGSN feeds an advertised global state number to the poller.
func (s *BLESession) NotifyGSN(gsn uint16) bool {
	return s.poller.NotifyGSN(gsn)
}

// Pairings implements Session.
func (s *BLESession) Pairings() pairing.Exchanger {
	return pairing.ExchangerFunc(func(ctx context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
		return bleRun(ctx, s, func(ctx context.Context, l *bleLink) ([]byte, error) {
			return l.exchange(ctx, endpoint, request)
		})
	})
}

// Close implements Session.
func (s *BLESession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.link
	s.link = nil
	s.mu.Unlock()

	s.poller.Stop()
	s.queue.Drop(s.holder)
	var err error
	if l != nil {
		err = multierr.Append(err, l.link.Close())
	}
	if s.ownQueue {
		err = multierr.Append(err, s.queue.Close())
	}
	s.subs.failAll(nil)
	return err
}

// BLEPairingExchanger carries pair-setup over an unsecured BLE link. Each
// exchange is a queued procedure; the link is dialed on first use and held
// through the queue like a session's.
type BLEPairingExchanger struct {
	cfg      BLEConfig
	queue    *queue.Queue
	ownQueue bool
	holder   *linkHolder

	mu   sync.Mutex
	link *bleLink
}

// NewBLEPairingExchanger creates an exchanger for pair-setup.
func NewBLEPairingExchanger(config BLEConfig) (*BLEPairingExchanger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &BLEPairingExchanger{cfg: config, queue: config.Queue}
	e.holder = &linkHolder{release: e.release}
	if e.queue == nil {
		e.queue = queue.New(queue.Config{LoggerFactory: config.LoggerFactory})
		e.ownQueue = true
	}
	return e, nil
}

// Exchange implements pairing.Exchanger.
func (e *BLEPairingExchanger) Exchange(ctx context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
	return queue.Do(ctx, e.queue, func(qctx context.Context) ([]byte, error) {
		ctx, cancel := joinContext(ctx, qctx)
		defer cancel()

		e.mu.Lock()
		l := e.link
		e.mu.Unlock()
		e.queue.Hold(e.holder)
		if l == nil {
			link, err := e.cfg.Dialer.Dial(ctx, e.cfg.Peripheral)
			if err != nil {
				return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionLost, e.cfg.Peripheral, err)
			}
			l = newBLELink(link)
			e.mu.Lock()
			e.link = l
			e.mu.Unlock()
		}
		return l.exchange(ctx, endpoint, request)
	})
}

func (e *BLEPairingExchanger) release() {
	e.mu.Lock()
	l := e.link
	e.link = nil
	e.mu.Unlock()
	if l != nil {
		_ = l.link.Close()
	}
}

// Close disconnects.
func (e *BLEPairingExchanger) Close() error {
	e.mu.Lock()
	l := e.link
	e.link = nil
	e.mu.Unlock()
	e.queue.Drop(e.holder)

	var err error
	if l != nil {
		err = l.link.Close()
	}
	if e.ownQueue {
		err = multierr.Append(err, e.queue.Close())
	}
	return err
}
