package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/connection"
	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
	"go.uber.org/multierr"
)

// IPConfig configures an IP session.
type IPConfig struct {
	// Address is the accessory's host:port. Required.
	Address string

	// Data is the pairing to verify with. Required.
	Data *pairing.Data

	// Dialer opens TCP connections. Defaults to net.Dialer.
	Dialer Dialer

	// ReconnectDelay and ReconnectAttempts shape recovery after a lost
	// connection. See connection.BackoffConfig.
	ReconnectDelay    time.Duration
	ReconnectAttempts int

	// OnReconnect is called before each reconnect attempt with its number
	// and the wait preceding it. Optional.
	OnReconnect func(attempt int, delay time.Duration)

	// Clock times reconnect delays. Defaults to the wall clock.
	Clock clock.Clock

	// Rand is the entropy source for pair-verify. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the required fields.
func (c *IPConfig) Validate() error {
	if c.Address == "" {
		return ErrNoAddress
	}
	if c.Data == nil {
		return ErrNotPaired
	}
	return c.Data.Validate()
}

// IPSession is a Session over HAP/IP.
type IPSession struct {
	cfg         IPConfig
	log         logging.LeveledLogger
	reconnector *connection.Reconnector
	subs        subscriptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conn   *ipConn
	db     *accessory.Accessories
	closed bool
}

var _ Session = (*IPSession)(nil)

// OpenIP connects to the accessory, runs pair-verify and returns the
// encrypted session.
func OpenIP(ctx context.Context, config IPConfig) (*IPSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	s := &IPSession{cfg: config}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hap-ip")
	}

	r, err := connection.NewReconnector(connection.Config{
		Connect:       s.connect,
		Delay:         config.ReconnectDelay,
		Attempts:      config.ReconnectAttempts,
		Clock:         config.Clock,
		OnAttempt:     config.OnReconnect,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.reconnector = r

	if err := s.connect(ctx); err != nil {
		s.cancel()
		return nil, err
	}
	s.reconnector.MarkConnected()
	return s, nil
}

// connect dials, verifies and installs a fresh encrypted connection.
func (s *IPSession) connect(ctx context.Context) error {
	pc, err := DialPlain(ctx, s.cfg.Dialer, s.cfg.Address)
	if err != nil {
		return err
	}
	v, err := pairing.NewVerify(pairing.VerifyConfig{
		Exchanger:     pc,
		Data:          s.cfg.Data,
		Rand:          s.cfg.Rand,
		LoggerFactory: s.cfg.LoggerFactory,
	})
	if err != nil {
		_ = pc.Close()
		return err
	}
	shared, err := v.Run(ctx)
	if err != nil {
		_ = pc.Close()
		return err
	}
	keys, err := session.DeriveKeys(shared)
	if err != nil {
		_ = pc.Close()
		return err
	}
	sess, err := session.New(session.Config{Role: session.RoleController, Keys: *keys})
	if err != nil {
		_ = pc.Close()
		return err
	}

	c := newIPConn(session.NewConn(pc.conn, sess), s.cfg.Address, s.log)
	c.onEvent = s.handleEvent
	c.onClose = s.handleClose

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = pc.Close()
		return ErrClosed
	}
	s.conn = c
	s.mu.Unlock()

	c.start()
	if s.log != nil {
		s.log.Infof("session established with %s", s.cfg.Data.AccessoryID)
	}
	return nil
}

// current returns a live connection, reconnecting if needed.
func (s *IPSession) current(ctx context.Context) (*ipConn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	c := s.conn
	s.mu.Unlock()
	if c != nil && c.alive() {
		return c, nil
	}

	if err := s.reconnector.Reconnect(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.conn == nil {
		return nil, ErrConnectionLost
	}
	return s.conn, nil
}

func (s *IPSession) roundTrip(ctx context.Context, method, path, contentType string, body []byte) (*message, error) {
	c, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, method, path, contentType, body)
}

func (s *IPSession) handleClose(c *ipConn, err error) {
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
	}
	if s.closed {
		s.mu.Unlock()
		return
	}
	resume := !s.subs.empty()
	if resume {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.reconnector.MarkDisconnected()
	if s.log != nil {
		s.log.Warnf("connection to %s lost: %v", s.cfg.Address, err)
	}
	if resume {
		go s.resubscribe()
	}
}

// resubscribe reconnects and re-enables events on behalf of live
// subscriptions, failing them once the attempts are exhausted.
func (s *IPSession) resubscribe() {
	defer s.wg.Done()

	err := s.reconnector.Reconnect(s.ctx)
	if err == nil {
		err = s.setEvents(s.ctx, s.subs.ids(), true)
	}
	if err == nil {
		if s.log != nil {
			s.log.Infof("resubscribed after reconnect to %s", s.cfg.Address)
		}
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	if s.log != nil {
		s.log.Errorf("giving up on %s: %v", s.cfg.Address, err)
	}
	if hap.IsRetryable(err) {
		err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	s.subs.failAll(err)
}

func (s *IPSession) handleEvent(body []byte) {
	b, err := accessory.DecodeBody(body)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("dropping malformed event: %v", err)
		}
		return
	}
	for _, w := range b.Characteristics {
		s.subs.dispatch(Event{ID: w.ID(), Value: s.normalize(w.ID(), w.Value)})
	}
}

func (s *IPSession) normalize(id accessory.ID, v any) any {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return v
	}
	c, err := db.Find(id)
	if err != nil {
		return v
	}
	return accessory.NormalizeValue(c.Format, v)
}

// Accessories implements Session.
func (s *IPSession) Accessories(ctx context.Context) (*accessory.Accessories, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db != nil {
		return db, nil
	}

	msg, err := s.roundTrip(ctx, http.MethodGet, "/accessories", "", nil)
	if err != nil {
		return nil, err
	}
	if msg.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d on /accessories", ErrHTTPStatus, msg.status)
	}
	db, err = accessory.Decode(msg.body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return db, nil
}

// GetCharacteristics implements Session.
func (s *IPSession) GetCharacteristics(ctx context.Context, ids []accessory.ID) ([]accessory.Value, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/characteristics?id=" + accessory.JoinIDs(ids) + "&meta=1&perms=1&type=1"
	msg, err := s.roundTrip(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if msg.status != http.StatusOK && msg.status != http.StatusMultiStatus {
		return nil, fmt.Errorf("%w: %d on /characteristics", ErrHTTPStatus, msg.status)
	}
	b, err := accessory.DecodeBody(msg.body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	got := make(map[accessory.ID]accessory.WireValue, len(b.Characteristics))
	for _, w := range b.Characteristics {
		got[w.ID()] = w
	}
	out := make([]accessory.Value, len(ids))
	for i, id := range ids {
		w, ok := got[id]
		switch {
		case !ok:
			out[i] = accessory.Value{ID: id, Status: accessory.StatusResourceDoesNotExist}
		case w.Status != nil && *w.Status != accessory.StatusSuccess:
			out[i] = accessory.Value{ID: id, Status: *w.Status}
		default:
			out[i] = accessory.Value{ID: id, Value: s.normalize(id, w.Value)}
		}
	}
	return out, nil
}

// SetCharacteristics implements Session. Every value is coerced before
// anything is sent; one invalid value fails the whole write.
func (s *IPSession) SetCharacteristics(ctx context.Context, values map[accessory.ID]any) error {
	if len(values) == 0 {
		return nil
	}
	db, err := s.Accessories(ctx)
	if err != nil {
		return err
	}

	body := &accessory.CharacteristicsBody{}
	var errs error
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
		body.Characteristics = append(body.Characteristics, accessory.WireValue{AID: id.AID, IID: id.IID, Value: v})
	}
	if errs != nil {
		return errs
	}
	return s.put(ctx, body)
}

func (s *IPSession) put(ctx context.Context, body *accessory.CharacteristicsBody) error {
	data, err := accessory.EncodeBody(body)
	if err != nil {
		return err
	}
	msg, err := s.roundTrip(ctx, http.MethodPut, "/characteristics", ContentTypeJSON, data)
	if err != nil {
		return err
	}
	switch msg.status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusMultiStatus:
		return statusErrors(msg.body)
	default:
		return fmt.Errorf("%w: %d on /characteristics", ErrHTTPStatus, msg.status)
	}
}

// statusErrors combines the failures of a 207 response.
func statusErrors(data []byte) error {
	b, err := accessory.DecodeBody(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var errs error
	for _, w := range b.Characteristics {
		if w.Status != nil && *w.Status != accessory.StatusSuccess {
			errs = multierr.Append(errs, &accessory.StatusError{ID: w.ID(), Status: *w.Status})
		}
	}
	return errs
}

func (s *IPSession) setEvents(ctx context.Context, ids []accessory.ID, on bool) error {
	if len(ids) == 0 {
		return nil
	}
	body := &accessory.CharacteristicsBody{}
	for _, id := range ids {
		ev := on
		body.Characteristics = append(body.Characteristics, accessory.WireValue{AID: id.AID, IID: id.IID, Events: &ev})
	}
	return s.put(ctx, body)
}

// Subscribe implements Session.
func (s *IPSession) Subscribe(ctx context.Context, ids []accessory.ID) (*Subscription, error) {
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

	// Registered first so no event between the response and the return
	// is lost.
	sub := newSubscription(ids)
	s.subs.add(sub)
	if err := s.setEvents(ctx, ids, true); err != nil {
		s.subs.remove(ids)
		sub.close()
		return nil, err
	}
	return sub, nil
}

// Unsubscribe implements Session.
func (s *IPSession) Unsubscribe(ctx context.Context, ids []accessory.ID) error {
	released := s.subs.remove(ids)
	return s.setEvents(ctx, released, false)
}

// Pairings implements Session.
func (s *IPSession) Pairings() pairing.Exchanger {
	return pairing.ExchangerFunc(func(ctx context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
		msg, err := s.roundTrip(ctx, http.MethodPost, endpoint.String(), ContentTypeTLV8, request)
		if err != nil {
			return nil, err
		}
		if msg.status != http.StatusOK {
			return nil, fmt.Errorf("%w: %d on %s", ErrHTTPStatus, msg.status, endpoint)
		}
		return msg.body, nil
	})
}

// Close implements Session.
func (s *IPSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	var err error
	if c != nil {
		err = multierr.Append(err, c.close())
	}
	err = multierr.Append(err, s.reconnector.Close())
	s.wg.Wait()
	s.subs.failAll(nil)
	return err
}

func sortedIDs(values map[accessory.ID]any) []accessory.ID {
	ids := make([]accessory.ID, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].AID != ids[j].AID {
			return ids[i].AID < ids[j].AID
		}
		return ids[i].IID < ids[j].IID
	})
	return ids
}
