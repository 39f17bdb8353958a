package hapsim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
)

// statusConnectionAuthorizationRequired is the HAP reply to requests made
// before pair-verify.
const statusConnectionAuthorizationRequired = 470

// Server lifecycle errors.
var (
	ErrServerClosed   = errors.New("hapsim: server closed")
	ErrAlreadyStarted = errors.New("hapsim: server already started")
	ErrNoAccessory    = errors.New("hapsim: nil accessory")
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Accessory is the accessory to serve. Required.
	Accessory *Accessory

	// Listener is an optional pre-existing listener.
	// If nil, a new listener is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on. Defaults to an ephemeral
	// loopback port.
	ListenAddr string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server serves an Accessory over HAP/IP.
type Server struct {
	acc      *Accessory
	listener net.Listener
	log      logging.LeveledLogger
	wg       sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*serverConn]struct{}

	tamper atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer creates a server. Call Start to accept connections.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Accessory == nil {
		return nil, ErrNoAccessory
	}
	s := &Server{
		acc:      config.Accessory,
		listener: config.Listener,
		conns:    make(map[*serverConn]struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hapsim-ip")
	}
	if s.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = "127.0.0.1:0"
		}
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		s.listener = l
	}
	return s, nil
}

// Addr returns the listening host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	if s.log != nil {
		s.log.Infof("serving %s on %s", s.acc.ID(), s.listener.Addr())
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

// DropConnections closes every open connection while the listener keeps
// accepting, as an accessory does after a network blip. It returns the
// number of connections closed.
func (s *Server) DropConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for c := range s.conns {
		_ = c.raw.Close()
	}
	return len(s.conns)
}

// CorruptNextFrame flips one ciphertext bit in the next encrypted frame
// the server sends on any connection.
func (s *Server) CorruptNextFrame() {
	s.tamper.Store(true)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		c := &serverConn{srv: s, raw: nc, w: nc, pc: s.acc.NewConn(), events: make(map[accessory.ID]bool)}
		s.connsMu.Lock()
		s.conns[c] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go c.serve()
	}
}

type serverConn struct {
	srv *Server
	raw net.Conn
	pc  *Conn

	mu     sync.Mutex
	w      io.Writer
	events map[accessory.ID]bool
	watch  *watcher
}

func (c *serverConn) serve() {
	defer c.srv.wg.Done()
	defer func() {
		_ = c.raw.Close()
		if c.watch != nil {
			c.srv.acc.unwatch(c.watch)
		}
		c.srv.connsMu.Lock()
		delete(c.srv.conns, c)
		c.srv.connsMu.Unlock()
	}()

	c.watch = c.srv.acc.watch(c.notify)
	br := bufio.NewReader(c.raw)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return
		}
		upgrade := !c.pc.Verified()
		status, contentType, out := c.handle(req, body)
		if err := c.respond(status, contentType, out); err != nil {
			return
		}

		if upgrade && c.pc.Verified() {
			keys, err := session.DeriveKeys(c.pc.SharedSecret())
			if err != nil {
				return
			}
			sess, err := session.New(session.Config{Role: session.RoleAccessory, Keys: *keys})
			if err != nil {
				return
			}
			sc := session.NewConn(&tamperConn{Conn: c.raw, srv: c.srv}, sess)
			c.mu.Lock()
			c.w = sc
			c.mu.Unlock()
			br = bufio.NewReader(sc)
		}
	}
}

// tamperConn corrupts one outgoing frame when the server asks for it.
// session.Conn writes each frame in a single call.
type tamperConn struct {
	net.Conn
	srv *Server
}

func (t *tamperConn) Write(b []byte) (int, error) {
	if len(b) > 2 && t.srv.tamper.CompareAndSwap(true, false) {
		b = append([]byte(nil), b...)
		b[2] ^= 0x01
	}
	return t.Conn.Write(b)
}

func (c *serverConn) respond(status int, contentType string, body []byte) error {
	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
	}
	if len(body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write(buf.Bytes())
	return err
}

func (c *serverConn) handle(req *http.Request, body []byte) (int, string, []byte) {
	switch {
	case req.Method == http.MethodPost && req.URL.Path == pairing.EndpointPairSetup.String():
		return c.pairing(pairing.EndpointPairSetup, body)
	case req.Method == http.MethodPost && req.URL.Path == pairing.EndpointPairVerify.String():
		return c.pairing(pairing.EndpointPairVerify, body)
	}

	if !c.pc.Verified() {
		return statusConnectionAuthorizationRequired, transport.ContentTypeJSON, []byte(`{"status":-70401}`)
	}
	switch {
	case req.Method == http.MethodPost && req.URL.Path == pairing.EndpointPairings.String():
		return c.pairing(pairing.EndpointPairings, body)
	case req.Method == http.MethodGet && req.URL.Path == "/accessories":
		db, err := c.srv.acc.Database()
		if err != nil {
			return http.StatusInternalServerError, "", nil
		}
		return http.StatusOK, transport.ContentTypeJSON, db
	case req.Method == http.MethodGet && req.URL.Path == "/characteristics":
		return c.read(req)
	case req.Method == http.MethodPut && req.URL.Path == "/characteristics":
		return c.write(body)
	}
	return http.StatusNotFound, "", nil
}

func (c *serverConn) pairing(endpoint pairing.Endpoint, body []byte) (int, string, []byte) {
	out, err := c.pc.Exchange(context.Background(), endpoint, body)
	if err != nil {
		return http.StatusBadRequest, "", nil
	}
	return http.StatusOK, transport.ContentTypeTLV8, out
}

func statusPtr(s accessory.Status) *accessory.Status {
	return &s
}

func (c *serverConn) read(req *http.Request) (int, string, []byte) {
	q := req.URL.Query()
	meta := q.Get("meta") == "1"
	var (
		items  []accessory.WireValue
		failed bool
	)
	for _, raw := range strings.Split(q.Get("id"), ",") {
		id, err := accessory.ParseID(raw)
		if err != nil {
			return http.StatusBadRequest, "", nil
		}
		item := accessory.WireValue{AID: id.AID, IID: id.IID}
		ch, _ := c.srv.acc.find(id)
		switch {
		case ch == nil:
			item.Status = statusPtr(accessory.StatusResourceDoesNotExist)
			failed = true
		case !ch.Readable():
			item.Status = statusPtr(accessory.StatusWriteOnly)
			failed = true
		default:
			item.Value, _ = c.srv.acc.Value(id)
			if meta {
				t := ch.Type
				item.Type = &t
				item.Format = ch.Format
				item.Perms = ch.Perms
			}
		}
		items = append(items, item)
	}

	status := http.StatusOK
	if failed {
		status = http.StatusMultiStatus
		for i := range items {
			if items[i].Status == nil {
				items[i].Status = statusPtr(accessory.StatusSuccess)
			}
		}
	}
	out, err := accessory.EncodeBody(&accessory.CharacteristicsBody{Characteristics: items})
	if err != nil {
		return http.StatusInternalServerError, "", nil
	}
	return status, transport.ContentTypeJSON, out
}

func (c *serverConn) write(body []byte) (int, string, []byte) {
	in, err := accessory.DecodeBody(body)
	if err != nil {
		return http.StatusBadRequest, "", nil
	}
	var (
		items  []accessory.WireValue
		failed bool
	)
	for _, w := range in.Characteristics {
		id := w.ID()
		st := c.apply(id, w)
		if st != accessory.StatusSuccess {
			failed = true
		}
		items = append(items, accessory.WireValue{AID: id.AID, IID: id.IID, Status: statusPtr(st)})
	}
	if !failed {
		return http.StatusNoContent, "", nil
	}
	out, err := accessory.EncodeBody(&accessory.CharacteristicsBody{Characteristics: items})
	if err != nil {
		return http.StatusInternalServerError, "", nil
	}
	return http.StatusMultiStatus, transport.ContentTypeJSON, out
}

func (c *serverConn) apply(id accessory.ID, w accessory.WireValue) accessory.Status {
	ch, _ := c.srv.acc.find(id)
	if ch == nil {
		return accessory.StatusResourceDoesNotExist
	}
	if w.Events != nil {
		if !ch.Notifies() {
			return accessory.StatusNotifyNotSupported
		}
		c.mu.Lock()
		c.events[id] = *w.Events
		c.mu.Unlock()
	}
	if w.Value != nil {
		if !ch.Writable() {
			return accessory.StatusReadOnly
		}
		if err := c.srv.acc.write(id, w.Value, c.watch); err != nil {
			return accessory.StatusInvalidValue
		}
	}
	return accessory.StatusSuccess
}

// notify pushes an EVENT for id when this connection subscribed to it.
func (c *serverConn) notify(id accessory.ID, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.events[id] {
		return
	}
	body, err := accessory.EncodeBody(&accessory.CharacteristicsBody{
		Characteristics: []accessory.WireValue{{AID: id.AID, IID: id.IID, Value: v}},
	})
	if err != nil {
		return
	}
	if err := transport.WriteEvent(c.w, body); err != nil && c.srv.log != nil {
		c.srv.log.Debugf("event for %s not delivered: %v", id, err)
	}
}
