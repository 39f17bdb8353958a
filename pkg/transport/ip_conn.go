package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/pion/logging"
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PlainConn is an unencrypted HTTP connection to an accessory, used for
// pair-setup and pair-verify. It implements pairing.Exchanger.
type PlainConn struct {
	conn net.Conn
	br   *bufio.Reader
	host string

	mu sync.Mutex
}

// DialPlain connects to address. A nil dialer uses net.Dialer.
func DialPlain(ctx context.Context, dialer Dialer, address string) (*PlainConn, error) {
	if address == "" {
		return nil, ErrNoAddress
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return &PlainConn{conn: conn, br: bufio.NewReader(conn), host: address}, nil
}

// Exchange POSTs a TLV8 body to the pairing endpoint and returns the
// response body.
func (p *PlainConn) Exchange(ctx context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.SetDeadline(time.Now())
	})
	defer func() {
		stop()
		_ = p.conn.SetDeadline(time.Time{})
	}()

	if err := writeRequest(p.conn, p.host, http.MethodPost, endpoint.String(), ContentTypeTLV8, request); err != nil {
		return nil, p.ioError(ctx, err)
	}
	msg, err := readMessage(p.br)
	if err != nil {
		return nil, p.ioError(ctx, err)
	}
	if msg.event || msg.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d on %s", ErrHTTPStatus, msg.status, endpoint)
	}
	return msg.body, nil
}

func (p *PlainConn) ioError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

// Close closes the connection.
func (p *PlainConn) Close() error {
	return p.conn.Close()
}

// result is what a waiting request receives.
type result struct {
	msg *message
	err error
}

// ipConn is an encrypted connection with a reader goroutine. Responses are
// handed to waiting requests in submission order; EVENT messages go to
// onEvent.
type ipConn struct {
	conn *session.Conn
	br   *bufio.Reader
	host string
	log  logging.LeveledLogger

	onEvent func(body []byte)
	onClose func(c *ipConn, err error)

	writeMu sync.Mutex

	mu      sync.Mutex
	pending []chan result
	err     error

	done chan struct{}
}

func newIPConn(conn *session.Conn, host string, log logging.LeveledLogger) *ipConn {
	return &ipConn{
		conn: conn,
		br:   bufio.NewReader(conn),
		host: host,
		log:  log,
		done: make(chan struct{}),
	}
}

func (c *ipConn) start() {
	go c.readLoop()
}

func (c *ipConn) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err == nil
}

func (c *ipConn) readLoop() {
	defer close(c.done)

	for {
		msg, err := readMessage(c.br)
		if err != nil {
			c.shutdown(err)
			return
		}
		if msg.event {
			if c.onEvent != nil {
				c.onEvent(msg.body)
			}
			continue
		}

		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			if c.log != nil {
				c.log.Warnf("dropping unsolicited response with status %d", msg.status)
			}
			continue
		}
		ch := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		ch <- result{msg: msg}
	}
}

func (c *ipConn) shutdown(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	_ = c.conn.Close()
	for _, ch := range pending {
		ch <- result{err: fmt.Errorf("%w: %w", ErrConnectionLost, err)}
	}
	if c.onClose != nil {
		c.onClose(c, err)
	}
}

// roundTrip sends one request and waits for its response.
func (c *ipConn) roundTrip(ctx context.Context, method, path, contentType string, body []byte) (*message, error) {
	ch := make(chan result, 1)

	c.writeMu.Lock()
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		c.writeMu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.pending = append(c.pending, ch)
	c.mu.Unlock()
	err := writeRequest(c.conn, c.host, method, path, contentType, body)
	c.writeMu.Unlock()

	if err != nil {
		// The reader fails every pending request, ours included.
		_ = c.conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ipConn) close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
