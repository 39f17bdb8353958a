package session

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/crypto"
)

// MaxFrameSize is the largest plaintext carried by one IP frame.
const MaxFrameSize = 1024

const lengthSize = 2

// Conn is a net.Conn that encrypts writes and decrypts reads with a
// Session. After a decrypt failure the underlying connection is closed and
// every Read returns the error.
type Conn struct {
	conn net.Conn
	sess *Session

	readMu  sync.Mutex
	pending []byte
	readErr error

	writeMu sync.Mutex
}

// NewConn wraps conn with sess.
func NewConn(conn net.Conn, sess *Session) *Conn {
	return &Conn{conn: conn, sess: sess}
}

// Session returns the session protecting the connection.
func (c *Conn) Session() *Session {
	return c.sess
}

// Write splits b into frames of at most MaxFrameSize bytes.
func (c *Conn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for len(b) > 0 {
		n := len(b)
		if n > MaxFrameSize {
			n = MaxFrameSize
		}
		var hdr [lengthSize]byte
		binary.LittleEndian.PutUint16(hdr[:], uint16(n))
		ct, err := c.sess.Seal(b[:n], hdr[:])
		if err != nil {
			return written, err
		}
		frame := make([]byte, 0, lengthSize+len(ct))
		frame = append(frame, hdr[:]...)
		frame = append(frame, ct...)
		if _, err := c.conn.Write(frame); err != nil {
			return written, err
		}
		written += n
		b = b[n:]
	}
	return written, nil
}

// Read returns decrypted bytes, reading a new frame when the buffer is empty.
func (c *Conn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		frame, err := c.readFrame()
		if err != nil {
			c.readErr = err
			return 0, err
		}
		c.pending = frame
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) readFrame() ([]byte, error) {
	var hdr [lengthSize]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[:]))
	if n > MaxFrameSize {
		_ = c.conn.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n+crypto.TagSize)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	pt, err := c.sess.Open(body, hdr[:])
	if err != nil {
		_ = c.conn.Close()
		return nil, err
	}
	return pt, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline sets the read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
