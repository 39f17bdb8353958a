package session

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) *Keys {
	t.Helper()
	keys, err := DeriveKeys(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return keys
}

func newPair(t *testing.T) (ctrl, acc *Session) {
	t.Helper()
	keys := testKeys(t)
	ctrl, err := New(Config{Role: RoleController, Keys: *keys})
	require.NoError(t, err)
	acc, err = New(Config{Role: RoleAccessory, Keys: *keys})
	require.NoError(t, err)
	return ctrl, acc
}

func TestDeriveKeys_Distinct(t *testing.T) {
	keys := testKeys(t)
	assert.Len(t, keys.Write, 32)
	assert.Len(t, keys.Read, 32)
	assert.NotEqual(t, keys.Write, keys.Read)
}

func TestNew_Validation(t *testing.T) {
	keys := testKeys(t)
	_, err := New(Config{Role: Role(9), Keys: *keys})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = New(Config{Role: RoleController, Keys: Keys{Write: keys.Write, Read: keys.Read[:16]}})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSession_RoundTripBothDirections(t *testing.T) {
	ctrl, acc := newPair(t)

	for i := 0; i < 3; i++ {
		ct, err := ctrl.Seal([]byte("to accessory"), nil)
		require.NoError(t, err)
		pt, err := acc.Open(ct, nil)
		require.NoError(t, err)
		assert.Equal(t, "to accessory", string(pt))

		ct, err = acc.Seal([]byte("to controller"), []byte{1})
		require.NoError(t, err)
		pt, err = ctrl.Open(ct, []byte{1})
		require.NoError(t, err)
		assert.Equal(t, "to controller", string(pt))
	}
}

func TestSession_CountersStrictlyIncrease(t *testing.T) {
	ctrl, acc := newPair(t)

	var prev []byte
	for i := uint64(0); i < 5; i++ {
		send, _ := ctrl.Counters()
		if send != i {
			t.Fatalf("send counter = %d, want %d", send, i)
		}
		ct, err := ctrl.Seal([]byte("same"), nil)
		require.NoError(t, err)
		// Same plaintext never yields the same ciphertext.
		assert.NotEqual(t, prev, ct)
		prev = ct
		_, err = acc.Open(ct, nil)
		require.NoError(t, err)
	}
	_, recv := acc.Counters()
	assert.Equal(t, uint64(5), recv)
}

func TestSession_BitFlipIsFatal(t *testing.T) {
	ctrl, acc := newPair(t)

	ct, err := ctrl.Seal([]byte("payload"), nil)
	require.NoError(t, err)
	ct[0] ^= 0x80

	_, err = acc.Open(ct, nil)
	if !errors.Is(err, hap.ErrCrypto) {
		t.Fatalf("Open() error = %v, want hap.ErrCrypto", err)
	}
	assert.True(t, acc.Failed())

	// Even a valid message is refused afterwards.
	ct2, err := ctrl.Seal([]byte("next"), nil)
	require.NoError(t, err)
	_, err = acc.Open(ct2, nil)
	assert.ErrorIs(t, err, ErrSessionFailed)
}

func TestSession_ReplayRejected(t *testing.T) {
	ctrl, acc := newPair(t)
	ct, err := ctrl.Seal([]byte("once"), nil)
	require.NoError(t, err)
	_, err = acc.Open(ct, nil)
	require.NoError(t, err)

	_, err = acc.Open(ct, nil)
	assert.ErrorIs(t, err, hap.ErrCrypto)
}

func TestSession_CounterExhausted(t *testing.T) {
	ctrl, _ := newPair(t)
	ctrl.sendCounter = ^uint64(0)
	_, err := ctrl.Seal(nil, nil)
	assert.ErrorIs(t, err, ErrCounterExhausted)
}

func TestConn_LargeWriteIsFramed(t *testing.T) {
	defer test.CheckRoutines(t)()
	to := test.TimeOut(5 * time.Second)
	defer to.Stop()

	ctrl, acc := newPair(t)
	c0, c1 := net.Pipe()
	client := NewConn(c0, ctrl)
	server := NewConn(c1, acc)

	payload := bytes.Repeat([]byte("0123456789"), 300) // 3000 bytes, three frames

	done := make(chan error, 1)
	go func() {
		_, err := client.Write(payload)
		done <- err
	}()

	got := make([]byte, len(payload))
	_, err := io.ReadFull(server, got)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)

	send, _ := ctrl.Counters()
	assert.Equal(t, uint64(3), send)

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}

func TestConn_TamperedFrameClosesConn(t *testing.T) {
	defer test.CheckRoutines(t)()

	ctrl, acc := newPair(t)
	raw, c1 := net.Pipe()
	server := NewConn(c1, acc)

	ct, err := ctrl.Seal([]byte("hi"), []byte{2, 0})
	require.NoError(t, err)
	ct[1] ^= 0xFF

	go func() {
		_, _ = raw.Write(append([]byte{2, 0}, ct...))
	}()

	buf := make([]byte, 16)
	_, err = server.Read(buf)
	assert.ErrorIs(t, err, hap.ErrCrypto)

	// Sticky error, and the underlying pipe is closed.
	_, err = server.Read(buf)
	assert.ErrorIs(t, err, hap.ErrCrypto)
	_, err = raw.Write([]byte{0})
	assert.Error(t, err)
}

func TestSession_LengthIsAuthenticated(t *testing.T) {
	ctrl, acc := newPair(t)
	ct, err := ctrl.Seal([]byte("hello"), []byte{5, 0})
	require.NoError(t, err)

	_, err = acc.Open(ct, []byte{5 ^ 0x01, 0})
	assert.ErrorIs(t, err, hap.ErrCrypto)
}

func TestConn_AlteredLengthHeader(t *testing.T) {
	defer test.CheckRoutines(t)()

	ctrl, acc := newPair(t)
	raw, c1 := net.Pipe()
	server := NewConn(c1, acc)

	ct, err := ctrl.Seal([]byte("hello"), []byte{5, 0})
	require.NoError(t, err)

	// Same ciphertext, length header claims one byte less.
	go func() {
		_, _ = raw.Write(append([]byte{4, 0}, ct...))
	}()

	_, err = server.Read(make([]byte, 16))
	assert.ErrorIs(t, err, hap.ErrCrypto)
	_ = raw.Close()
}

func TestConn_OversizedFrame(t *testing.T) {
	_, acc := newPair(t)
	raw, c1 := net.Pipe()
	defer raw.Close()
	server := NewConn(c1, acc)

	go func() {
		_, _ = raw.Write([]byte{0x01, 0x08}) // 2049
	}()
	_, err := server.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
