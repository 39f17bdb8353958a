package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is an ephemeral key pair for pair-verify.
type X25519KeyPair struct {
	Private [curve25519.ScalarSize]byte
	Public  [curve25519.PointSize]byte
}

// GenerateX25519 creates an ephemeral key pair. A nil r uses crypto/rand.
func GenerateX25519(r io.Reader) (*X25519KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	kp := &X25519KeyPair{}
	if _, err := io.ReadFull(r, kp.Private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SharedSecret computes the X25519 shared secret with peerPublic. An
// all-zero result is rejected with ErrLowOrderPoint.
func (kp *X25519KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != curve25519.PointSize {
		return nil, ErrKeySize
	}
	shared, err := curve25519.X25519(kp.Private[:], peerPublic)
	if err != nil {
		return nil, ErrLowOrderPoint
	}
	var zero [curve25519.PointSize]byte
	if subtle.ConstantTimeCompare(shared, zero[:]) == 1 {
		return nil, ErrLowOrderPoint
	}
	return shared, nil
}
