package crypto

import (
	"crypto/ed25519"
	"io"
)

// GenerateSigningKey creates a long-term Ed25519 key pair. A nil rand uses
// crypto/rand.
func GenerateSigningKey(rand io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

// Sign signs the concatenation of parts.
func Sign(priv ed25519.PrivateKey, parts ...[]byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrKeySize
	}
	return ed25519.Sign(priv, concat(parts...)), nil
}

// Verify checks sig over the concatenation of parts.
func Verify(pub []byte, sig []byte, parts ...[]byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrKeySize
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), concat(parts...), sig) {
		return ErrBadSignature
	}
	return nil
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
