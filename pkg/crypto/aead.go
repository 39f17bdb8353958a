package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

// Nonce and tag sizes for ChaCha20-Poly1305.
const (
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

// CounterNonce builds the session nonce: four zero octets followed by the
// 64-bit message counter in little-endian order.
func CounterNonce(counter uint64) [NonceSize]byte {
	var n [NonceSize]byte
	binary.LittleEndian.PutUint64(n[4:], counter)
	return n
}

// LabelNonce builds a pairing nonce: four zero octets followed by an
// eight-character ASCII label such as "PS-Msg05". Shorter labels are
// zero padded; longer ones are truncated.
func LabelNonce(label string) [NonceSize]byte {
	var n [NonceSize]byte
	copy(n[4:], label)
	return n
}

// Seal encrypts and authenticates plaintext, returning ciphertext with the
// 16-byte tag appended.
func Seal(key []byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrKeySize
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext (with trailing tag). A tag
// mismatch returns ErrAuthFailed.
func Open(key []byte, nonce [NonceSize]byte, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrKeySize
	}
	if len(ciphertext) < TagSize {
		return nil, ErrAuthFailed
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}
