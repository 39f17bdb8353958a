// Package crypto provides the primitives used by HAP pairing and sessions:
// HKDF-SHA512 key derivation, ChaCha20-Poly1305 with HAP nonce layouts,
// Ed25519 signatures and X25519 key agreement.
//
// SRP6a lives in the srp subpackage.
package crypto
