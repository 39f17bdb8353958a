package crypto

import (
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrAuthFailed is returned when an AEAD tag does not verify.
	ErrAuthFailed = fmt.Errorf("crypto: message authentication failed: %w", hap.ErrCrypto)

	// ErrKeySize is returned when a key has the wrong length.
	ErrKeySize = fmt.Errorf("crypto: invalid key size: %w", hap.ErrCrypto)

	// ErrLowOrderPoint is returned when X25519 yields the all-zero secret.
	ErrLowOrderPoint = fmt.Errorf("crypto: low order X25519 point: %w", hap.ErrCrypto)

	// ErrBadSignature is returned when an Ed25519 signature does not verify.
	ErrBadSignature = fmt.Errorf("crypto: signature verification failed: %w", hap.ErrAuthentication)
)
