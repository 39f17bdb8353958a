package session

import (
	"errors"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrInvalidRole is returned for an unknown Role.
	ErrInvalidRole = errors.New("session: invalid role")

	// ErrInvalidKey is returned when a key is not 32 bytes.
	ErrInvalidKey = errors.New("session: invalid key size")

	// ErrCounterExhausted is returned when a direction's nonce counter
	// would wrap.
	ErrCounterExhausted = fmt.Errorf("session: nonce counter exhausted: %w", hap.ErrCrypto)

	// ErrSessionFailed is returned by every call after a decrypt failure.
	ErrSessionFailed = fmt.Errorf("session: session failed after authentication error: %w", hap.ErrCrypto)

	// ErrFrameTooLarge is returned for frames exceeding MaxFrameSize.
	ErrFrameTooLarge = fmt.Errorf("session: frame too large: %w", hap.ErrDecode)
)
