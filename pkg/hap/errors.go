package hap

import "errors"

// Error categories. Package-level errors elsewhere wrap one of these.
var (
	// ErrDecode is the category for malformed wire data.
	ErrDecode = errors.New("hap: decode error")

	// ErrAuthentication is the category for failed proofs during pairing.
	ErrAuthentication = errors.New("hap: authentication error")

	// ErrCrypto is the category for AEAD authentication failures.
	ErrCrypto = errors.New("hap: crypto error")

	// ErrTransport is the category for connection loss and timeouts.
	ErrTransport = errors.New("hap: transport error")

	// ErrValidation is the category for values that cannot be made to fit
	// a characteristic's declared format.
	ErrValidation = errors.New("hap: validation error")

	// ErrUnsupportedOperation is the category for operations a
	// characteristic's permissions do not allow.
	ErrUnsupportedOperation = errors.New("hap: unsupported operation")
)

// IsRetryable reports whether err belongs to a category that may succeed
// when retried on a fresh connection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrCrypto)
}
