package pairing

import (
	"errors"
	"fmt"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/tlv"
)

var (
	// ErrInvalidState is returned when a call does not fit the current state.
	ErrInvalidState = errors.New("pairing: invalid state for this operation")

	// ErrNilExchanger is returned when a config lacks an Exchanger.
	ErrNilExchanger = errors.New("pairing: nil exchanger")

	// ErrPINRequired is returned by Setup.Run in the display-PIN flow. The
	// caller supplies the code through Setup.Resume.
	ErrPINRequired = errors.New("pairing: PIN unknown, supply the code shown by the accessory")

	// ErrPINExpired is returned by Setup.Resume after the pending state
	// outlived its TTL.
	ErrPINExpired = errors.New("pairing: pending pairing attempt expired")

	// ErrInvalidPIN is returned for setup codes that are not XXX-XX-XXX digits.
	ErrInvalidPIN = fmt.Errorf("pairing: invalid PIN: %w", hap.ErrValidation)

	// ErrUnexpectedState is returned when a response carries the wrong
	// State item.
	ErrUnexpectedState = fmt.Errorf("pairing: unexpected state in response: %w", hap.ErrDecode)

	// ErrAuthentication is returned for proof or signature mismatches and
	// for an accessory Authentication error. The attempt must restart.
	ErrAuthentication = fmt.Errorf("pairing: authentication failed: %w", hap.ErrAuthentication)

	// ErrUnknownAccessory is returned when pair-verify reaches an accessory
	// whose identifier differs from the stored pairing.
	ErrUnknownAccessory = fmt.Errorf("pairing: accessory identifier mismatch: %w", hap.ErrAuthentication)

	// ErrNotPaired is returned when verify is attempted without pairing data.
	ErrNotPaired = errors.New("pairing: no pairing data")
)

// Sentinels matched by AccessoryError through errors.Is.
var (
	ErrAccessoryUnknown     = fmt.Errorf("pairing: accessory reported an unknown error: %w", hap.ErrTransport)
	ErrAccessoryBackoff     = fmt.Errorf("pairing: accessory requests backoff: %w", hap.ErrTransport)
	ErrAccessoryBusy        = fmt.Errorf("pairing: accessory is busy: %w", hap.ErrTransport)
	ErrAccessoryMaxPeers    = fmt.Errorf("pairing: accessory has no room for more pairings: %w", hap.ErrAuthentication)
	ErrAccessoryMaxTries    = fmt.Errorf("pairing: accessory refuses further attempts: %w", hap.ErrAuthentication)
	ErrAccessoryUnavailable = fmt.Errorf("pairing: accessory is already paired: %w", hap.ErrAuthentication)
)

// AccessoryError is an Error item returned by the accessory.
type AccessoryError struct {
	Code tlv.ErrorCode

	// State is the message number that carried the error.
	State byte

	// RetryDelay is set for ErrorCodeBackoff when the accessory sent one.
	RetryDelay time.Duration
}

// Error implements error.
func (e *AccessoryError) Error() string {
	if e.RetryDelay > 0 {
		return fmt.Sprintf("pairing: accessory error %s in M%d (retry in %s)", e.Code, e.State, e.RetryDelay)
	}
	return fmt.Sprintf("pairing: accessory error %s in M%d", e.Code, e.State)
}

// Unwrap maps the code onto one of the package sentinels.
func (e *AccessoryError) Unwrap() error {
	switch e.Code {
	case tlv.ErrorCodeAuthentication:
		return ErrAuthentication
	case tlv.ErrorCodeBackoff:
		return ErrAccessoryBackoff
	case tlv.ErrorCodeMaxPeers:
		return ErrAccessoryMaxPeers
	case tlv.ErrorCodeMaxTries:
		return ErrAccessoryMaxTries
	case tlv.ErrorCodeUnavailable:
		return ErrAccessoryUnavailable
	case tlv.ErrorCodeBusy:
		return ErrAccessoryBusy
	default:
		return ErrAccessoryUnknown
	}
}

// checkResponse decodes body, surfaces an accessory Error item and checks
// the State item.
func checkResponse(body []byte, wantState byte) (tlv.Map, error) {
	m, err := tlv.Decode(body)
	if err != nil {
		return nil, err
	}
	if code, ok := m.Byte(tlv.TypeError); ok {
		ae := &AccessoryError{Code: tlv.ErrorCode(code), State: wantState}
		if secs, ok := m.Uint(tlv.TypeRetryDelay); ok {
			ae.RetryDelay = time.Duration(secs) * time.Second
		}
		return nil, ae
	}
	st, ok := m.Byte(tlv.TypeState)
	if !ok || st != wantState {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedState, st, wantState)
	}
	return m, nil
}
