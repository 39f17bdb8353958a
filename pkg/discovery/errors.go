package discovery

import (
	"errors"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an already-started scanner.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrServiceNotFound is returned when a requested accessory is not found.
	ErrServiceNotFound = errors.New("discovery: accessory not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = fmt.Errorf("discovery: operation timed out: %w", hap.ErrTransport)

	// ErrInvalidTXTRecord is returned when a _hap._tcp TXT record is missing
	// a required key or carries a malformed value.
	ErrInvalidTXTRecord = fmt.Errorf("discovery: invalid TXT record: %w", hap.ErrDecode)

	// ErrInvalidDeviceID is returned for device IDs that are not six
	// colon-separated hex octets.
	ErrInvalidDeviceID = fmt.Errorf("discovery: invalid device id: %w", hap.ErrDecode)

	// ErrNotHAPAdvertisement is returned for advertisements without HAP
	// manufacturer data.
	ErrNotHAPAdvertisement = fmt.Errorf("discovery: not a HAP advertisement: %w", hap.ErrDecode)
)
