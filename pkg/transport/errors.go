package transport

import (
	"errors"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed session.
	ErrClosed = fmt.Errorf("transport: session closed: %w", hap.ErrTransport)

	// ErrConnectionLost is returned for requests in flight when the
	// connection drops.
	ErrConnectionLost = fmt.Errorf("transport: connection lost: %w", hap.ErrTransport)

	// ErrHTTPStatus is returned for unexpected HTTP status codes.
	ErrHTTPStatus = fmt.Errorf("transport: unexpected HTTP status: %w", hap.ErrTransport)

	// ErrMalformedMessage is returned for unparseable HTTP messages.
	ErrMalformedMessage = fmt.Errorf("transport: malformed message: %w", hap.ErrDecode)

	// ErrMalformedPDU is returned for HAP-BLE PDUs that cannot be parsed.
	ErrMalformedPDU = fmt.Errorf("transport: malformed PDU: %w", hap.ErrDecode)

	// ErrPDUStatus is returned when an accessory answers a HAP-BLE
	// procedure with a non-success status.
	ErrPDUStatus = fmt.Errorf("transport: procedure failed: %w", hap.ErrTransport)

	// ErrUnknownCharacteristic is returned when a BLE procedure targets an
	// instance ID the link does not expose.
	ErrUnknownCharacteristic = fmt.Errorf("transport: unknown characteristic: %w", hap.ErrUnsupportedOperation)

	// ErrNotPaired is returned when a session is opened without pairing data.
	ErrNotPaired = errors.New("transport: pairing data required")

	// ErrNoAddress is returned when a config lacks an address.
	ErrNoAddress = errors.New("transport: no address")

	// ErrNoDialer is returned when a BLE config lacks a GATTDialer.
	ErrNoDialer = errors.New("transport: no GATT dialer")
)
