package controller

import (
	"errors"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller: closed")

	// ErrStoreRequired is returned when Config.Store is nil.
	ErrStoreRequired = errors.New("controller: pairing store is required")

	// ErrUnknownDevice is returned for IDs that are neither a registered
	// device nor one of its logical devices.
	ErrUnknownDevice = fmt.Errorf("controller: unknown device: %w", hap.ErrValidation)

	// ErrAlreadyPaired is returned by Pair for devices with stored pairing
	// data.
	ErrAlreadyPaired = fmt.Errorf("controller: device already paired: %w", hap.ErrUnsupportedOperation)

	// ErrNotPaired is returned by operations that need a pairing.
	ErrNotPaired = fmt.Errorf("controller: device not paired: %w", hap.ErrUnsupportedOperation)

	// ErrNoPendingPairing is returned by ProvidePIN when no attempt waits
	// for a code.
	ErrNoPendingPairing = fmt.Errorf("controller: no pairing attempt awaiting a PIN: %w", hap.ErrValidation)

	// ErrNoGATTDialer is returned for BLE accessories when the controller
	// has no Bluetooth access.
	ErrNoGATTDialer = fmt.Errorf("controller: BLE accessory without a GATT dialer: %w", hap.ErrUnsupportedOperation)

	// ErrUnsupportedTransport is returned for descriptors with an unknown
	// transport kind.
	ErrUnsupportedTransport = fmt.Errorf("controller: unsupported transport: %w", hap.ErrUnsupportedOperation)

	// ErrUnknownProperty is returned for property or action names the
	// logical device does not expose.
	ErrUnknownProperty = fmt.Errorf("controller: unknown property: %w", hap.ErrValidation)

	// ErrReadOnly is returned when setting a read-only property.
	ErrReadOnly = fmt.Errorf("controller: property is read-only: %w", hap.ErrUnsupportedOperation)

	// ErrForeignCharacteristic is returned when an operation on a bridged
	// logical device names a characteristic of another accessory.
	ErrForeignCharacteristic = fmt.Errorf("controller: characteristic outside the logical device: %w", hap.ErrValidation)
)
