package accessory

import (
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrNotWritable is returned by Coerce for characteristics without the
	// paired-write permission.
	ErrNotWritable = fmt.Errorf("accessory: characteristic is not writable: %w", hap.ErrUnsupportedOperation)

	// ErrNotReadable is returned when reading a characteristic without the
	// paired-read permission.
	ErrNotReadable = fmt.Errorf("accessory: characteristic is not readable: %w", hap.ErrUnsupportedOperation)

	// ErrNoNotify is returned when subscribing to a characteristic without
	// the notify permission.
	ErrNoNotify = fmt.Errorf("accessory: characteristic does not support events: %w", hap.ErrUnsupportedOperation)

	// ErrUncoercible is returned when a value cannot be converted to the
	// characteristic's format.
	ErrUncoercible = fmt.Errorf("accessory: value cannot be coerced: %w", hap.ErrValidation)

	// ErrInvalidID is returned for malformed "aid.iid" strings.
	ErrInvalidID = fmt.Errorf("accessory: invalid characteristic id: %w", hap.ErrDecode)

	// ErrInvalidType is returned for malformed type UUIDs.
	ErrInvalidType = fmt.Errorf("accessory: invalid type: %w", hap.ErrDecode)

	// ErrInvalidDatabase is returned when an attribute database fails to parse.
	ErrInvalidDatabase = fmt.Errorf("accessory: invalid attribute database: %w", hap.ErrDecode)

	// ErrNotFound is returned when an (aid, iid) pair is not in the database.
	ErrNotFound = fmt.Errorf("accessory: characteristic not found: %w", hap.ErrUnsupportedOperation)
)
