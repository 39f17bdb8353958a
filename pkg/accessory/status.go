package accessory

import (
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

// Status is a HAP characteristic status code.
type Status int

// Characteristic status codes.
const (
	StatusSuccess                   Status = 0
	StatusInsufficientPrivileges    Status = -70401
	StatusUnableToCommunicate       Status = -70402
	StatusBusy                      Status = -70403
	StatusReadOnly                  Status = -70404
	StatusWriteOnly                 Status = -70405
	StatusNotifyNotSupported        Status = -70406
	StatusOutOfResources            Status = -70407
	StatusTimeout                   Status = -70408
	StatusResourceDoesNotExist      Status = -70409
	StatusInvalidValue              Status = -70410
	StatusInsufficientAuthorization Status = -70411
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInsufficientPrivileges:
		return "InsufficientPrivileges"
	case StatusUnableToCommunicate:
		return "UnableToCommunicate"
	case StatusBusy:
		return "Busy"
	case StatusReadOnly:
		return "ReadOnly"
	case StatusWriteOnly:
		return "WriteOnly"
	case StatusNotifyNotSupported:
		return "NotifyNotSupported"
	case StatusOutOfResources:
		return "OutOfResources"
	case StatusTimeout:
		return "Timeout"
	case StatusResourceDoesNotExist:
		return "ResourceDoesNotExist"
	case StatusInvalidValue:
		return "InvalidValue"
	case StatusInsufficientAuthorization:
		return "InsufficientAuthorization"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// category maps a status onto the error taxonomy.
func (s Status) category() error {
	switch s {
	case StatusReadOnly, StatusWriteOnly, StatusNotifyNotSupported, StatusResourceDoesNotExist:
		return hap.ErrUnsupportedOperation
	case StatusInvalidValue:
		return hap.ErrValidation
	case StatusInsufficientPrivileges, StatusInsufficientAuthorization:
		return hap.ErrAuthentication
	default:
		return hap.ErrTransport
	}
}

// StatusError is a non-success status for one characteristic.
type StatusError struct {
	ID     ID
	Status Status
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("accessory: %s: %s", e.ID, e.Status)
}

// Unwrap returns the taxonomy category of the status.
func (e *StatusError) Unwrap() error {
	return e.Status.category()
}

// Value is a characteristic value read from or pushed by an accessory.
type Value struct {
	ID     ID
	Value  any
	Status Status
}

// Err returns a *StatusError for a non-success status, nil otherwise.
func (v Value) Err() error {
	if v.Status == StatusSuccess {
		return nil
	}
	return &StatusError{ID: v.ID, Status: v.Status}
}
