package controller

import (
	"fmt"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/hap"
)

// EventKind identifies an Event.
type EventKind int

const (
	// EventDiscovered is sent the first time a device ID is seen.
	EventDiscovered EventKind = iota + 1

	// EventUpdated is sent when a rediscovery changes the descriptor.
	EventUpdated

	// EventPINRequired is sent when pairing waits for ProvidePIN.
	EventPINRequired

	// EventPaired is sent after pairing data has been stored.
	EventPaired

	// EventConnected is sent once a session is verified and the
	// accessory database has been read.
	EventConnected

	// EventDisconnected is sent when a session is closed.
	EventDisconnected

	// EventUnpaired is sent after a device or a bridged logical device
	// has been removed.
	EventUnpaired

	// EventValue carries a characteristic value change.
	EventValue

	// EventError carries an error raised outside a caller's operation,
	// such as a subscription that could not be recovered.
	EventError

	// EventPINExpired is sent when a display-PIN attempt is abandoned
	// because ProvidePIN did not arrive within Config.PendingTTL.
	EventPINExpired
)

// String returns a human-readable name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "Discovered"
	case EventUpdated:
		return "Updated"
	case EventPINRequired:
		return "PINRequired"
	case EventPaired:
		return "Paired"
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventUnpaired:
		return "Unpaired"
	case EventValue:
		return "Value"
	case EventError:
		return "Error"
	case EventPINExpired:
		return "PINExpired"
	default:
		return "Unknown"
	}
}

// Event is delivered to Config.OnEvent.
type Event struct {
	Kind EventKind

	// DeviceID is the accessory server the event concerns.
	DeviceID string

	// Descriptor is set on discovery events.
	Descriptor *hap.AccessoryDescriptor

	// Logical is the logical device a value belongs to, when known.
	Logical *LogicalDevice

	// ID, Property, Value and Raw are set on EventValue. Property is
	// empty for characteristics the catalog does not know; Value is then
	// the raw value. The synthetic color property has a zero ID.
	ID       accessory.ID
	Property string
	Value    any
	Raw      any

	Err error
}

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e.Kind {
	case EventValue:
		name := e.Property
		if name == "" {
			name = e.ID.String()
		}
		target := e.DeviceID
		if e.Logical != nil {
			target = e.Logical.ID()
		}
		return fmt.Sprintf("%s %s %s=%v", e.Kind, target, name, e.Value)
	case EventError:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.DeviceID, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.DeviceID)
	}
}
