package hap

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rigado/ble"
)

// TransportKind identifies how an accessory is reached.
type TransportKind int

const (
	// TransportUnknown is the zero value.
	TransportUnknown TransportKind = iota

	// TransportIP is HAP over TCP/HTTP with an encrypted stream.
	TransportIP

	// TransportBLE is HAP over Bluetooth LE GATT procedures.
	TransportBLE
)

// String returns the transport name.
func (k TransportKind) String() string {
	switch k {
	case TransportIP:
		return "IP"
	case TransportBLE:
		return "BLE"
	default:
		return "Unknown"
	}
}

// StatusFlags are the "sf" TXT record / advertisement status bits.
type StatusFlags uint8

const (
	// StatusNotPaired is set while the accessory has no controller pairing.
	StatusNotPaired StatusFlags = 0x01

	// StatusNotConfiguredForWiFi is set by IP accessories not joined to Wi-Fi.
	StatusNotConfiguredForWiFi StatusFlags = 0x02

	// StatusProblem is set when the accessory reports a fault.
	StatusProblem StatusFlags = 0x04
)

// AccessoryDescriptor describes one discovered accessory. It is immutable:
// a rediscovery produces a new descriptor that replaces the old one.
type AccessoryDescriptor struct {
	// Transport selects the IP or BLE session implementation.
	Transport TransportKind

	// DeviceID is the accessory's pairing identifier (AA:BB:CC:DD:EE:FF).
	DeviceID string

	// Name is the advertised instance or local name.
	Name string

	// Model is the "md" TXT value (IP only).
	Model string

	// Host and Port address an IP accessory.
	Host string
	Port int

	// Peripheral addresses a BLE accessory.
	Peripheral ble.Addr

	// Category is the accessory category identifier ("ci").
	Category Category

	// ConfigNumber changes whenever the accessory database changes ("c#").
	ConfigNumber uint32

	// StateNumber is the IP state number ("s#").
	StateNumber uint32

	// GlobalStateNumber is the BLE GSN, bumped on every value change.
	GlobalStateNumber uint16

	// FeatureFlags are the pairing feature flags ("ff").
	FeatureFlags uint8

	// Status carries the status flags ("sf").
	Status StatusFlags

	// ProtocolVersion is the HAP protocol version ("pv").
	ProtocolVersion string
}

// Address returns host:port for IP accessories, the peripheral address
// string for BLE accessories.
func (d *AccessoryDescriptor) Address() string {
	switch d.Transport {
	case TransportIP:
		return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	case TransportBLE:
		if d.Peripheral != nil {
			return d.Peripheral.String()
		}
	}
	return ""
}

// Paired reports whether the accessory advertises an existing pairing.
func (d *AccessoryDescriptor) Paired() bool {
	return d.Status&StatusNotPaired == 0
}

// String implements fmt.Stringer.
func (d *AccessoryDescriptor) String() string {
	return fmt.Sprintf("%s %s (%s) @ %s", d.Transport, d.DeviceID, d.Name, d.Address())
}
