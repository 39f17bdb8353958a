package discovery

import (
	"encoding/binary"
	"fmt"

	"github.com/backkem/hap/pkg/hap"
	"github.com/rigado/ble"
)

// HAP manufacturer data framing.
const (
	AppleCompanyID       = 0x004C
	HAPAdvertisementType = 0x06

	// hapAdvMinLength is the payload length after the STL byte without the
	// optional setup hash.
	hapAdvMinLength = 13
)

// Advertisement is the HAP payload of a regular BLE advertisement.
type Advertisement struct {
	Status            hap.StatusFlags
	DeviceID          string
	Category          hap.Category
	GlobalStateNumber uint16
	ConfigNumber      uint8
	CompatibleVersion uint8

	// SetupHash is present on accessories that advertise one.
	SetupHash []byte
}

// ParseManufacturerData decodes HAP manufacturer data, including the
// leading company identifier.
func ParseManufacturerData(data []byte) (*Advertisement, error) {
	if len(data) < 4 ||
		binary.LittleEndian.Uint16(data[0:2]) != AppleCompanyID ||
		data[2] != HAPAdvertisementType {
		return nil, ErrNotHAPAdvertisement
	}
	n := int(data[3] & 0x1F)
	body := data[4:]
	if n < hapAdvMinLength || len(body) < n {
		return nil, fmt.Errorf("%w: payload length %d of %d", ErrNotHAPAdvertisement, len(body), n)
	}
	body = body[:n]

	a := &Advertisement{
		Status: hap.StatusFlags(body[0]),
		DeviceID: fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
			body[1], body[2], body[3], body[4], body[5], body[6]),
		Category:          hap.Category(binary.LittleEndian.Uint16(body[7:9])),
		GlobalStateNumber: binary.LittleEndian.Uint16(body[9:11]),
		ConfigNumber:      body[11],
		CompatibleVersion: body[12],
	}
	if n >= hapAdvMinLength+4 {
		a.SetupHash = append([]byte(nil), body[13:17]...)
	}
	return a, nil
}

// IsHAPAdvertisement reports whether adv carries HAP manufacturer data. It
// has the shape of a ble.AdvFilter.
func IsHAPAdvertisement(adv ble.Advertisement) bool {
	data := adv.ManufacturerData()
	return len(data) >= 3 &&
		binary.LittleEndian.Uint16(data[0:2]) == AppleCompanyID &&
		data[2] == HAPAdvertisementType
}

// ParseAdvertisement builds a BLE descriptor from a scanned advertisement.
func ParseAdvertisement(adv ble.Advertisement) (*hap.AccessoryDescriptor, error) {
	a, err := ParseManufacturerData(adv.ManufacturerData())
	if err != nil {
		return nil, err
	}
	addr := adv.Addr()
	if addr == nil {
		return nil, fmt.Errorf("%w: no peripheral address", ErrNotHAPAdvertisement)
	}
	name := adv.LocalName()

	return &hap.AccessoryDescriptor{
		Transport:         hap.TransportBLE,
		DeviceID:          a.DeviceID,
		Name:              name,
		Peripheral:        addr,
		Category:          a.Category,
		ConfigNumber:      uint32(a.ConfigNumber),
		GlobalStateNumber: a.GlobalStateNumber,
		Status:            a.Status,
	}, nil
}
