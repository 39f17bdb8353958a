package session

import (
	"github.com/backkem/hap/pkg/crypto"
)

// Role is the side of the session this process plays.
type Role int

const (
	// RoleController encrypts with the write key and decrypts with the
	// read key.
	RoleController Role = iota

	// RoleAccessory uses the keys the other way around.
	RoleAccessory
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleController:
		return "Controller"
	case RoleAccessory:
		return "Accessory"
	default:
		return "Unknown"
	}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleController || r == RoleAccessory
}

// Keys are the session keys named from the controller's point of view.
type Keys struct {
	// Write protects controller to accessory traffic.
	Write []byte

	// Read protects accessory to controller traffic.
	Read []byte
}

// DeriveKeys derives session keys from a pair-verify shared secret. The
// same derivation serves IP and BLE.
func DeriveKeys(shared []byte) (*Keys, error) {
	w, err := crypto.DeriveKey(shared, crypto.LabelControlWrite)
	if err != nil {
		return nil, err
	}
	r, err := crypto.DeriveKey(shared, crypto.LabelControlRead)
	if err != nil {
		return nil, err
	}
	return &Keys{Write: w, Read: r}, nil
}
