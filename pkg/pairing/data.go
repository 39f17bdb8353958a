package pairing

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/backkem/hap/pkg/hap"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ErrInvalidData is returned when a pairing data blob cannot be decoded or
// carries keys of the wrong size.
var ErrInvalidData = fmt.Errorf("pairing: invalid pairing data: %w", hap.ErrDecode)

// Identity is a controller's long-term identity: a pairing identifier and
// an Ed25519 key pair.
type Identity struct {
	ID         string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// NewIdentity creates a controller identity with a random UUID pairing
// identifier. A nil rand uses crypto/rand.
func NewIdentity(rand io.Reader) (*Identity, error) {
	var (
		id  uuid.UUID
		err error
	)
	if rand == nil {
		id, err = uuid.NewRandom()
	} else {
		id, err = uuid.NewRandomFromReader(rand)
	}
	if err != nil {
		return nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Identity{ID: id.String(), PublicKey: pub, PrivateKey: priv}, nil
}

// Data is the outcome of a successful pair-setup: everything needed to
// pair-verify with the accessory later. It is never mutated; re-pairing
// produces a new value.
type Data struct {
	ControllerID   string             `cbor:"1,keyasint"`
	ControllerLTPK ed25519.PublicKey  `cbor:"2,keyasint"`
	ControllerLTSK ed25519.PrivateKey `cbor:"3,keyasint"`
	AccessoryID    string             `cbor:"4,keyasint"`
	AccessoryLTPK  ed25519.PublicKey  `cbor:"5,keyasint"`
}

// Identity returns the controller half of d.
func (d *Data) Identity() *Identity {
	return &Identity{ID: d.ControllerID, PublicKey: d.ControllerLTPK, PrivateKey: d.ControllerLTSK}
}

// Validate checks identifiers and key sizes.
func (d *Data) Validate() error {
	switch {
	case d.ControllerID == "" || d.AccessoryID == "":
		return fmt.Errorf("%w: empty identifier", ErrInvalidData)
	case len(d.ControllerLTPK) != ed25519.PublicKeySize:
		return fmt.Errorf("%w: controller public key is %d bytes", ErrInvalidData, len(d.ControllerLTPK))
	case len(d.ControllerLTSK) != ed25519.PrivateKeySize:
		return fmt.Errorf("%w: controller private key is %d bytes", ErrInvalidData, len(d.ControllerLTSK))
	case len(d.AccessoryLTPK) != ed25519.PublicKeySize:
		return fmt.Errorf("%w: accessory public key is %d bytes", ErrInvalidData, len(d.AccessoryLTPK))
	}
	return nil
}

var dataEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// MarshalBinary encodes d as an opaque CBOR blob for storage.
func (d *Data) MarshalBinary() ([]byte, error) {
	return dataEncMode.Marshal(d)
}

// UnmarshalBinary decodes a blob produced by MarshalBinary.
func (d *Data) UnmarshalBinary(b []byte) error {
	var out Data
	if err := cbor.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*d = out
	return nil
}
