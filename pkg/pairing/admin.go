package pairing

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/backkem/hap/pkg/tlv"
)

// Pairing is one controller registered on an accessory.
type Pairing struct {
	ID        string
	PublicKey ed25519.PublicKey
	Admin     bool
}

// AddPairing registers another controller. The exchanger must run over a
// verified admin session.
func AddPairing(ctx context.Context, ex Exchanger, p Pairing) error {
	perm := tlv.PermissionUser
	if p.Admin {
		perm = tlv.PermissionAdmin
	}
	req := tlv.NewWriter().
		AddByte(tlv.TypeState, 1).
		AddByte(tlv.TypeMethod, byte(tlv.MethodAddPairing)).
		AddString(tlv.TypeIdentifier, p.ID).
		AddBytes(tlv.TypePublicKey, p.PublicKey).
		AddByte(tlv.TypePermissions, perm).
		Bytes()
	return simpleAdminRequest(ctx, ex, req)
}

// RemovePairing removes the controller with pairing identifier id. Removing
// the calling controller's own identifier unpairs it.
func RemovePairing(ctx context.Context, ex Exchanger, id string) error {
	req := tlv.NewWriter().
		AddByte(tlv.TypeState, 1).
		AddByte(tlv.TypeMethod, byte(tlv.MethodRemovePairing)).
		AddString(tlv.TypeIdentifier, id).
		Bytes()
	return simpleAdminRequest(ctx, ex, req)
}

// ListPairings returns every controller registered on the accessory.
func ListPairings(ctx context.Context, ex Exchanger) ([]Pairing, error) {
	req := tlv.NewWriter().
		AddByte(tlv.TypeState, 1).
		AddByte(tlv.TypeMethod, byte(tlv.MethodListPairings)).
		Bytes()
	resp, err := ex.Exchange(ctx, EndpointPairings, req)
	if err != nil {
		return nil, err
	}
	// Errors and the State item arrive in the first entry.
	if _, err := checkResponse(resp, 2); err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeList(resp)
	if err != nil {
		return nil, err
	}

	out := make([]Pairing, 0, len(entries))
	for i, e := range entries {
		id, err := e.Require(tlv.TypeIdentifier, 0)
		if err != nil {
			return nil, fmt.Errorf("pairing entry %d: %w", i, err)
		}
		pk, err := e.Require(tlv.TypePublicKey, ed25519.PublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("pairing entry %d: %w", i, err)
		}
		perm, _ := e.Byte(tlv.TypePermissions)
		out = append(out, Pairing{
			ID:        string(id),
			PublicKey: ed25519.PublicKey(pk),
			Admin:     perm&tlv.PermissionAdmin != 0,
		})
	}
	return out, nil
}

func simpleAdminRequest(ctx context.Context, ex Exchanger, req []byte) error {
	resp, err := ex.Exchange(ctx, EndpointPairings, req)
	if err != nil {
		return err
	}
	_, err = checkResponse(resp, 2)
	return err
}
