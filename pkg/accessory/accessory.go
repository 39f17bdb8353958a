package accessory

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Accessories is the attribute database of one HAP server. A bridge serves
// several accessories; a plain accessory serves one with aid 1.
type Accessories struct {
	Accessories []*Accessory `json:"accessories"`
}

// Accessory is one logical accessory.
type Accessory struct {
	AID      uint64     `json:"aid"`
	Services []*Service `json:"services"`
}

// Service groups characteristics.
type Service struct {
	IID             uint64            `json:"iid"`
	Type            Type              `json:"type"`
	Characteristics []*Characteristic `json:"characteristics"`
	Primary         bool              `json:"primary,omitempty"`
	Hidden          bool              `json:"hidden,omitempty"`
	Linked          []uint64          `json:"linked,omitempty"`
}

// Characteristic is one typed value with its metadata.
type Characteristic struct {
	// AID is filled in by Decode; it is not part of the service JSON.
	AID uint64 `json:"-"`

	IID              uint64    `json:"iid"`
	Type             Type      `json:"type"`
	Format           Format    `json:"format"`
	Perms            []Perm    `json:"perms"`
	Value            any       `json:"value,omitempty"`
	Events           *bool     `json:"ev,omitempty"`
	Description      string    `json:"description,omitempty"`
	Unit             Unit      `json:"unit,omitempty"`
	MinValue         *float64  `json:"minValue,omitempty"`
	MaxValue         *float64  `json:"maxValue,omitempty"`
	MinStep          *float64  `json:"minStep,omitempty"`
	MaxLen           *int      `json:"maxLen,omitempty"`
	MaxDataLen       *int      `json:"maxDataLen,omitempty"`
	ValidValues      []float64 `json:"valid-values,omitempty"`
	ValidValuesRange []float64 `json:"valid-values-range,omitempty"`
}

// Decode parses a GET /accessories body and indexes characteristic AIDs.
func Decode(data []byte) (*Accessories, error) {
	var a Accessories
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}
	a.link()
	for _, acc := range a.Accessories {
		for _, svc := range acc.Services {
			for _, c := range svc.Characteristics {
				c.Value = NormalizeValue(c.Format, c.Value)
			}
		}
	}
	return &a, nil
}

// Encode renders the database as JSON.
func (a *Accessories) Encode() ([]byte, error) {
	return json.Marshal(a)
}

func (a *Accessories) link() {
	for _, acc := range a.Accessories {
		for _, svc := range acc.Services {
			for _, c := range svc.Characteristics {
				c.AID = acc.AID
			}
		}
	}
}

// Accessory returns the accessory with the given aid.
func (a *Accessories) Accessory(aid uint64) *Accessory {
	for _, acc := range a.Accessories {
		if acc.AID == aid {
			return acc
		}
	}
	return nil
}

// Find returns the characteristic at id.
func (a *Accessories) Find(id ID) (*Characteristic, error) {
	if acc := a.Accessory(id.AID); acc != nil {
		if c := acc.Characteristic(id.IID); c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Characteristic returns the characteristic with the given iid.
func (a *Accessory) Characteristic(iid uint64) *Characteristic {
	for _, svc := range a.Services {
		for _, c := range svc.Characteristics {
			if c.IID == iid {
				return c
			}
		}
	}
	return nil
}

// Service returns the first service of type t.
func (a *Accessory) Service(t Type) *Service {
	for _, svc := range a.Services {
		if svc.Type == t {
			return svc
		}
	}
	return nil
}

// ServiceOf returns the service containing the characteristic iid.
func (a *Accessory) ServiceOf(iid uint64) *Service {
	for _, svc := range a.Services {
		for _, c := range svc.Characteristics {
			if c.IID == iid {
				return svc
			}
		}
	}
	return nil
}

// Characteristic returns the first characteristic of type t.
func (s *Service) Characteristic(t Type) *Characteristic {
	for _, c := range s.Characteristics {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ID returns the characteristic's address.
func (c *Characteristic) ID() ID {
	return ID{AID: c.AID, IID: c.IID}
}

// Has reports whether c carries permission p.
func (c *Characteristic) Has(p Perm) bool {
	for _, q := range c.Perms {
		if q == p {
			return true
		}
	}
	return false
}

// Readable reports whether c can be read.
func (c *Characteristic) Readable() bool { return c.Has(PermPairedRead) }

// Writable reports whether c can be written.
func (c *Characteristic) Writable() bool { return c.Has(PermPairedWrite) }

// Notifies reports whether c supports event notifications.
func (c *Characteristic) Notifies() bool { return c.Has(PermEvents) }
