package catalog

import (
	"fmt"
	"math"

	"github.com/backkem/hap/pkg/accessory"
)

// ValueType is the type of an exposed property.
type ValueType string

// Property value types.
const (
	TypeBoolean ValueType = "boolean"
	TypeInteger ValueType = "integer"
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
)

// Conversion transforms between the accessory's raw value and the value
// exposed to users.
type Conversion int

const (
	// ConvertNone passes values through.
	ConvertNone Conversion = iota

	// ConvertMiredKelvin exposes a mired color temperature as kelvin.
	ConvertMiredKelvin
)

// Action marks an entry as a write-only action rather than a property.
type Action struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
}

// Entry is the metadata for one characteristic.
type Entry struct {
	// Label is the property name exposed to users.
	Label string

	Type ValueType
	Unit string

	// Min, Max and Step are in exposed units. Nil falls back to the
	// characteristic's own metadata.
	Min, Max, Step *float64

	// Enum maps raw integer values to labels.
	Enum map[int64]string

	// Tags are capability tags for the property.
	Tags []string

	Convert Conversion

	// Action, when set, exposes the characteristic as a write-only action.
	Action *Action

	inverse map[string]int64
}

// ServiceEntry is the metadata for one service type.
type ServiceEntry struct {
	Label string

	// Capabilities are the device capability tags a service contributes.
	Capabilities []string
}

func (e *Entry) index() {
	if len(e.Enum) == 0 {
		return
	}
	e.inverse = make(map[string]int64, len(e.Enum))
	for raw, label := range e.Enum {
		e.inverse[label] = raw
	}
}

// EnumLabel returns the label of raw enum value v.
func (e *Entry) EnumLabel(v int64) (string, bool) {
	label, ok := e.Enum[v]
	return label, ok
}

// EnumValue returns the raw value for label.
func (e *Entry) EnumValue(label string) (int64, bool) {
	v, ok := e.inverse[label]
	return v, ok
}

// Interpret converts a raw characteristic value into the exposed value.
// Values the entry cannot interpret are returned unchanged.
func (e *Entry) Interpret(raw any) any {
	if raw == nil {
		return nil
	}
	if len(e.Enum) > 0 {
		if n, ok := accessory.NormalizeValue(accessory.FormatInt, raw).(int64); ok {
			if label, ok := e.Enum[n]; ok {
				return label
			}
		}
		return raw
	}
	if e.Convert == ConvertMiredKelvin {
		if f, ok := accessory.NormalizeValue(accessory.FormatFloat, raw).(float64); ok && f > 0 {
			return int64(math.Round(1e6 / f))
		}
	}
	return raw
}

// Encode converts an exposed value into the raw value to write. Enum
// entries accept either a label or the raw number.
func (e *Entry) Encode(v any) (any, error) {
	if len(e.Enum) > 0 {
		if label, ok := v.(string); ok {
			raw, ok := e.EnumValue(label)
			if !ok {
				return nil, fmt.Errorf("%w: %q for %s", ErrUnknownLabel, label, e.Label)
			}
			return raw, nil
		}
		return v, nil
	}
	if e.Convert == ConvertMiredKelvin {
		f, ok := accessory.NormalizeValue(accessory.FormatFloat, v).(float64)
		if !ok || f <= 0 || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %v kelvin", ErrInvalidValue, v)
		}
		return int64(math.Round(1e6 / f)), nil
	}
	return v, nil
}

func f64(v float64) *float64 { return &v }
