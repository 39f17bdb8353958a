package accessory

import "math"

// Format is a characteristic value format.
type Format string

// Characteristic formats.
const (
	FormatBool   Format = "bool"
	FormatUInt8  Format = "uint8"
	FormatUInt16 Format = "uint16"
	FormatUInt32 Format = "uint32"
	FormatUInt64 Format = "uint64"
	FormatInt    Format = "int"
	FormatFloat  Format = "float"
	FormatString Format = "string"
	FormatTLV8   Format = "tlv8"
	FormatData   Format = "data"
)

// IsInteger reports whether f is an integer format.
func (f Format) IsInteger() bool {
	switch f {
	case FormatUInt8, FormatUInt16, FormatUInt32, FormatUInt64, FormatInt:
		return true
	}
	return false
}

// IsNumeric reports whether f is an integer or float format.
func (f Format) IsNumeric() bool {
	return f.IsInteger() || f == FormatFloat
}

// twoTo64 is exact as a float64, unlike math.MaxUint64 which rounds up to
// it. Conversions from the uint64 range go through toUint64.
const twoTo64 = 1 << 64

// bounds returns the representable range of a numeric format.
func (f Format) bounds() (lo, hi float64) {
	switch f {
	case FormatUInt8:
		return 0, math.MaxUint8
	case FormatUInt16:
		return 0, math.MaxUint16
	case FormatUInt32:
		return 0, math.MaxUint32
	case FormatUInt64:
		return 0, twoTo64
	case FormatInt:
		return math.MinInt32, math.MaxInt32
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// Perm is a characteristic permission.
type Perm string

// Characteristic permissions.
const (
	PermPairedRead  Perm = "pr"
	PermPairedWrite Perm = "pw"
	PermEvents      Perm = "ev"
	PermAdditional  Perm = "aa"
	PermTimedWrite  Perm = "tw"
	PermHidden      Perm = "hd"
	PermWriteResp   Perm = "wr"
)

// Unit is a characteristic unit.
type Unit string

// Characteristic units.
const (
	UnitCelsius    Unit = "celsius"
	UnitPercentage Unit = "percentage"
	UnitArcDegrees Unit = "arcdegrees"
	UnitLux        Unit = "lux"
	UnitSeconds    Unit = "seconds"
)
