package accessory

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// appleBase is the suffix shared by every Apple-defined HAP type.
const appleBase = "-0000-1000-8000-0026BB765291"

// Type is a service or characteristic type UUID.
type Type uuid.UUID

// ShortType returns the Apple-defined type with the given short code.
func ShortType(code uint32) Type {
	return Type(uuid.MustParse(fmt.Sprintf("%08X%s", code, appleBase)))
}

// ParseType parses a short hex code ("25", "0000004A") or a full UUID.
func ParseType(s string) (Type, error) {
	if len(s) <= 8 && !strings.Contains(s, "-") {
		code, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, s)
		}
		return ShortType(uint32(code)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return Type(u), nil
}

// MustParseType is ParseType for constants.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TypeFromLE decodes the 16-byte little-endian UUID form used in HAP-BLE
// PDUs.
func TypeFromLE(b []byte) (Type, error) {
	if len(b) != 16 {
		return Type{}, fmt.Errorf("%w: %d byte uuid", ErrInvalidType, len(b))
	}
	var t Type
	for i := 0; i < 16; i++ {
		t[i] = b[15-i]
	}
	return t, nil
}

// LE returns the 16-byte little-endian form of t.
func (t Type) LE() []byte {
	out := make([]byte, 16)
	for i := 0; i < 16; i++ {
		out[i] = t[15-i]
	}
	return out
}

// IsApple reports whether t is derived from the Apple base UUID.
func (t Type) IsApple() bool {
	return strings.HasSuffix(strings.ToUpper(uuid.UUID(t).String()), appleBase)
}

// Code returns the short code of an Apple-defined type.
func (t Type) Code() (uint32, bool) {
	if !t.IsApple() {
		return 0, false
	}
	return binary.BigEndian.Uint32(t[:4]), true
}

// String returns the short form for Apple types and the upper-case UUID
// otherwise.
func (t Type) String() string {
	if code, ok := t.Code(); ok {
		return strconv.FormatUint(uint64(code), 16)
	}
	return strings.ToUpper(uuid.UUID(t).String())
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(t.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
