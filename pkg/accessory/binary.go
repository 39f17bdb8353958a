package accessory

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBinary renders v in the little-endian GATT presentation of format,
// as carried in HAP-BLE value TLVs. Data and tlv8 values are base64 strings
// or raw bytes.
func EncodeBinary(format Format, v any) ([]byte, error) {
	switch format {
	case FormatBool:
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v to bool", ErrUncoercible, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case FormatString:
		s, ok := toString(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v to string", ErrUncoercible, v)
		}
		return []byte(s), nil

	case FormatData, FormatTLV8:
		switch t := v.(type) {
		case []byte:
			return append([]byte(nil), t...), nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not base64", ErrUncoercible, t)
			}
			return raw, nil
		}
		return nil, fmt.Errorf("%w: %T to %s", ErrUncoercible, v, format)
	}

	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v to %s", ErrUncoercible, v, format)
	}
	switch format {
	case FormatUInt8:
		return []byte{uint8(f)}, nil
	case FormatUInt16:
		return binary.LittleEndian.AppendUint16(nil, uint16(f)), nil
	case FormatUInt32:
		return binary.LittleEndian.AppendUint32(nil, uint32(f)), nil
	case FormatUInt64:
		return binary.LittleEndian.AppendUint64(nil, uint64(f)), nil
	case FormatInt:
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(f))), nil
	case FormatFloat:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))), nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrUncoercible, format)
}

// DecodeBinary parses a little-endian GATT value into the same Go types
// NormalizeValue produces. Data and tlv8 values are returned as base64
// strings, matching the IP representation.
func DecodeBinary(format Format, b []byte) (any, error) {
	need := 0
	switch format {
	case FormatBool, FormatUInt8:
		need = 1
	case FormatUInt16:
		need = 2
	case FormatUInt32, FormatInt, FormatFloat:
		need = 4
	case FormatUInt64:
		need = 8
	}
	if len(b) < need {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrUncoercible, len(b), format)
	}

	switch format {
	case FormatBool:
		return b[0] != 0, nil
	case FormatUInt8:
		return int64(b[0]), nil
	case FormatUInt16:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case FormatUInt32:
		return int64(binary.LittleEndian.Uint32(b)), nil
	case FormatUInt64:
		return binary.LittleEndian.Uint64(b), nil
	case FormatInt:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case FormatFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case FormatString:
		return string(b), nil
	case FormatData, FormatTLV8:
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrUncoercible, format)
}
