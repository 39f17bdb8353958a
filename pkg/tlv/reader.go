package tlv

import "fmt"

// Map is a decoded TLV8 message keyed by item type. Fragmented values are
// already reassembled.
type Map map[Type][]byte

// Has reports whether an item of type t is present.
func (m Map) Has(t Type) bool {
	_, ok := m[t]
	return ok
}

// Bytes returns the value of type t, or nil.
func (m Map) Bytes(t Type) []byte {
	return m[t]
}

// Byte returns the first octet of the value of type t.
func (m Map) Byte(t Type) (byte, bool) {
	v, ok := m[t]
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

// Uint decodes the value of type t as a little-endian unsigned integer of
// up to eight octets.
func (m Map) Uint(t Type) (uint64, bool) {
	v, ok := m[t]
	if !ok || len(v) == 0 || len(v) > 8 {
		return 0, false
	}
	var n uint64
	for i := len(v) - 1; i >= 0; i-- {
		n = n<<8 | uint64(v[i])
	}
	return n, true
}

// String returns the value of type t as a string.
func (m Map) String(t Type) string {
	return string(m[t])
}

// Require returns the value of type t or ErrMissingItem. A non-zero size
// additionally enforces the exact value length.
func (m Map) Require(t Type, size int) ([]byte, error) {
	v, ok := m[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingItem, t)
	}
	if size > 0 && len(v) != size {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrItemSize, t, len(v), size)
	}
	return v, nil
}

// DecodeItems decodes data into its logical items in wire order,
// concatenating consecutive chunks of the same type.
func DecodeItems(data []byte) ([]Item, error) {
	var items []Item
	prev := -1
	for off := 0; off < len(data); {
		if len(data)-off < 2 {
			return nil, fmt.Errorf("%w: header at offset %d", ErrTruncated, off)
		}
		t := Type(data[off])
		n := int(data[off+1])
		off += 2
		if len(data)-off < n {
			return nil, fmt.Errorf("%w: %s wants %d bytes, %d left", ErrTruncated, t, n, len(data)-off)
		}
		v := data[off : off+n]
		off += n

		// A separator always starts a new item, even after another separator.
		if prev == int(t) && t != TypeSeparator {
			last := &items[len(items)-1]
			last.Value = append(last.Value, v...)
			continue
		}
		items = append(items, Item{Type: t, Value: append([]byte{}, v...)})
		prev = int(t)
	}
	return items, nil
}

// Decode decodes a TLV8 message into a Map. Unknown types are kept. When a
// type appears in more than one non-adjacent run, the last one wins.
func Decode(data []byte) (Map, error) {
	items, err := DecodeItems(data)
	if err != nil {
		return nil, err
	}
	m := make(Map, len(items))
	for _, it := range items {
		if it.Type == TypeSeparator {
			continue
		}
		m[it.Type] = it.Value
	}
	return m, nil
}

// DecodeList decodes a message holding separator-delimited entries.
func DecodeList(data []byte) ([]Map, error) {
	items, err := DecodeItems(data)
	if err != nil {
		return nil, err
	}
	var list []Map
	cur := Map{}
	for _, it := range items {
		if it.Type == TypeSeparator {
			list = append(list, cur)
			cur = Map{}
			continue
		}
		cur[it.Type] = it.Value
	}
	if len(cur) > 0 || len(list) == 0 {
		list = append(list, cur)
	}
	return list, nil
}
