package tlv

import "bytes"

// maxChunk is the largest value a single item can carry.
const maxChunk = 255

// Item is a single logical TLV8 item. Value may be longer than 255 bytes;
// it is fragmented on encode.
type Item struct {
	Type  Type
	Value []byte
}

// Writer builds a TLV8 message. The zero value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// AddBytes appends an item, splitting values longer than 255 bytes into
// consecutive chunks of the same type.
func (w *Writer) AddBytes(t Type, v []byte) *Writer {
	if len(v) == 0 {
		w.buf.WriteByte(byte(t))
		w.buf.WriteByte(0)
		return w
	}
	for len(v) > 0 {
		n := len(v)
		if n > maxChunk {
			n = maxChunk
		}
		w.buf.WriteByte(byte(t))
		w.buf.WriteByte(byte(n))
		w.buf.Write(v[:n])
		v = v[n:]
	}
	return w
}

// AddByte appends a single-octet item.
func (w *Writer) AddByte(t Type, v byte) *Writer {
	return w.AddBytes(t, []byte{v})
}

// AddUint appends an unsigned integer in the minimum number of
// little-endian octets (at least one).
func (w *Writer) AddUint(t Type, v uint64) *Writer {
	b := []byte{byte(v)}
	for v >>= 8; v > 0; v >>= 8 {
		b = append(b, byte(v))
	}
	return w.AddBytes(t, b)
}

// AddString appends a UTF-8 string item.
func (w *Writer) AddString(t Type, s string) *Writer {
	return w.AddBytes(t, []byte(s))
}

// AddSeparator appends an empty separator item.
func (w *Writer) AddSeparator() *Writer {
	return w.AddBytes(TypeSeparator, nil)
}

// Len returns the encoded length so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Bytes returns a copy of the encoded message.
func (w *Writer) Bytes() []byte {
	return append([]byte(nil), w.buf.Bytes()...)
}

// Encode encodes items in order.
func Encode(items ...Item) []byte {
	w := NewWriter()
	for _, it := range items {
		w.AddBytes(it.Type, it.Value)
	}
	return w.Bytes()
}
