package transport

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a HAP-BLE procedure opcode.
type Opcode byte

// HAP-BLE opcodes.
const (
	OpcodeSignatureRead        Opcode = 0x01
	OpcodeWrite                Opcode = 0x02
	OpcodeRead                 Opcode = 0x03
	OpcodeTimedWrite           Opcode = 0x04
	OpcodeExecuteWrite         Opcode = 0x05
	OpcodeServiceSignatureRead Opcode = 0x06
	OpcodeConfiguration        Opcode = 0x07
	OpcodeProtocolConfig       Opcode = 0x08
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpcodeSignatureRead:
		return "Characteristic-Signature-Read"
	case OpcodeWrite:
		return "Characteristic-Write"
	case OpcodeRead:
		return "Characteristic-Read"
	case OpcodeTimedWrite:
		return "Characteristic-Timed-Write"
	case OpcodeExecuteWrite:
		return "Characteristic-Execute-Write"
	case OpcodeServiceSignatureRead:
		return "Service-Signature-Read"
	case OpcodeConfiguration:
		return "Characteristic-Configuration"
	case OpcodeProtocolConfig:
		return "Protocol-Configuration"
	default:
		return fmt.Sprintf("Opcode(0x%02x)", byte(o))
	}
}

// PDUStatus is the status byte of a HAP-BLE response.
type PDUStatus byte

// HAP-BLE response statuses.
const (
	PDUStatusSuccess                    PDUStatus = 0x00
	PDUStatusUnsupportedPDU             PDUStatus = 0x01
	PDUStatusMaxProcedures              PDUStatus = 0x02
	PDUStatusInsufficientAuthorization  PDUStatus = 0x03
	PDUStatusInvalidInstanceID          PDUStatus = 0x04
	PDUStatusInsufficientAuthentication PDUStatus = 0x05
	PDUStatusInvalidRequest             PDUStatus = 0x06
)

// String returns the status name.
func (s PDUStatus) String() string {
	switch s {
	case PDUStatusSuccess:
		return "Success"
	case PDUStatusUnsupportedPDU:
		return "UnsupportedPDU"
	case PDUStatusMaxProcedures:
		return "MaxProcedures"
	case PDUStatusInsufficientAuthorization:
		return "InsufficientAuthorization"
	case PDUStatusInvalidInstanceID:
		return "InvalidInstanceID"
	case PDUStatusInsufficientAuthentication:
		return "InsufficientAuthentication"
	case PDUStatusInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("PDUStatus(0x%02x)", byte(s))
	}
}

// Control field bits.
const (
	controlContinuation = 0x80
	controlResponse     = 0x02
)

// Header sizes, excluding the 2-byte body length.
const (
	requestHeaderSize      = 5
	responseHeaderSize     = 3
	continuationHeaderSize = 2
	bodyLengthSize         = 2
)

// Request is a HAP-BLE request PDU.
type Request struct {
	Opcode Opcode
	TID    byte
	IID    uint16
	Body   []byte
}

// Response is a HAP-BLE response PDU.
type Response struct {
	TID    byte
	Status PDUStatus
	Body   []byte
}

// Fragments splits r into fragments of at most size bytes.
func (r *Request) Fragments(size int) ([][]byte, error) {
	hdr := []byte{0x00, byte(r.Opcode), r.TID, 0, 0}
	binary.LittleEndian.PutUint16(hdr[3:], r.IID)
	return fragment(hdr, r.TID, 0x00, r.Body, size)
}

// Fragments splits r into fragments of at most size bytes.
func (r *Response) Fragments(size int) ([][]byte, error) {
	hdr := []byte{controlResponse, r.TID, byte(r.Status)}
	return fragment(hdr, r.TID, controlResponse, r.Body, size)
}

func fragment(hdr []byte, tid, control byte, body []byte, size int) ([][]byte, error) {
	if size <= len(hdr)+bodyLengthSize || size <= continuationHeaderSize {
		return nil, fmt.Errorf("%w: fragment size %d too small", ErrMalformedPDU, size)
	}
	if len(body) > 0xFFFF {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrMalformedPDU, len(body))
	}

	first := append([]byte(nil), hdr...)
	if len(body) == 0 {
		return [][]byte{first}, nil
	}
	first = binary.LittleEndian.AppendUint16(first, uint16(len(body)))
	n := min(size-len(first), len(body))
	first = append(first, body[:n]...)
	out := [][]byte{first}
	body = body[n:]

	for len(body) > 0 {
		n := min(size-continuationHeaderSize, len(body))
		frag := make([]byte, 0, continuationHeaderSize+n)
		frag = append(frag, control|controlContinuation, tid)
		frag = append(frag, body[:n]...)
		out = append(out, frag)
		body = body[n:]
	}
	return out, nil
}

// assembler reassembles one PDU from fragments.
type assembler struct {
	response bool
	started  bool
	tid      byte
	want     int
	body     []byte
	header   []byte
}

// add consumes one fragment and reports whether the PDU is complete.
func (a *assembler) add(frag []byte) (bool, error) {
	if !a.started {
		size, ctl := requestHeaderSize, byte(0x00)
		if a.response {
			size, ctl = responseHeaderSize, controlResponse
		}
		if len(frag) < size {
			return false, fmt.Errorf("%w: %d byte header", ErrMalformedPDU, len(frag))
		}
		if frag[0] != ctl {
			return false, fmt.Errorf("%w: control 0x%02x", ErrMalformedPDU, frag[0])
		}
		a.started = true
		a.header = append([]byte(nil), frag[:size]...)
		if a.response {
			a.tid = frag[1]
		} else {
			a.tid = frag[2]
		}
		rest := frag[size:]
		if len(rest) == 0 {
			return true, nil
		}
		if len(rest) < bodyLengthSize {
			return false, fmt.Errorf("%w: truncated body length", ErrMalformedPDU)
		}
		a.want = int(binary.LittleEndian.Uint16(rest))
		a.body = append(a.body, rest[bodyLengthSize:]...)
	} else {
		if len(frag) < continuationHeaderSize || frag[0]&controlContinuation == 0 {
			return false, fmt.Errorf("%w: expected continuation", ErrMalformedPDU)
		}
		if frag[1] != a.tid {
			return false, fmt.Errorf("%w: continuation TID %d, want %d", ErrMalformedPDU, frag[1], a.tid)
		}
		a.body = append(a.body, frag[continuationHeaderSize:]...)
	}
	if len(a.body) > a.want {
		return false, fmt.Errorf("%w: body overflows declared length %d", ErrMalformedPDU, a.want)
	}
	return len(a.body) == a.want, nil
}

// RequestReader reassembles a fragmented request.
type RequestReader struct {
	a assembler
}

// Add consumes one fragment and reports whether the request is complete.
func (r *RequestReader) Add(frag []byte) (bool, error) {
	return r.a.add(frag)
}

// Request returns the reassembled request.
func (r *RequestReader) Request() *Request {
	h := r.a.header
	return &Request{
		Opcode: Opcode(h[1]),
		TID:    h[2],
		IID:    binary.LittleEndian.Uint16(h[3:]),
		Body:   r.a.body,
	}
}

// ResponseReader reassembles a fragmented response.
type ResponseReader struct {
	a assembler
}

// NewResponseReader returns a reader for responses.
func NewResponseReader() *ResponseReader {
	return &ResponseReader{a: assembler{response: true}}
}

// Add consumes one fragment and reports whether the response is complete.
func (r *ResponseReader) Add(frag []byte) (bool, error) {
	return r.a.add(frag)
}

// Response returns the reassembled response.
func (r *ResponseReader) Response() *Response {
	h := r.a.header
	return &Response{TID: h[1], Status: PDUStatus(h[2]), Body: r.a.body}
}
