package transport

import (
	"bytes"
	"testing"

	"github.com/backkem/hap/pkg/hap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Fragments(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 100)
	req := &Request{Opcode: OpcodeWrite, TID: 7, IID: 0x0102, Body: body}

	frags, err := req.Fragments(20)
	require.NoError(t, err)
	require.Len(t, frags, 6)
	assert.Equal(t, []byte{0x00, 0x02, 0x07, 0x02, 0x01, 100, 0x00}, frags[0][:7])
	for _, f := range frags {
		assert.LessOrEqual(t, len(f), 20)
	}
	for _, f := range frags[1:] {
		assert.Equal(t, []byte{0x80, 0x07}, f[:2])
	}

	var rr RequestReader
	for i, f := range frags {
		done, err := rr.Add(f)
		require.NoError(t, err)
		assert.Equal(t, i == len(frags)-1, done)
	}
	assert.Equal(t, req, rr.Request())
}

func TestRequest_NoBody(t *testing.T) {
	req := &Request{Opcode: OpcodeRead, TID: 1, IID: 12}
	frags, err := req.Fragments(20)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x00, 0x03, 0x01, 0x0C, 0x00}}, frags)

	var rr RequestReader
	done, err := rr.Add(frags[0])
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, OpcodeRead, rr.Request().Opcode)
	assert.Empty(t, rr.Request().Body)
}

func TestResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		size int
	}{
		{"empty", Response{TID: 3, Status: PDUStatusInvalidInstanceID}, 20},
		{"single", Response{TID: 4, Body: []byte{1, 2, 3}}, 20},
		{"fragmented", Response{TID: 5, Body: bytes.Repeat([]byte{9}, 300)}, 44},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frags, err := tc.resp.Fragments(tc.size)
			require.NoError(t, err)

			rr := NewResponseReader()
			var done bool
			for _, f := range frags {
				done, err = rr.Add(f)
				require.NoError(t, err)
			}
			assert.True(t, done)
			got := rr.Response()
			assert.Equal(t, tc.resp.TID, got.TID)
			assert.Equal(t, tc.resp.Status, got.Status)
			assert.Equal(t, len(tc.resp.Body), len(got.Body))
			assert.True(t, bytes.Equal(tc.resp.Body, got.Body))
		})
	}
}

func TestAssembler_Errors(t *testing.T) {
	resp := &Response{TID: 9, Body: bytes.Repeat([]byte{1}, 40)}
	frags, err := resp.Fragments(20)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frags [][]byte
	}{
		{"short header", [][]byte{{0x02, 0x09}}},
		{"request control in response", [][]byte{{0x00, 0x09, 0x00}}},
		{"truncated length", [][]byte{{0x02, 0x09, 0x00, 0x05}}},
		{"continuation TID", [][]byte{frags[0], append([]byte{0x82, 0x01}, frags[1][2:]...)}},
		{"missing continuation bit", [][]byte{frags[0], append([]byte{0x02, 0x09}, frags[1][2:]...)}},
		{"overflow", [][]byte{{0x02, 0x09, 0x00, 0x01, 0x00, 0xAA, 0xBB}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := NewResponseReader()
			var err error
			for _, f := range tc.frags {
				if _, err = rr.Add(f); err != nil {
					break
				}
			}
			assert.ErrorIs(t, err, ErrMalformedPDU)
			assert.ErrorIs(t, err, hap.ErrDecode)
		})
	}
}

func TestFragments_TooSmall(t *testing.T) {
	_, err := (&Request{Body: []byte{1}}).Fragments(7)
	assert.ErrorIs(t, err, ErrMalformedPDU)
}

func TestPDUError(t *testing.T) {
	err := &PDUError{Opcode: OpcodeRead, IID: 12, Status: PDUStatusInsufficientAuthentication}
	assert.ErrorIs(t, err, ErrPDUStatus)
	assert.ErrorIs(t, err, hap.ErrTransport)
	assert.Contains(t, err.Error(), "Characteristic-Read")
	assert.Contains(t, err.Error(), "InsufficientAuthentication")
}
