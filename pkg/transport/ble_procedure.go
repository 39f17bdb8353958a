package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/pion/logging"
)

// Pairing characteristic types.
var (
	TypePairingService = accessory.ShortType(0x55)
	TypePairSetup      = accessory.ShortType(0x4C)
	TypePairVerify     = accessory.ShortType(0x4E)
	TypePairingFeature = accessory.ShortType(0x4F)
	TypePairings       = accessory.ShortType(0x50)
)

// bleLink runs HAP-BLE procedures over one GATTLink. It is only used from
// the queue worker.
type bleLink struct {
	link  GATTLink
	sess  *session.Session
	tid   byte
	chars []GATTCharacteristic
	iids  map[accessory.Type]uint64
}

func newBLELink(link GATTLink) *bleLink {
	l := &bleLink{
		link:  link,
		chars: link.Characteristics(),
		iids:  make(map[accessory.Type]uint64),
	}
	for _, c := range l.chars {
		if _, ok := l.iids[c.Type]; !ok {
			l.iids[c.Type] = c.IID
		}
	}
	return l
}

func (l *bleLink) fragmentSize() int {
	size := l.link.MTU() - attOverhead
	if l.sess != nil {
		size -= crypto.TagSize
	}
	return size
}

// do runs one procedure: the request is written fragment by fragment, then
// the response is read until complete.
func (l *bleLink) do(ctx context.Context, op Opcode, iid uint64, body []byte) (*Response, error) {
	l.tid++
	req := &Request{Opcode: op, TID: l.tid, IID: uint16(iid), Body: body}
	frags, err := req.Fragments(l.fragmentSize())
	if err != nil {
		return nil, err
	}
	for _, f := range frags {
		if l.sess != nil {
			if f, err = l.sess.Seal(f, nil); err != nil {
				return nil, err
			}
		}
		if err := l.link.Write(ctx, iid, f); err != nil {
			return nil, linkError(ctx, err)
		}
	}

	rr := NewResponseReader()
	for {
		data, err := l.link.Read(ctx, iid)
		if err != nil {
			return nil, linkError(ctx, err)
		}
		if l.sess != nil {
			if data, err = l.sess.Open(data, nil); err != nil {
				return nil, err
			}
		}
		done, err := rr.Add(data)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	resp := rr.Response()
	if resp.TID != req.TID {
		return nil, fmt.Errorf("%w: response TID %d, want %d", ErrMalformedPDU, resp.TID, req.TID)
	}
	if resp.Status != PDUStatusSuccess {
		return nil, &PDUError{Opcode: op, IID: iid, Status: resp.Status}
	}
	return resp, nil
}

func linkError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrUnknownCharacteristic) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

// PDUError is a non-success HAP-BLE response status.
type PDUError struct {
	Opcode Opcode
	IID    uint64
	Status PDUStatus
}

// Error implements error.
func (e *PDUError) Error() string {
	return fmt.Sprintf("transport: %s on iid %d: %s", e.Opcode, e.IID, e.Status)
}

// Unwrap returns ErrPDUStatus.
func (e *PDUError) Unwrap() error {
	return ErrPDUStatus
}

// AccessoryStatus maps the PDU status onto a characteristic status.
func (e *PDUError) AccessoryStatus() accessory.Status {
	switch e.Status {
	case PDUStatusInvalidInstanceID:
		return accessory.StatusResourceDoesNotExist
	case PDUStatusInsufficientAuthorization:
		return accessory.StatusInsufficientAuthorization
	case PDUStatusInsufficientAuthentication:
		return accessory.StatusInsufficientPrivileges
	case PDUStatusMaxProcedures:
		return accessory.StatusBusy
	case PDUStatusInvalidRequest:
		return accessory.StatusInvalidValue
	default:
		return accessory.StatusUnableToCommunicate
	}
}

func (l *bleLink) pairingIID(endpoint pairing.Endpoint) (uint64, error) {
	t := TypePairSetup
	switch endpoint {
	case pairing.EndpointPairVerify:
		t = TypePairVerify
	case pairing.EndpointPairings:
		t = TypePairings
	}
	iid, ok := l.iids[t]
	if !ok {
		return 0, fmt.Errorf("%w: no %s characteristic", ErrUnknownCharacteristic, endpoint)
	}
	return iid, nil
}

// exchange implements the pairing write-with-response procedure.
func (l *bleLink) exchange(ctx context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
	iid, err := l.pairingIID(endpoint)
	if err != nil {
		return nil, err
	}
	body := tlv.NewWriter().
		AddBytes(ParamValue, request).
		AddByte(ParamReturnResponse, 1).
		Bytes()
	resp, err := l.do(ctx, OpcodeWrite, iid, body)
	if err != nil {
		return nil, err
	}
	m, err := tlv.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return m.Require(ParamValue, 0)
}

// verify runs pair-verify and secures the link.
func (l *bleLink) verify(ctx context.Context, data *pairing.Data, rand io.Reader, lf logging.LoggerFactory) error {
	v, err := pairing.NewVerify(pairing.VerifyConfig{
		Exchanger:     pairing.ExchangerFunc(l.exchange),
		Data:          data,
		Rand:          rand,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	shared, err := v.Run(ctx)
	if err != nil {
		return err
	}
	keys, err := session.DeriveKeys(shared)
	if err != nil {
		return err
	}
	sess, err := session.New(session.Config{Role: session.RoleController, Keys: *keys})
	if err != nil {
		return err
	}
	l.sess = sess
	return nil
}

func (l *bleLink) signature(ctx context.Context, iid uint64) (*Signature, error) {
	resp, err := l.do(ctx, OpcodeSignatureRead, iid, nil)
	if err != nil {
		return nil, err
	}
	return DecodeSignature(resp.Body)
}

func (l *bleLink) read(ctx context.Context, iid uint64, format accessory.Format) (any, error) {
	resp, err := l.do(ctx, OpcodeRead, iid, nil)
	if err != nil {
		return nil, err
	}
	m, err := tlv.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return accessory.DecodeBinary(format, m.Bytes(ParamValue))
}

func (l *bleLink) write(ctx context.Context, iid uint64, format accessory.Format, v any) error {
	raw, err := accessory.EncodeBinary(format, v)
	if err != nil {
		return err
	}
	body := tlv.NewWriter().AddBytes(ParamValue, raw).Bytes()
	_, err = l.do(ctx, OpcodeWrite, iid, body)
	return err
}

func isPairingType(t accessory.Type) bool {
	switch t {
	case TypePairSetup, TypePairVerify, TypePairingFeature, TypePairings:
		return true
	}
	return false
}
