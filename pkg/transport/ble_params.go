package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/tlv"
)

// HAP-BLE body parameter types.
const (
	ParamValue                   tlv.Type = 0x01
	ParamAdditionalAuthorization tlv.Type = 0x02
	ParamOrigin                  tlv.Type = 0x03
	ParamCharacteristicType      tlv.Type = 0x04
	ParamCharacteristicIID       tlv.Type = 0x05
	ParamServiceType             tlv.Type = 0x06
	ParamServiceIID              tlv.Type = 0x07
	ParamTTL                     tlv.Type = 0x08
	ParamReturnResponse          tlv.Type = 0x09
	ParamProperties              tlv.Type = 0x0A
	ParamUserDescription         tlv.Type = 0x0B
	ParamPresentationFormat      tlv.Type = 0x0C
	ParamValidRange              tlv.Type = 0x0D
	ParamStepValue               tlv.Type = 0x0E
	ParamServiceProperties       tlv.Type = 0x0F
	ParamLinkedServices          tlv.Type = 0x10
	ParamValidValues             tlv.Type = 0x11
	ParamValidValuesRange        tlv.Type = 0x12
)

// HAP characteristic property bits of a signature.
const (
	PropertyRead               uint16 = 0x0001
	PropertyWrite              uint16 = 0x0002
	PropertyAdditionalAuth     uint16 = 0x0004
	PropertyTimedWrite         uint16 = 0x0008
	PropertySecureRead         uint16 = 0x0010
	PropertySecureWrite        uint16 = 0x0020
	PropertyHidden             uint16 = 0x0040
	PropertyNotifyConnected    uint16 = 0x0080
	PropertyNotifyDisconnected uint16 = 0x0100
	PropertyBroadcastNotify    uint16 = 0x0200
)

// presentationFormatDescriptor is the size of the GATT presentation format.
const presentationFormatDescriptor = 7

// GATT presentation format codes.
var formatCodes = map[accessory.Format]byte{
	accessory.FormatBool:   0x01,
	accessory.FormatUInt8:  0x04,
	accessory.FormatUInt16: 0x06,
	accessory.FormatUInt32: 0x08,
	accessory.FormatUInt64: 0x0A,
	accessory.FormatInt:    0x10,
	accessory.FormatFloat:  0x14,
	accessory.FormatString: 0x19,
	accessory.FormatData:   0x1B,
}

// GATT unit codes.
var unitCodes = map[accessory.Unit]uint16{
	accessory.UnitCelsius:    0x272F,
	accessory.UnitArcDegrees: 0x2763,
	accessory.UnitPercentage: 0x27AD,
	accessory.UnitLux:        0x2731,
	accessory.UnitSeconds:    0x2703,
}

const unitless = 0x2700

// Signature is the metadata of one characteristic as returned by a
// characteristic signature read.
type Signature struct {
	Type        accessory.Type
	ServiceType accessory.Type
	ServiceIID  uint16
	Properties  uint16
	Description string
	Format      accessory.Format
	Unit        accessory.Unit

	MinValue         *float64
	MaxValue         *float64
	MinStep          *float64
	ValidValues      []float64
	ValidValuesRange []float64
}

// Perms converts the property bits into IP-style permissions.
func (s *Signature) Perms() []accessory.Perm {
	var perms []accessory.Perm
	if s.Properties&(PropertyRead|PropertySecureRead) != 0 {
		perms = append(perms, accessory.PermPairedRead)
	}
	if s.Properties&(PropertyWrite|PropertySecureWrite) != 0 {
		perms = append(perms, accessory.PermPairedWrite)
	}
	if s.Properties&(PropertyNotifyConnected|PropertyNotifyDisconnected) != 0 {
		perms = append(perms, accessory.PermEvents)
	}
	if s.Properties&PropertyAdditionalAuth != 0 {
		perms = append(perms, accessory.PermAdditional)
	}
	if s.Properties&PropertyTimedWrite != 0 {
		perms = append(perms, accessory.PermTimedWrite)
	}
	if s.Properties&PropertyHidden != 0 {
		perms = append(perms, accessory.PermHidden)
	}
	return perms
}

// PropertiesFromPerms is the inverse of Signature.Perms.
func PropertiesFromPerms(perms []accessory.Perm) uint16 {
	var p uint16
	for _, perm := range perms {
		switch perm {
		case accessory.PermPairedRead:
			p |= PropertySecureRead
		case accessory.PermPairedWrite:
			p |= PropertySecureWrite
		case accessory.PermEvents:
			p |= PropertyNotifyConnected
		case accessory.PermAdditional:
			p |= PropertyAdditionalAuth
		case accessory.PermTimedWrite:
			p |= PropertyTimedWrite
		case accessory.PermHidden:
			p |= PropertyHidden
		}
	}
	return p
}

// Characteristic builds the tree node for the characteristic at aid/iid.
func (s *Signature) Characteristic(aid, iid uint64) *accessory.Characteristic {
	return &accessory.Characteristic{
		AID:              aid,
		IID:              iid,
		Type:             s.Type,
		Format:           s.Format,
		Perms:            s.Perms(),
		Description:      s.Description,
		Unit:             s.Unit,
		MinValue:         s.MinValue,
		MaxValue:         s.MaxValue,
		MinStep:          s.MinStep,
		ValidValues:      s.ValidValues,
		ValidValuesRange: s.ValidValuesRange,
	}
}

// SignatureOf describes c for a signature read response.
func SignatureOf(c *accessory.Characteristic, service *accessory.Service) *Signature {
	return &Signature{
		Type:             c.Type,
		ServiceType:      service.Type,
		ServiceIID:       uint16(service.IID),
		Properties:       PropertiesFromPerms(c.Perms),
		Description:      c.Description,
		Format:           c.Format,
		Unit:             c.Unit,
		MinValue:         c.MinValue,
		MaxValue:         c.MaxValue,
		MinStep:          c.MinStep,
		ValidValues:      c.ValidValues,
		ValidValuesRange: c.ValidValuesRange,
	}
}

// Encode renders the signature response body.
func (s *Signature) Encode() ([]byte, error) {
	code, ok := formatCodes[s.Format]
	if !ok && s.Format == accessory.FormatTLV8 {
		code, ok = formatCodes[accessory.FormatData], true
	}
	if !ok {
		return nil, fmt.Errorf("%w: format %q", ErrMalformedPDU, s.Format)
	}
	unit := uint16(unitless)
	if u, ok := unitCodes[s.Unit]; ok {
		unit = u
	}
	pf := make([]byte, presentationFormatDescriptor)
	pf[0] = code
	binary.LittleEndian.PutUint16(pf[2:], unit)
	pf[4] = 0x01

	w := tlv.NewWriter().
		AddBytes(ParamCharacteristicType, s.Type.LE()).
		AddUint(ParamServiceIID, uint64(s.ServiceIID)).
		AddBytes(ParamServiceType, s.ServiceType.LE()).
		AddBytes(ParamProperties, binary.LittleEndian.AppendUint16(nil, s.Properties)).
		AddBytes(ParamPresentationFormat, pf)
	if s.Description != "" {
		w.AddString(ParamUserDescription, s.Description)
	}
	if s.MinValue != nil && s.MaxValue != nil {
		lo, err := accessory.EncodeBinary(s.Format, *s.MinValue)
		if err != nil {
			return nil, err
		}
		hi, err := accessory.EncodeBinary(s.Format, *s.MaxValue)
		if err != nil {
			return nil, err
		}
		w.AddBytes(ParamValidRange, append(lo, hi...))
	}
	if s.MinStep != nil {
		step, err := accessory.EncodeBinary(s.Format, *s.MinStep)
		if err != nil {
			return nil, err
		}
		w.AddBytes(ParamStepValue, step)
	}
	if len(s.ValidValues) > 0 {
		vv := make([]byte, len(s.ValidValues))
		for i, v := range s.ValidValues {
			vv[i] = byte(v)
		}
		w.AddBytes(ParamValidValues, vv)
	}
	if len(s.ValidValuesRange) == 2 {
		w.AddBytes(ParamValidValuesRange, []byte{byte(s.ValidValuesRange[0]), byte(s.ValidValuesRange[1])})
	}
	return w.Bytes(), nil
}

// DecodeSignature parses a signature read response body.
func DecodeSignature(body []byte) (*Signature, error) {
	m, err := tlv.Decode(body)
	if err != nil {
		return nil, err
	}
	s := &Signature{}

	raw, err := m.Require(ParamCharacteristicType, 16)
	if err != nil {
		return nil, err
	}
	if s.Type, err = accessory.TypeFromLE(raw); err != nil {
		return nil, err
	}
	if raw := m.Bytes(ParamServiceType); len(raw) == 16 {
		if s.ServiceType, err = accessory.TypeFromLE(raw); err != nil {
			return nil, err
		}
	}
	if iid, ok := m.Uint(ParamServiceIID); ok {
		s.ServiceIID = uint16(iid)
	}
	if props, ok := m.Uint(ParamProperties); ok {
		s.Properties = uint16(props)
	}
	s.Description = m.String(ParamUserDescription)

	pf, err := m.Require(ParamPresentationFormat, presentationFormatDescriptor)
	if err != nil {
		return nil, err
	}
	s.Format = accessory.FormatData
	for f, code := range formatCodes {
		if code == pf[0] {
			s.Format = f
			break
		}
	}
	unit := binary.LittleEndian.Uint16(pf[2:])
	for u, code := range unitCodes {
		if code == unit {
			s.Unit = u
			break
		}
	}

	if raw := m.Bytes(ParamValidRange); len(raw) > 0 && len(raw)%2 == 0 {
		half := len(raw) / 2
		if lo, ok := decodeNumber(s.Format, raw[:half]); ok {
			s.MinValue = &lo
		}
		if hi, ok := decodeNumber(s.Format, raw[half:]); ok {
			s.MaxValue = &hi
		}
	}
	if raw := m.Bytes(ParamStepValue); len(raw) > 0 {
		if step, ok := decodeNumber(s.Format, raw); ok {
			s.MinStep = &step
		}
	}
	for _, b := range m.Bytes(ParamValidValues) {
		s.ValidValues = append(s.ValidValues, float64(b))
	}
	if raw := m.Bytes(ParamValidValuesRange); len(raw) == 2 {
		s.ValidValuesRange = []float64{float64(raw[0]), float64(raw[1])}
	}
	return s, nil
}

func decodeNumber(format accessory.Format, b []byte) (float64, bool) {
	v, err := accessory.DecodeBinary(format, b)
	if err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
