package hapsim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
	"github.com/rigado/ble"
)

// DefaultPeripheralMTU is small enough that most procedures fragment.
const DefaultPeripheralMTU = 64

// ErrDisconnected is returned by GATT operations on a dropped link.
var ErrDisconnected = errors.New("hapsim: peripheral disconnected")

// HAP-BLE instance ID attributes.
var (
	uuidCharacteristicIID = ble.MustParse("DC46F0FE-81D2-4616-B5D9-6ABDD796939A")
	uuidServiceIID        = ble.MustParse("E604E95D-A759-4817-87D3-AA005083A0D1")
)

// PeripheralConfig configures a Peripheral.
type PeripheralConfig struct {
	// Accessory is the accessory to expose. Its database must hold a
	// single accessory with aid 1. Required.
	Accessory *Accessory

	// MTU is the largest ATT MTU the peripheral accepts. Defaults to
	// DefaultPeripheralMTU.
	MTU int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Peripheral exposes an Accessory as a HAP-BLE GATT server. Its Dial method
// satisfies transport.GATTDialer and returns a transport.RigadoLink over an
// in-memory GATT client.
type Peripheral struct {
	acc *Accessory
	mtu int
	log logging.LeveledLogger

	mu      sync.Mutex
	dials   int
	dialErr error
	current *gattClient
}

// NewPeripheral creates a peripheral.
func NewPeripheral(config PeripheralConfig) (*Peripheral, error) {
	if config.Accessory == nil {
		return nil, ErrNoAccessory
	}
	if config.MTU == 0 {
		config.MTU = DefaultPeripheralMTU
	}
	p := &Peripheral{acc: config.Accessory, mtu: config.MTU}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("hapsim-ble")
	}
	return p, nil
}

// Dial implements transport.GATTDialer.
func (p *Peripheral) Dial(ctx context.Context, _ ble.Addr) (transport.GATTLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.dialErr != nil {
		err := p.dialErr
		p.mu.Unlock()
		return nil, err
	}
	p.dials++
	c := newGATTClient(p)
	p.current = c
	p.mu.Unlock()

	return transport.NewRigadoLink(c, p.mtu)
}

// Dials returns the number of successful connections.
func (p *Peripheral) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// SetDialError makes subsequent dials fail with err. A nil err restores
// normal behavior.
func (p *Peripheral) SetDialError(err error) {
	p.mu.Lock()
	p.dialErr = err
	p.mu.Unlock()
}

// Disconnect drops the current connection.
func (p *Peripheral) Disconnect() {
	p.mu.Lock()
	c := p.current
	p.current = nil
	p.mu.Unlock()
	if c != nil {
		_ = c.CancelConnection()
	}
}

// gattClient is an in-memory transport.GATTClient.
type gattClient struct {
	p  *Peripheral
	pc *Conn

	profile   *ble.Profile
	svcIIDs   map[*ble.Characteristic]uint64
	charIIDs  map[*ble.Characteristic]uint64
	descIIDs  map[*ble.Descriptor]uint64
	endpoints map[uint64]pairing.Endpoint

	mu     sync.Mutex
	mtu    int
	sess   *session.Session
	rr     *transport.RequestReader
	out    map[uint64][][]byte
	closed bool
}

var _ transport.GATTClient = (*gattClient)(nil)

func newGATTClient(p *Peripheral) *gattClient {
	c := &gattClient{
		p:         p,
		pc:        p.acc.NewConn(),
		profile:   &ble.Profile{},
		svcIIDs:   make(map[*ble.Characteristic]uint64),
		charIIDs:  make(map[*ble.Characteristic]uint64),
		descIIDs:  make(map[*ble.Descriptor]uint64),
		endpoints: make(map[uint64]pairing.Endpoint),
		mtu:       transport.DefaultMTU,
		rr:        &transport.RequestReader{},
		out:       make(map[uint64][][]byte),
	}

	p.acc.mu.Lock()
	defer p.acc.mu.Unlock()
	var last uint64
	if acc := p.acc.db.Accessory(1); acc != nil {
		for _, svc := range acc.Services {
			s := c.addService(svc.Type, svc.IID)
			last = max(last, svc.IID)
			for _, ch := range svc.Characteristics {
				c.addCharacteristic(s, ch.Type, ch.IID)
				last = max(last, ch.IID)
			}
		}
	}

	s := c.addService(transport.TypePairingService, last+1)
	for i, t := range []accessory.Type{transport.TypePairSetup, transport.TypePairVerify, transport.TypePairingFeature, transport.TypePairings} {
		c.addCharacteristic(s, t, last+2+uint64(i))
	}
	c.endpoints[last+2] = pairing.EndpointPairSetup
	c.endpoints[last+3] = pairing.EndpointPairVerify
	c.endpoints[last+5] = pairing.EndpointPairings
	return c
}

func le16(v uint64) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v))
}

func (c *gattClient) addService(t accessory.Type, iid uint64) *ble.Service {
	s := ble.NewService(ble.UUID(t.LE()))
	c.svcIIDs[s.NewCharacteristic(uuidServiceIID)] = iid
	c.profile.Services = append(c.profile.Services, s)
	return s
}

func (c *gattClient) addCharacteristic(s *ble.Service, t accessory.Type, iid uint64) {
	ch := s.NewCharacteristic(ble.UUID(t.LE()))
	c.charIIDs[ch] = iid
	c.descIIDs[ch.NewDescriptor(uuidCharacteristicIID)] = iid
}

// DiscoverProfile implements transport.GATTClient.
func (c *gattClient) DiscoverProfile(bool) (*ble.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrDisconnected
	}
	return c.profile, nil
}

// ExchangeMTU implements transport.GATTClient.
func (c *gattClient) ExchangeMTU(rxMTU int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtu = min(rxMTU, c.p.mtu)
	return c.mtu, nil
}

// ReadDescriptor implements transport.GATTClient.
func (c *gattClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	iid, ok := c.descIIDs[d]
	if !ok {
		return nil, fmt.Errorf("hapsim: unknown descriptor %s", d.UUID)
	}
	return le16(iid), nil
}

// CancelConnection implements transport.GATTClient.
func (c *gattClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ReadCharacteristic implements transport.GATTClient. Reading a HAP
// characteristic returns the next pending response fragment.
func (c *gattClient) ReadCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	if iid, ok := c.svcIIDs[ch]; ok {
		return le16(iid), nil
	}
	iid, ok := c.charIIDs[ch]
	if !ok {
		return nil, fmt.Errorf("hapsim: unknown characteristic %s", ch.UUID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrDisconnected
	}
	pending := c.out[iid]
	if len(pending) == 0 {
		return nil, fmt.Errorf("hapsim: no response pending on iid %d", iid)
	}
	c.out[iid] = pending[1:]
	return pending[0], nil
}

// WriteCharacteristic implements transport.GATTClient. Each write carries
// one request fragment; the response is queued once the request is whole.
func (c *gattClient) WriteCharacteristic(ch *ble.Characteristic, value []byte, _ bool) error {
	iid, ok := c.charIIDs[ch]
	if !ok {
		return fmt.Errorf("hapsim: characteristic %s is not writable", ch.UUID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDisconnected
	}
	frag := value
	if c.sess != nil {
		var err error
		if frag, err = c.sess.Open(value, nil); err != nil {
			c.closed = true
			return err
		}
	}
	done, err := c.rr.Add(frag)
	if err != nil {
		c.rr = &transport.RequestReader{}
		return err
	}
	if !done {
		return nil
	}
	req := c.rr.Request()
	c.rr = &transport.RequestReader{}
	if uint64(req.IID) != iid {
		return fmt.Errorf("hapsim: request for iid %d written to iid %d", req.IID, iid)
	}

	resp, secure := c.handle(req)
	size := c.mtu - 3
	if c.sess != nil {
		size -= crypto.TagSize
	}
	frags, err := resp.Fragments(size)
	if err != nil {
		return err
	}
	for _, f := range frags {
		if c.sess != nil {
			if f, err = c.sess.Seal(f, nil); err != nil {
				return err
			}
		}
		c.out[iid] = append(c.out[iid], f)
	}
	if secure != nil {
		c.sess = secure
	}
	return nil
}

// handle runs one procedure. A non-nil session is returned when the
// procedure completed pair-verify; it applies from the next request.
func (c *gattClient) handle(req *transport.Request) (*transport.Response, *session.Session) {
	resp := &transport.Response{TID: req.TID, Status: transport.PDUStatusSuccess}
	iid := uint64(req.IID)

	if ep, ok := c.endpoints[iid]; ok {
		return c.pairing(req, resp, ep)
	}
	ch, svc := c.p.acc.find(accessory.ID{AID: 1, IID: iid})
	if ch == nil {
		resp.Status = transport.PDUStatusInvalidInstanceID
		return resp, nil
	}

	if req.Opcode == transport.OpcodeSignatureRead {
		body, err := transport.SignatureOf(ch, svc).Encode()
		if err != nil {
			resp.Status = transport.PDUStatusInvalidRequest
			return resp, nil
		}
		resp.Body = body
		return resp, nil
	}
	if c.sess == nil {
		resp.Status = transport.PDUStatusInsufficientAuthentication
		return resp, nil
	}

	id := ch.ID()
	switch req.Opcode {
	case transport.OpcodeRead:
		if !ch.Readable() {
			resp.Status = transport.PDUStatusInvalidRequest
			return resp, nil
		}
		v, _ := c.p.acc.Value(id)
		raw, err := accessory.EncodeBinary(ch.Format, v)
		if err != nil {
			resp.Status = transport.PDUStatusInvalidRequest
			return resp, nil
		}
		resp.Body = tlv.NewWriter().AddBytes(transport.ParamValue, raw).Bytes()
	case transport.OpcodeWrite:
		if !ch.Writable() {
			resp.Status = transport.PDUStatusInsufficientAuthorization
			return resp, nil
		}
		m, err := tlv.Decode(req.Body)
		if err != nil {
			resp.Status = transport.PDUStatusInvalidRequest
			return resp, nil
		}
		v, err := accessory.DecodeBinary(ch.Format, m.Bytes(transport.ParamValue))
		if err != nil {
			resp.Status = transport.PDUStatusInvalidRequest
			return resp, nil
		}
		if err := c.p.acc.write(id, v, nil); err != nil {
			resp.Status = transport.PDUStatusInvalidRequest
		}
	default:
		resp.Status = transport.PDUStatusUnsupportedPDU
	}
	return resp, nil
}

func (c *gattClient) pairing(req *transport.Request, resp *transport.Response, ep pairing.Endpoint) (*transport.Response, *session.Session) {
	if req.Opcode != transport.OpcodeWrite {
		resp.Status = transport.PDUStatusUnsupportedPDU
		return resp, nil
	}
	if ep == pairing.EndpointPairings && c.sess == nil {
		resp.Status = transport.PDUStatusInsufficientAuthentication
		return resp, nil
	}
	m, err := tlv.Decode(req.Body)
	if err != nil {
		resp.Status = transport.PDUStatusInvalidRequest
		return resp, nil
	}
	wasVerified := c.pc.Verified()
	out, err := c.pc.Exchange(context.Background(), ep, m.Bytes(transport.ParamValue))
	if err != nil {
		resp.Status = transport.PDUStatusInvalidRequest
		return resp, nil
	}
	resp.Body = tlv.NewWriter().AddBytes(transport.ParamValue, out).Bytes()

	if ep != pairing.EndpointPairVerify || wasVerified || !c.pc.Verified() {
		return resp, nil
	}
	keys, err := session.DeriveKeys(c.pc.SharedSecret())
	if err != nil {
		return resp, nil
	}
	sess, err := session.New(session.Config{Role: session.RoleAccessory, Keys: *keys})
	if err != nil {
		return resp, nil
	}
	if c.p.log != nil {
		c.p.log.Debugf("BLE link secured")
	}
	return resp, sess
}
