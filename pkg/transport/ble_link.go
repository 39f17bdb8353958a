package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/rigado/ble"
)

// DefaultMTU is the ATT MTU assumed when negotiation fails.
const DefaultMTU = 23

// attOverhead is the ATT header carried by every write and read.
const attOverhead = 3

// GATTCharacteristic is a HAP characteristic exposed over GATT.
type GATTCharacteristic struct {
	ServiceType accessory.Type
	ServiceIID  uint64
	Type        accessory.Type
	IID         uint64
}

// GATTLink is a connected GATT client scoped to the HAP characteristics of
// one accessory.
type GATTLink interface {
	// Characteristics lists the HAP characteristics with their instance IDs.
	Characteristics() []GATTCharacteristic

	// Write writes one PDU fragment to the characteristic iid.
	Write(ctx context.Context, iid uint64, data []byte) error

	// Read reads one PDU fragment from the characteristic iid.
	Read(ctx context.Context, iid uint64) ([]byte, error)

	// MTU returns the negotiated ATT MTU.
	MTU() int

	// Close disconnects.
	Close() error
}

// GATTDialer connects to a peripheral.
type GATTDialer interface {
	Dial(ctx context.Context, addr ble.Addr) (GATTLink, error)
}

// GATTDialerFunc adapts a function to GATTDialer.
type GATTDialerFunc func(ctx context.Context, addr ble.Addr) (GATTLink, error)

// Dial calls f.
func (f GATTDialerFunc) Dial(ctx context.Context, addr ble.Addr) (GATTLink, error) {
	return f(ctx, addr)
}

// GATTClient is the part of a rigado/ble client used by RigadoLink.
type GATTClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	ExchangeMTU(rxMTU int) (int, error)
	CancelConnection() error
}

// HAP-BLE instance ID attributes.
var (
	uuidCharacteristicIID = ble.MustParse("DC46F0FE-81D2-4616-B5D9-6ABDD796939A")
	uuidServiceIID        = ble.MustParse("E604E95D-A759-4817-87D3-AA005083A0D1")
)

// RigadoLink is a GATTLink over a rigado/ble client.
type RigadoLink struct {
	client GATTClient
	mtu    int

	mu    sync.Mutex
	chars map[uint64]*ble.Characteristic
	list  []GATTCharacteristic
}

// NewRigadoLink discovers the HAP characteristics of client and negotiates
// an MTU of up to rxMTU.
func NewRigadoLink(client GATTClient, rxMTU int) (*RigadoLink, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("%w: discover: %w", ErrConnectionLost, err)
	}
	mtu, err := client.ExchangeMTU(rxMTU)
	if err != nil || mtu < DefaultMTU {
		mtu = DefaultMTU
	}

	l := &RigadoLink{client: client, mtu: mtu, chars: make(map[uint64]*ble.Characteristic)}
	for _, svc := range profile.Services {
		if len(svc.UUID) != 16 {
			continue
		}
		svcType, err := accessory.TypeFromLE(svc.UUID)
		if err != nil {
			continue
		}
		var svcIID uint64
		for _, c := range svc.Characteristics {
			if bytes.Equal(c.UUID, uuidServiceIID) {
				if v, err := client.ReadCharacteristic(c); err == nil {
					svcIID = leUint(v)
				}
			}
		}
		for _, c := range svc.Characteristics {
			if len(c.UUID) != 16 || bytes.Equal(c.UUID, uuidServiceIID) {
				continue
			}
			iid, ok := l.instanceID(c)
			if !ok {
				continue
			}
			t, err := accessory.TypeFromLE(c.UUID)
			if err != nil {
				continue
			}
			l.chars[iid] = c
			l.list = append(l.list, GATTCharacteristic{
				ServiceType: svcType,
				ServiceIID:  svcIID,
				Type:        t,
				IID:         iid,
			})
		}
	}
	return l, nil
}

func (l *RigadoLink) instanceID(c *ble.Characteristic) (uint64, bool) {
	for _, d := range c.Descriptors {
		if !bytes.Equal(d.UUID, uuidCharacteristicIID) {
			continue
		}
		v, err := l.client.ReadDescriptor(d)
		if err != nil || len(v) == 0 {
			return 0, false
		}
		return leUint(v), true
	}
	return 0, false
}

func leUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// Characteristics implements GATTLink.
func (l *RigadoLink) Characteristics() []GATTCharacteristic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]GATTCharacteristic(nil), l.list...)
}

func (l *RigadoLink) lookup(iid uint64) (*ble.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[iid]
	if !ok {
		return nil, fmt.Errorf("%w: iid %d", ErrUnknownCharacteristic, iid)
	}
	return c, nil
}

// Write implements GATTLink.
func (l *RigadoLink) Write(ctx context.Context, iid uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := l.lookup(iid)
	if err != nil {
		return err
	}
	return l.client.WriteCharacteristic(c, data, false)
}

// Read implements GATTLink.
func (l *RigadoLink) Read(ctx context.Context, iid uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := l.lookup(iid)
	if err != nil {
		return nil, err
	}
	return l.client.ReadCharacteristic(c)
}

// MTU implements GATTLink.
func (l *RigadoLink) MTU() int {
	return l.mtu
}

// Close implements GATTLink.
func (l *RigadoLink) Close() error {
	return l.client.CancelConnection()
}
