// Package hapsim simulates HAP accessories for tests and local
// experimentation. An Accessory holds an attribute database, a setup code
// and its pairings; Server exposes it over HAP/IP and Peripheral over a
// GATT link that speaks HAP-BLE.
package hapsim

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/pion/logging"
)

// Defaults used when Config leaves the field empty.
const (
	DefaultID  = "11:22:33:44:55:66"
	DefaultPIN = "123-45-678"
)

// ErrUnknownEndpoint is returned for pairing endpoints the simulator does
// not serve.
var ErrUnknownEndpoint = errors.New("hapsim: unknown pairing endpoint")

// Config configures an Accessory.
type Config struct {
	// ID is the accessory pairing identifier. Defaults to DefaultID.
	ID string

	// PIN is the setup code. Defaults to DefaultPIN.
	PIN string

	// Database is the attribute database. Defaults to LightbulbDatabase().
	Database *accessory.Accessories

	// Rand is the entropy source for keys. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

type watcher struct {
	fn func(id accessory.ID, v any)
}

// Accessory is a simulated HAP accessory.
type Accessory struct {
	cfg  Config
	log  logging.LeveledLogger
	ltpk ed25519.PublicKey
	ltsk ed25519.PrivateKey

	mu       sync.Mutex
	db       *accessory.Accessories
	pairings map[string]pairing.Pairing
	setup    *srp.Verifier
	gsn      uint16
	watchers map[*watcher]struct{}
}

// New creates an unpaired accessory.
func New(config Config) (*Accessory, error) {
	if config.ID == "" {
		config.ID = DefaultID
	}
	if config.PIN == "" {
		config.PIN = DefaultPIN
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	if config.Database == nil {
		config.Database = LightbulbDatabase()
	}
	pub, priv, err := crypto.GenerateSigningKey(config.Rand)
	if err != nil {
		return nil, err
	}
	a := &Accessory{
		cfg:      config,
		ltpk:     pub,
		ltsk:     priv,
		db:       config.Database,
		pairings: make(map[string]pairing.Pairing),
		gsn:      1,
		watchers: make(map[*watcher]struct{}),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("hapsim")
	}
	return a, nil
}

// ID returns the accessory pairing identifier.
func (a *Accessory) ID() string {
	return a.cfg.ID
}

// PublicKey returns the accessory long-term public key.
func (a *Accessory) PublicKey() ed25519.PublicKey {
	return a.ltpk
}

// Paired reports whether any controller is registered.
func (a *Accessory) Paired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pairings) > 0
}

// Pairings returns the registered controllers.
func (a *Accessory) Pairings() []pairing.Pairing {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]pairing.Pairing, 0, len(a.pairings))
	for _, p := range a.pairings {
		out = append(out, p)
	}
	return out
}

// GSN returns the global state number. It advances on every value change.
func (a *Accessory) GSN() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gsn
}

// Database returns the encoded attribute database.
func (a *Accessory) Database() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Encode()
}

// Value returns the current value of id.
func (a *Accessory) Value(id accessory.ID) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, err := a.db.Find(id)
	if err != nil {
		return nil, false
	}
	return c.Value, true
}

// SetValue changes id as if the accessory was operated locally. Every
// subscribed connection is notified.
func (a *Accessory) SetValue(id accessory.ID, v any) error {
	return a.write(id, v, nil)
}

// find returns the characteristic and its service.
func (a *Accessory) find(id accessory.ID) (*accessory.Characteristic, *accessory.Service) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc := a.db.Accessory(id.AID)
	if acc == nil {
		return nil, nil
	}
	svc := acc.ServiceOf(id.IID)
	if svc == nil {
		return nil, nil
	}
	return acc.Characteristic(id.IID), svc
}

// write stores v and notifies every watcher except origin.
func (a *Accessory) write(id accessory.ID, v any, origin *watcher) error {
	a.mu.Lock()
	c, err := a.db.Find(id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	v = accessory.NormalizeValue(c.Format, v)
	c.Value = v
	a.gsn++
	if a.gsn == 0 {
		a.gsn = 1
	}
	watchers := make([]*watcher, 0, len(a.watchers))
	for w := range a.watchers {
		if w != origin {
			watchers = append(watchers, w)
		}
	}
	a.mu.Unlock()

	if a.log != nil {
		a.log.Debugf("%s = %v", id, v)
	}
	for _, w := range watchers {
		w.fn(id, v)
	}
	return nil
}

func (a *Accessory) watch(fn func(id accessory.ID, v any)) *watcher {
	w := &watcher{fn: fn}
	a.mu.Lock()
	a.watchers[w] = struct{}{}
	a.mu.Unlock()
	return w
}

func (a *Accessory) unwatch(w *watcher) {
	a.mu.Lock()
	delete(a.watchers, w)
	a.mu.Unlock()
}

// Conn is the pairing state of one controller connection. Pair-setup state
// is shared by the accessory; pair-verify and admin rights are per
// connection.
type Conn struct {
	acc *Accessory

	mu         sync.Mutex
	eph        *crypto.X25519KeyPair
	ctrlEph    []byte
	shared     []byte
	encKey     []byte
	verified   bool
	controller string
}

// NewConn returns the pairing state for a new connection. Conn implements
// pairing.Exchanger so pairing can be exercised without a transport.
func (a *Accessory) NewConn() *Conn {
	return &Conn{acc: a}
}

var _ pairing.Exchanger = (*Conn)(nil)

// Verified reports whether pair-verify completed on this connection.
func (c *Conn) Verified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

// SharedSecret returns the pair-verify secret once Verified.
func (c *Conn) SharedSecret() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.shared...)
}

// Exchange handles one pairing request.
func (c *Conn) Exchange(_ context.Context, endpoint pairing.Endpoint, request []byte) ([]byte, error) {
	m, err := tlv.Decode(request)
	if err != nil {
		return nil, err
	}
	switch endpoint {
	case pairing.EndpointPairSetup:
		return c.acc.pairSetup(m), nil
	case pairing.EndpointPairVerify:
		return c.pairVerify(m), nil
	case pairing.EndpointPairings:
		return c.admin(m), nil
	}
	return nil, ErrUnknownEndpoint
}

func errorResponse(state byte, code tlv.ErrorCode) []byte {
	return tlv.NewWriter().
		AddByte(tlv.TypeState, state).
		AddByte(tlv.TypeError, byte(code)).
		Bytes()
}

func (a *Accessory) pairSetup(m tlv.Map) []byte {
	state, _ := m.Byte(tlv.TypeState)
	switch state {
	case 1:
		return a.setupM2()
	case 3:
		return a.setupM4(m)
	case 5:
		return a.setupM6(m)
	}
	return errorResponse(state+1, tlv.ErrorCodeUnknown)
}

func (a *Accessory) setupM2() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pairings) > 0 {
		return errorResponse(2, tlv.ErrorCodeUnavailable)
	}
	salt := make([]byte, srp.SaltSize)
	if _, err := io.ReadFull(a.cfg.Rand, salt); err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	v := srp.NewVerifier(srp.Username, a.cfg.PIN, salt)
	B, err := v.PublicKey()
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	a.setup = v
	return tlv.NewWriter().
		AddByte(tlv.TypeState, 2).
		AddBytes(tlv.TypeSalt, salt).
		AddBytes(tlv.TypePublicKey, B).
		Bytes()
}

func (a *Accessory) setupM4(m tlv.Map) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.setup
	if v == nil {
		return errorResponse(4, tlv.ErrorCodeUnknown)
	}
	if err := v.ProcessClientKey(m.Bytes(tlv.TypePublicKey)); err != nil {
		a.setup = nil
		return errorResponse(4, tlv.ErrorCodeAuthentication)
	}
	proof, err := v.VerifyClientProof(m.Bytes(tlv.TypeProof))
	if err != nil {
		a.setup = nil
		if a.log != nil {
			a.log.Warnf("pair-setup: wrong setup code")
		}
		return errorResponse(4, tlv.ErrorCodeAuthentication)
	}
	return tlv.NewWriter().
		AddByte(tlv.TypeState, 4).
		AddBytes(tlv.TypeProof, proof).
		Bytes()
}

func (a *Accessory) setupM6(m tlv.Map) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.setup
	a.setup = nil
	if v == nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	K := v.SessionKey()

	encKey, err := crypto.DeriveKey(K, crypto.LabelPairSetupEncrypt)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	plain, err := crypto.Open(encKey, crypto.LabelNonce("PS-Msg05"), m.Bytes(tlv.TypeEncryptedData), nil)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeAuthentication)
	}
	inner, err := tlv.Decode(plain)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	ctrlID := inner.Bytes(tlv.TypeIdentifier)
	ctrlLTPK := inner.Bytes(tlv.TypePublicKey)
	ctrlX, err := crypto.DeriveKey(K, crypto.LabelPairSetupControllerSign)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	if err := crypto.Verify(ctrlLTPK, inner.Bytes(tlv.TypeSignature), ctrlX, ctrlID, ctrlLTPK); err != nil {
		return errorResponse(6, tlv.ErrorCodeAuthentication)
	}

	accX, err := crypto.DeriveKey(K, crypto.LabelPairSetupAccessorySign)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	sig, err := crypto.Sign(a.ltsk, accX, []byte(a.cfg.ID), a.ltpk)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}
	sub := tlv.NewWriter().
		AddString(tlv.TypeIdentifier, a.cfg.ID).
		AddBytes(tlv.TypePublicKey, a.ltpk).
		AddBytes(tlv.TypeSignature, sig).
		Bytes()
	sealed, err := crypto.Seal(encKey, crypto.LabelNonce("PS-Msg06"), sub, nil)
	if err != nil {
		return errorResponse(6, tlv.ErrorCodeUnknown)
	}

	a.pairings[string(ctrlID)] = pairing.Pairing{
		ID:        string(ctrlID),
		PublicKey: append(ed25519.PublicKey(nil), ctrlLTPK...),
		Admin:     true,
	}
	if a.log != nil {
		a.log.Infof("paired with controller %s", ctrlID)
	}
	return tlv.NewWriter().
		AddByte(tlv.TypeState, 6).
		AddBytes(tlv.TypeEncryptedData, sealed).
		Bytes()
}

func (c *Conn) pairVerify(m tlv.Map) []byte {
	state, _ := m.Byte(tlv.TypeState)
	switch state {
	case 1:
		return c.verifyM2(m)
	case 3:
		return c.verifyM4(m)
	}
	return errorResponse(state+1, tlv.ErrorCodeUnknown)
}

func (c *Conn) verifyM2(m tlv.Map) []byte {
	a := c.acc
	ctrlEph := m.Bytes(tlv.TypePublicKey)
	eph, err := crypto.GenerateX25519(a.cfg.Rand)
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	shared, err := eph.SharedSecret(ctrlEph)
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeAuthentication)
	}
	encKey, err := crypto.DeriveKey(shared, crypto.LabelPairVerifyEncrypt)
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	sig, err := crypto.Sign(a.ltsk, eph.Public[:], []byte(a.cfg.ID), ctrlEph)
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	sub := tlv.NewWriter().
		AddString(tlv.TypeIdentifier, a.cfg.ID).
		AddBytes(tlv.TypeSignature, sig).
		Bytes()
	sealed, err := crypto.Seal(encKey, crypto.LabelNonce("PV-Msg02"), sub, nil)
	if err != nil {
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}

	c.mu.Lock()
	c.eph = eph
	c.ctrlEph = append([]byte(nil), ctrlEph...)
	c.shared = shared
	c.encKey = encKey
	c.verified = false
	c.mu.Unlock()

	return tlv.NewWriter().
		AddByte(tlv.TypeState, 2).
		AddBytes(tlv.TypePublicKey, eph.Public[:]).
		AddBytes(tlv.TypeEncryptedData, sealed).
		Bytes()
}

func (c *Conn) verifyM4(m tlv.Map) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eph == nil {
		return errorResponse(4, tlv.ErrorCodeUnknown)
	}
	plain, err := crypto.Open(c.encKey, crypto.LabelNonce("PV-Msg03"), m.Bytes(tlv.TypeEncryptedData), nil)
	if err != nil {
		return errorResponse(4, tlv.ErrorCodeAuthentication)
	}
	inner, err := tlv.Decode(plain)
	if err != nil {
		return errorResponse(4, tlv.ErrorCodeUnknown)
	}
	id := string(inner.Bytes(tlv.TypeIdentifier))

	c.acc.mu.Lock()
	p, ok := c.acc.pairings[id]
	c.acc.mu.Unlock()
	if !ok {
		return errorResponse(4, tlv.ErrorCodeAuthentication)
	}
	if err := crypto.Verify(p.PublicKey, inner.Bytes(tlv.TypeSignature), c.ctrlEph, []byte(id), c.eph.Public[:]); err != nil {
		return errorResponse(4, tlv.ErrorCodeAuthentication)
	}
	c.verified = true
	c.controller = id
	return tlv.NewWriter().AddByte(tlv.TypeState, 4).Bytes()
}

// admin serves add, remove and list pairings for verified admins.
func (c *Conn) admin(m tlv.Map) []byte {
	c.mu.Lock()
	verified, controller := c.verified, c.controller
	c.mu.Unlock()

	a := c.acc
	a.mu.Lock()
	defer a.mu.Unlock()
	if !verified || !a.pairings[controller].Admin {
		return errorResponse(2, tlv.ErrorCodeAuthentication)
	}

	method, _ := m.Byte(tlv.TypeMethod)
	switch tlv.Method(method) {
	case tlv.MethodAddPairing:
		perm, _ := m.Byte(tlv.TypePermissions)
		id := m.String(tlv.TypeIdentifier)
		a.pairings[id] = pairing.Pairing{
			ID:        id,
			PublicKey: append(ed25519.PublicKey(nil), m.Bytes(tlv.TypePublicKey)...),
			Admin:     perm&tlv.PermissionAdmin != 0,
		}
	case tlv.MethodRemovePairing:
		delete(a.pairings, m.String(tlv.TypeIdentifier))
	case tlv.MethodListPairings:
		w := tlv.NewWriter().AddByte(tlv.TypeState, 2)
		first := true
		for _, p := range a.pairings {
			if !first {
				w.AddSeparator()
			}
			first = false
			perm := tlv.PermissionUser
			if p.Admin {
				perm = tlv.PermissionAdmin
			}
			w.AddString(tlv.TypeIdentifier, p.ID).
				AddBytes(tlv.TypePublicKey, p.PublicKey).
				AddByte(tlv.TypePermissions, perm)
		}
		return w.Bytes()
	default:
		return errorResponse(2, tlv.ErrorCodeUnknown)
	}
	return tlv.NewWriter().AddByte(tlv.TypeState, 2).Bytes()
}
