package pairing

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// DefaultPendingTTL bounds how long a display-PIN attempt waits for Resume.
const DefaultPendingTTL = 5 * time.Minute

// SetupState is the pair-setup state.
type SetupState int

const (
	SetupIdle SetupState = iota
	SetupM1Sent
	SetupAwaitingPIN
	SetupM3Sent
	SetupM5Sent
	SetupPaired
	SetupFailed
)

// String returns the state name.
func (s SetupState) String() string {
	switch s {
	case SetupIdle:
		return "Idle"
	case SetupM1Sent:
		return "M1Sent"
	case SetupAwaitingPIN:
		return "AwaitingPIN"
	case SetupM3Sent:
		return "M3Sent"
	case SetupM5Sent:
		return "M5Sent"
	case SetupPaired:
		return "Paired"
	case SetupFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SetupConfig configures a pair-setup attempt.
type SetupConfig struct {
	// Exchanger carries the M1..M6 messages. Required.
	Exchanger Exchanger

	// Identity is the controller identity to register with the accessory.
	// A fresh one is generated when nil.
	Identity *Identity

	// PendingTTL bounds the display-PIN pause. Defaults to DefaultPendingTTL.
	PendingTTL time.Duration

	// Clock measures the display-PIN pause. Defaults to the wall clock.
	Clock clock.Clock

	// Rand is the entropy source for keys. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *SetupConfig) applyDefaults() {
	if c.PendingTTL == 0 {
		c.PendingTTL = DefaultPendingTTL
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
}

// Setup is the controller side of pair-setup.
//
// Usage:
//
//	s, _ := pairing.NewSetup(pairing.SetupConfig{Exchanger: ex})
//	data, err := s.Run(ctx, "123-45-678")
//
// Display-PIN usage:
//
//	_, err := s.Run(ctx, pairing.DisplayPIN) // err is ErrPINRequired
//	data, err := s.Resume(ctx, pinFromUser)
type Setup struct {
	cfg SetupConfig
	log logging.LeveledLogger

	mu    sync.Mutex
	state SetupState

	// Retained from M2 across the display-PIN pause.
	salt         []byte
	serverKey    []byte
	pendingSince time.Time
}

// NewSetup creates a pair-setup state machine.
func NewSetup(config SetupConfig) (*Setup, error) {
	if config.Exchanger == nil {
		return nil, ErrNilExchanger
	}
	config.applyDefaults()

	s := &Setup{cfg: config}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hap-pair-setup")
	}
	return s, nil
}

// State returns the current state.
func (s *Setup) State() SetupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run performs pair-setup with pin. With DisplayPIN it stops after M2 and
// returns ErrPINRequired. A Setup in Failed state may be run again; it
// starts from scratch.
func (s *Setup) Run(ctx context.Context, pin string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupIdle && s.state != SetupFailed {
		return nil, ErrInvalidState
	}
	if pin != DisplayPIN {
		if err := ValidatePIN(pin); err != nil {
			return nil, err
		}
	}
	s.reset()

	if err := s.exchangeM1(ctx); err != nil {
		return nil, s.fail(err)
	}

	if pin == DisplayPIN {
		s.state = SetupAwaitingPIN
		s.pendingSince = s.cfg.Clock.Now()
		if s.log != nil {
			s.log.Infof("pair-setup waiting for displayed PIN")
		}
		return nil, ErrPINRequired
	}
	return s.finish(ctx, pin)
}

// Resume continues a display-PIN attempt from M3.
func (s *Setup) Resume(ctx context.Context, pin string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupAwaitingPIN {
		return nil, ErrInvalidState
	}
	if s.cfg.Clock.Since(s.pendingSince) > s.cfg.PendingTTL {
		return nil, s.fail(ErrPINExpired)
	}
	if err := ValidatePIN(pin); err != nil {
		// The attempt stays pending so the user can retype the code.
		return nil, err
	}
	return s.finish(ctx, pin)
}

// Expired reports whether a pending display-PIN attempt outlived its TTL.
func (s *Setup) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SetupAwaitingPIN && s.cfg.Clock.Since(s.pendingSince) > s.cfg.PendingTTL
}

func (s *Setup) reset() {
	s.state = SetupIdle
	s.salt = nil
	s.serverKey = nil
	s.pendingSince = time.Time{}
}

func (s *Setup) fail(err error) error {
	s.reset()
	s.state = SetupFailed
	if s.log != nil {
		s.log.Warnf("pair-setup failed: %v", err)
	}
	return err
}

// exchangeM1 sends M1 and keeps salt and B from M2.
func (s *Setup) exchangeM1(ctx context.Context) error {
	m1 := tlv.NewWriter().
		AddByte(tlv.TypeState, 1).
		AddByte(tlv.TypeMethod, byte(tlv.MethodPairSetup)).
		Bytes()

	s.state = SetupM1Sent
	resp, err := s.cfg.Exchanger.Exchange(ctx, EndpointPairSetup, m1)
	if err != nil {
		return err
	}
	m2, err := checkResponse(resp, 2)
	if err != nil {
		return err
	}
	salt, err := m2.Require(tlv.TypeSalt, srp.SaltSize)
	if err != nil {
		return err
	}
	B, err := m2.Require(tlv.TypePublicKey, 0)
	if err != nil {
		return err
	}
	s.salt = salt
	s.serverKey = B
	return nil
}

// finish runs M3 through M6 with the retained salt and B.
func (s *Setup) finish(ctx context.Context, pin string) (*Data, error) {
	client := srp.NewClient(srp.Username, pin)
	A, err := client.PublicKey()
	if err != nil {
		return nil, s.fail(err)
	}
	proof, err := client.ProcessChallenge(s.salt, s.serverKey)
	if err != nil {
		return nil, s.fail(err)
	}

	// M3 -> M4
	m3 := tlv.NewWriter().
		AddByte(tlv.TypeState, 3).
		AddBytes(tlv.TypePublicKey, A).
		AddBytes(tlv.TypeProof, proof).
		Bytes()
	s.state = SetupM3Sent
	resp, err := s.cfg.Exchanger.Exchange(ctx, EndpointPairSetup, m3)
	if err != nil {
		return nil, s.fail(err)
	}
	m4, err := checkResponse(resp, 4)
	if err != nil {
		return nil, s.fail(err)
	}
	serverProof, err := m4.Require(tlv.TypeProof, 0)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := client.VerifyServerProof(serverProof); err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	// M5 -> M6
	K := client.SessionKey()
	data, err := s.exchangeM5(ctx, K)
	if err != nil {
		return nil, s.fail(err)
	}

	s.reset()
	s.state = SetupPaired
	if s.log != nil {
		s.log.Infof("paired with accessory %s", data.AccessoryID)
	}
	return data, nil
}

func (s *Setup) exchangeM5(ctx context.Context, K []byte) (*Data, error) {
	id := s.cfg.Identity
	if id == nil {
		var err error
		if id, err = NewIdentity(s.cfg.Rand); err != nil {
			return nil, err
		}
	}

	encKey, err := crypto.DeriveKey(K, crypto.LabelPairSetupEncrypt)
	if err != nil {
		return nil, err
	}
	deviceX, err := crypto.DeriveKey(K, crypto.LabelPairSetupControllerSign)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(id.PrivateKey, deviceX, []byte(id.ID), id.PublicKey)
	if err != nil {
		return nil, err
	}
	sub := tlv.NewWriter().
		AddString(tlv.TypeIdentifier, id.ID).
		AddBytes(tlv.TypePublicKey, id.PublicKey).
		AddBytes(tlv.TypeSignature, sig).
		Bytes()
	sealed, err := crypto.Seal(encKey, crypto.LabelNonce("PS-Msg05"), sub, nil)
	if err != nil {
		return nil, err
	}

	m5 := tlv.NewWriter().
		AddByte(tlv.TypeState, 5).
		AddBytes(tlv.TypeEncryptedData, sealed).
		Bytes()
	s.state = SetupM5Sent
	resp, err := s.cfg.Exchanger.Exchange(ctx, EndpointPairSetup, m5)
	if err != nil {
		return nil, err
	}
	m6, err := checkResponse(resp, 6)
	if err != nil {
		return nil, err
	}
	enc, err := m6.Require(tlv.TypeEncryptedData, 0)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Open(encKey, crypto.LabelNonce("PS-Msg06"), enc, nil)
	if err != nil {
		return nil, err
	}
	inner, err := tlv.Decode(plain)
	if err != nil {
		return nil, err
	}
	accID, err := inner.Require(tlv.TypeIdentifier, 0)
	if err != nil {
		return nil, err
	}
	accLTPK, err := inner.Require(tlv.TypePublicKey, 32)
	if err != nil {
		return nil, err
	}
	accSig, err := inner.Require(tlv.TypeSignature, 64)
	if err != nil {
		return nil, err
	}
	accX, err := crypto.DeriveKey(K, crypto.LabelPairSetupAccessorySign)
	if err != nil {
		return nil, err
	}
	if err := crypto.Verify(accLTPK, accSig, accX, accID, accLTPK); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	return &Data{
		ControllerID:   id.ID,
		ControllerLTPK: append([]byte(nil), id.PublicKey...),
		ControllerLTSK: append([]byte(nil), id.PrivateKey...),
		AccessoryID:    string(accID),
		AccessoryLTPK:  append([]byte(nil), accLTPK...),
	}, nil
}
