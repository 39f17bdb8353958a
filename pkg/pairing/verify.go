package pairing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/pion/logging"
)

// VerifyState is the pair-verify state.
type VerifyState int

const (
	VerifyIdle VerifyState = iota
	VerifyM1Sent
	VerifyM3Sent
	VerifyEstablished
	VerifyFailed
)

// String returns the state name.
func (s VerifyState) String() string {
	switch s {
	case VerifyIdle:
		return "Idle"
	case VerifyM1Sent:
		return "M1Sent"
	case VerifyM3Sent:
		return "M3Sent"
	case VerifyEstablished:
		return "SessionEstablished"
	case VerifyFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// VerifyConfig configures a pair-verify run.
type VerifyConfig struct {
	// Exchanger carries M1..M4. Required.
	Exchanger Exchanger

	// Data is the pairing established by pair-setup. Required.
	Data *Data

	// Rand is the entropy source for the ephemeral key. Defaults to
	// crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Verify is the controller side of pair-verify. One Verify is run per
// connection; its shared secret seeds that connection's session keys.
type Verify struct {
	cfg VerifyConfig
	log logging.LeveledLogger

	mu     sync.Mutex
	state  VerifyState
	shared []byte
}

// NewVerify creates a pair-verify state machine.
func NewVerify(config VerifyConfig) (*Verify, error) {
	if config.Exchanger == nil {
		return nil, ErrNilExchanger
	}
	if config.Data == nil {
		return nil, ErrNotPaired
	}
	if err := config.Data.Validate(); err != nil {
		return nil, err
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	v := &Verify{cfg: config}
	if config.LoggerFactory != nil {
		v.log = config.LoggerFactory.NewLogger("hap-pair-verify")
	}
	return v, nil
}

// State returns the current state.
func (v *Verify) State() VerifyState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Run performs pair-verify and returns the X25519 shared secret.
func (v *Verify) Run(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != VerifyIdle {
		return nil, ErrInvalidState
	}
	shared, err := v.run(ctx)
	if err != nil {
		v.state = VerifyFailed
		if v.log != nil {
			v.log.Warnf("pair-verify with %s failed: %v", v.cfg.Data.AccessoryID, err)
		}
		return nil, err
	}
	v.state = VerifyEstablished
	v.shared = shared
	if v.log != nil {
		v.log.Debugf("pair-verify with %s complete", v.cfg.Data.AccessoryID)
	}
	return append([]byte(nil), shared...), nil
}

// SharedSecret returns the secret of a completed run.
func (v *Verify) SharedSecret() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.shared...)
}

func (v *Verify) run(ctx context.Context) ([]byte, error) {
	data := v.cfg.Data

	eph, err := crypto.GenerateX25519(v.cfg.Rand)
	if err != nil {
		return nil, err
	}

	// M1 -> M2
	m1 := tlv.NewWriter().
		AddByte(tlv.TypeState, 1).
		AddBytes(tlv.TypePublicKey, eph.Public[:]).
		Bytes()
	v.state = VerifyM1Sent
	resp, err := v.cfg.Exchanger.Exchange(ctx, EndpointPairVerify, m1)
	if err != nil {
		return nil, err
	}
	m2, err := checkResponse(resp, 2)
	if err != nil {
		return nil, err
	}
	accEph, err := m2.Require(tlv.TypePublicKey, 32)
	if err != nil {
		return nil, err
	}
	enc, err := m2.Require(tlv.TypeEncryptedData, 0)
	if err != nil {
		return nil, err
	}

	shared, err := eph.SharedSecret(accEph)
	if err != nil {
		return nil, err
	}
	encKey, err := crypto.DeriveKey(shared, crypto.LabelPairVerifyEncrypt)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Open(encKey, crypto.LabelNonce("PV-Msg02"), enc, nil)
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
	if subtle.ConstantTimeCompare(accID, []byte(data.AccessoryID)) != 1 {
		return nil, fmt.Errorf("%w: got %q", ErrUnknownAccessory, accID)
	}
	accSig, err := inner.Require(tlv.TypeSignature, 64)
	if err != nil {
		return nil, err
	}
	if err := crypto.Verify(data.AccessoryLTPK, accSig, accEph, accID, eph.Public[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	// M3 -> M4
	sig, err := crypto.Sign(data.ControllerLTSK, eph.Public[:], []byte(data.ControllerID), accEph)
	if err != nil {
		return nil, err
	}
	sub := tlv.NewWriter().
		AddString(tlv.TypeIdentifier, data.ControllerID).
		AddBytes(tlv.TypeSignature, sig).
		Bytes()
	sealed, err := crypto.Seal(encKey, crypto.LabelNonce("PV-Msg03"), sub, nil)
	if err != nil {
		return nil, err
	}
	m3 := tlv.NewWriter().
		AddByte(tlv.TypeState, 3).
		AddBytes(tlv.TypeEncryptedData, sealed).
		Bytes()
	v.state = VerifyM3Sent
	resp, err = v.cfg.Exchanger.Exchange(ctx, EndpointPairVerify, m3)
	if err != nil {
		return nil, err
	}
	if _, err := checkResponse(resp, 4); err != nil {
		return nil, err
	}
	return shared, nil
}
