// Package srp implements SRP6a as profiled by HAP pair-setup: the RFC 5054
// 3072-bit group, generator 5, SHA-512 and the fixed username
// "Pair-Setup". A, B and the premaster secret S are left-padded to the
// size of N wherever they are hashed or sent.
//
// Protocol flow:
//
//	Client (controller)                   Verifier (accessory)
//	-------------------                   --------------------
//	                                      NewVerifier(I, P, salt)
//	                      <--salt, B--    B = PublicKey()
//	NewClient(I, P)
//	A = PublicKey()
//	M1 = ProcessChallenge(salt, B)
//	                      --A, M1--->     ProcessClientKey(A)
//	                                      M2 = VerifyClientProof(M1)
//	                      <---M2----
//	VerifyServerProof(M2)
//	K = SessionKey()                      K = SessionKey()
package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/backkem/hap/pkg/hap"
)

// Username is the SRP identity HAP uses for every pair-setup.
const Username = "Pair-Setup"

// SaltSize is the size of the salt sent by the accessory.
const SaltSize = 16

// privateKeySize is the size of the random exponents a and b.
const privateKeySize = 32

var (
	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("srp: invalid protocol state for this operation")

	// ErrInvalidPublicKey is returned for a peer key that is zero mod N or
	// yields a zero scrambling parameter.
	ErrInvalidPublicKey = fmt.Errorf("srp: invalid peer public key: %w", hap.ErrAuthentication)

	// ErrBadServerProof is returned when M2 does not match.
	ErrBadServerProof = fmt.Errorf("srp: server proof mismatch: %w", hap.ErrAuthentication)

	// ErrBadClientProof is returned when M1 does not match.
	ErrBadClientProof = fmt.Errorf("srp: client proof mismatch: %w", hap.ErrAuthentication)
)

type state int

const (
	stateInit state = iota
	stateKeyGenerated
	stateProofSent
	stateVerified
)

// Client is the controller side of SRP6a.
type Client struct {
	username []byte
	password []byte

	a *big.Int
	A *big.Int

	salt []byte
	B    *big.Int
	K    []byte
	m1   []byte

	state state
	rand  io.Reader
}

// NewClient creates a client for the given identity and setup code.
func NewClient(username, password string) *Client {
	return &Client{
		username: []byte(username),
		password: []byte(password),
		rand:     rand.Reader,
	}
}

// PublicKey generates the private exponent and returns A padded to 384
// bytes. It may be called again to fetch the same value.
func (c *Client) PublicKey() ([]byte, error) {
	if c.state == stateInit {
		a, err := randomExponent(c.rand)
		if err != nil {
			return nil, err
		}
		c.a = a
		c.A = new(big.Int).Exp(groupG, a, groupN)
		c.state = stateKeyGenerated
	}
	return pad(c.A), nil
}

// ProcessChallenge consumes the accessory's salt and B and returns the
// client proof M1.
func (c *Client) ProcessChallenge(salt, serverKey []byte) ([]byte, error) {
	if _, err := c.PublicKey(); err != nil {
		return nil, err
	}
	if c.state != stateKeyGenerated {
		return nil, ErrInvalidState
	}

	B := new(big.Int).SetBytes(serverKey)
	if new(big.Int).Mod(B, groupN).Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}
	u := scrambler(c.A, B)
	if u.Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}

	x := privateX(salt, c.username, c.password)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(groupG, x, groupN)
	kgx := new(big.Int).Mul(multiplierK, gx)
	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, groupN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)
	S := new(big.Int).Exp(base, exp, groupN)

	c.salt = append([]byte(nil), salt...)
	c.B = B
	c.K = sessionKey(S)
	c.m1 = clientProof(c.username, c.salt, c.A, B, c.K)
	c.state = stateProofSent

	return append([]byte(nil), c.m1...), nil
}

// VerifyServerProof checks M2 in constant time.
func (c *Client) VerifyServerProof(m2 []byte) error {
	if c.state != stateProofSent {
		return ErrInvalidState
	}
	want := hashOf(pad(c.A), c.m1, c.K)
	if subtle.ConstantTimeCompare(want, m2) != 1 {
		return ErrBadServerProof
	}
	c.state = stateVerified
	return nil
}

// SessionKey returns K = H(PAD(S)). It is only meaningful after the server
// proof verified.
func (c *Client) SessionKey() []byte {
	return append([]byte(nil), c.K...)
}

// Verifier is the accessory side of SRP6a. It exists so pair-setup can be
// exercised without hardware.
type Verifier struct {
	username []byte
	salt     []byte
	v        *big.Int

	b *big.Int
	B *big.Int
	A *big.Int
	K []byte

	state state
	rand  io.Reader
}

// NewVerifier creates a verifier for identity/password with the given salt.
func NewVerifier(username, password string, salt []byte) *Verifier {
	x := privateX(salt, []byte(username), []byte(password))
	return &Verifier{
		username: []byte(username),
		salt:     append([]byte(nil), salt...),
		v:        new(big.Int).Exp(groupG, x, groupN),
		rand:     rand.Reader,
	}
}

// Salt returns the verifier's salt.
func (v *Verifier) Salt() []byte {
	return append([]byte(nil), v.salt...)
}

// PublicKey returns B = k*v + g^b padded to 384 bytes.
func (v *Verifier) PublicKey() ([]byte, error) {
	if v.state == stateInit {
		b, err := randomExponent(v.rand)
		if err != nil {
			return nil, err
		}
		v.b = b
		B := new(big.Int).Mul(multiplierK, v.v)
		B.Add(B, new(big.Int).Exp(groupG, b, groupN))
		B.Mod(B, groupN)
		v.B = B
		v.state = stateKeyGenerated
	}
	return pad(v.B), nil
}

// ProcessClientKey consumes A and computes the session key.
func (v *Verifier) ProcessClientKey(clientKey []byte) error {
	if v.state != stateKeyGenerated {
		return ErrInvalidState
	}
	A := new(big.Int).SetBytes(clientKey)
	if new(big.Int).Mod(A, groupN).Sign() == 0 {
		return ErrInvalidPublicKey
	}
	u := scrambler(A, v.B)
	if u.Sign() == 0 {
		return ErrInvalidPublicKey
	}

	// S = (A * v^u) ^ b mod N
	base := new(big.Int).Exp(v.v, u, groupN)
	base.Mul(base, A)
	base.Mod(base, groupN)
	S := new(big.Int).Exp(base, v.b, groupN)

	v.A = A
	v.K = sessionKey(S)
	v.state = stateProofSent
	return nil
}

// VerifyClientProof checks M1 and returns the server proof M2.
func (v *Verifier) VerifyClientProof(m1 []byte) ([]byte, error) {
	if v.state != stateProofSent {
		return nil, ErrInvalidState
	}
	want := clientProof(v.username, v.salt, v.A, v.B, v.K)
	if subtle.ConstantTimeCompare(want, m1) != 1 {
		return nil, ErrBadClientProof
	}
	v.state = stateVerified
	return hashOf(pad(v.A), want, v.K), nil
}

// SessionKey returns K = H(PAD(S)).
func (v *Verifier) SessionKey() []byte {
	return append([]byte(nil), v.K...)
}

// privateX computes x = H(s | H(I ":" P)).
func privateX(salt, username, password []byte) *big.Int {
	inner := hashOf(username, []byte(":"), password)
	return new(big.Int).SetBytes(hashOf(salt, inner))
}

// sessionKey computes K = H(PAD(S)). S is padded like A and B so a
// premaster secret with a leading zero byte hashes the same on both sides.
func sessionKey(S *big.Int) []byte {
	return hashOf(pad(S))
}

// scrambler computes u = H(PAD(A) | PAD(B)).
func scrambler(A, B *big.Int) *big.Int {
	return new(big.Int).SetBytes(hashOf(pad(A), pad(B)))
}

// clientProof computes M1 = H(H(N) xor H(g) | H(I) | s | PAD(A) | PAD(B) | K).
func clientProof(username, salt []byte, A, B *big.Int, K []byte) []byte {
	hn := hashOf(groupN.Bytes())
	hg := hashOf(groupG.Bytes())
	for i := range hn {
		hn[i] ^= hg[i]
	}
	return hashOf(hn, hashOf(username), salt, pad(A), pad(B), K)
}

func randomExponent(r io.Reader) (*big.Int, error) {
	buf := make([]byte, privateKeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("srp: reading random exponent: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}
