package session

import (
	"math"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
)

// Config is used to create a Session after pair-verify.
type Config struct {
	Role Role
	Keys Keys
}

// Session encrypts and decrypts messages for one verified connection.
// Each direction has its own key and counter; a counter is consumed by
// every Seal or Open attempt in that direction.
type Session struct {
	role       Role
	encryptKey []byte
	decryptKey []byte

	mu          sync.Mutex
	sendCounter uint64
	recvCounter uint64
	failed      bool
}

// New creates a Session.
func New(config Config) (*Session, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if len(config.Keys.Write) != crypto.KeySize || len(config.Keys.Read) != crypto.KeySize {
		return nil, ErrInvalidKey
	}

	s := &Session{
		role:       config.Role,
		encryptKey: make([]byte, crypto.KeySize),
		decryptKey: make([]byte, crypto.KeySize),
	}
	if config.Role == RoleController {
		copy(s.encryptKey, config.Keys.Write)
		copy(s.decryptKey, config.Keys.Read)
	} else {
		copy(s.encryptKey, config.Keys.Read)
		copy(s.decryptKey, config.Keys.Write)
	}
	return s, nil
}

// Role returns the local role.
func (s *Session) Role() Role {
	return s.role
}

// Seal encrypts plaintext with the next outbound counter.
func (s *Session) Seal(plaintext, aad []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return nil, ErrSessionFailed
	}
	if s.sendCounter == math.MaxUint64 {
		return nil, ErrCounterExhausted
	}
	ct, err := crypto.Seal(s.encryptKey, crypto.CounterNonce(s.sendCounter), plaintext, aad)
	if err != nil {
		return nil, err
	}
	s.sendCounter++
	return ct, nil
}

// Open decrypts ciphertext with the next inbound counter. An
// authentication failure is fatal: the session refuses all further use.
func (s *Session) Open(ciphertext, aad []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return nil, ErrSessionFailed
	}
	if s.recvCounter == math.MaxUint64 {
		return nil, ErrCounterExhausted
	}
	pt, err := crypto.Open(s.decryptKey, crypto.CounterNonce(s.recvCounter), ciphertext, aad)
	if err != nil {
		s.failed = true
		return nil, err
	}
	s.recvCounter++
	return pt, nil
}

// Counters returns the next outbound and inbound counter values.
func (s *Session) Counters() (send, recv uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCounter, s.recvCounter
}

// Failed reports whether a decrypt failure has poisoned the session.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
