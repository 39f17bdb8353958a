package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
)

var (
	// ErrNotFound is returned by Load and Delete for unknown device IDs.
	ErrNotFound = errors.New("storage: no pairing for device")

	// ErrCorrupt is returned when the backing file cannot be decoded.
	ErrCorrupt = fmt.Errorf("storage: corrupt pairing store: %w", hap.ErrDecode)
)

// PairingStore keeps pairing data by accessory device ID.
// Implementations must be safe for concurrent access.
type PairingStore interface {
	// Load returns the pairing for deviceID, or ErrNotFound.
	Load(deviceID string) (*pairing.Data, error)

	// Save stores data for deviceID, replacing any previous pairing.
	Save(deviceID string, data *pairing.Data) error

	// Delete removes the pairing for deviceID, or returns ErrNotFound.
	Delete(deviceID string) error

	// List returns the stored device IDs in sorted order.
	List() ([]string, error)
}

// key normalizes device IDs so lookups ignore case.
func key(deviceID string) string {
	return strings.ToUpper(strings.TrimSpace(deviceID))
}

// MemoryStore is an in-memory PairingStore.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ PairingStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Load implements PairingStore.
func (s *MemoryStore) Load(deviceID string) (*pairing.Data, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key(deviceID)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return decode(blob)
}

// Save implements PairingStore. The data is copied through its binary
// form so later changes to data do not leak into the store.
func (s *MemoryStore) Save(deviceID string, data *pairing.Data) error {
	blob, err := encode(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key(deviceID)] = blob
	return nil
}

// Delete implements PairingStore.
func (s *MemoryStore) Delete(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(deviceID)
	if _, ok := s.blobs[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	delete(s.blobs, k)
	return nil
}

// List implements PairingStore.
func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.blobs), nil
}

func sortedKeys(m map[string][]byte) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func encode(data *pairing.Data) ([]byte, error) {
	if data == nil {
		return nil, pairing.ErrInvalidData
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data.MarshalBinary()
}

func decode(blob []byte) (*pairing.Data, error) {
	d := new(pairing.Data)
	if err := d.UnmarshalBinary(blob); err != nil {
		return nil, err
	}
	return d, nil
}
