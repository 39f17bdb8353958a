package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/backkem/hap/pkg/pairing"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileVersion is the current version of the store file format.
const FileVersion = 1

// fileDocument is the on-disk layout. Blobs are pairing.Data in CBOR and
// appear base64-encoded in the JSON.
type fileDocument struct {
	Version  int               `json:"version"`
	Pairings map[string][]byte `json:"pairings"`
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Path is the JSON file. Required. Missing parent directories are
	// created on the first write.
	Path string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// FileStore is a PairingStore backed by one JSON file. Every mutation
// rewrites the file through a temporary file and a rename, so a crash
// never leaves a half-written store behind.
type FileStore struct {
	path string
	log  logging.LeveledLogger

	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ PairingStore = (*FileStore)(nil)

// OpenFileStore reads the store at config.Path. A missing file is an
// empty store.
func OpenFileStore(config FileStoreConfig) (*FileStore, error) {
	if config.Path == "" {
		return nil, errors.New("storage: no path")
	}
	s := &FileStore{path: config.Path, blobs: make(map[string][]byte)}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hap-storage")
	}

	raw, err := os.ReadFile(config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version > FileVersion {
		return nil, fmt.Errorf("%w: version %d is newer than %d", ErrCorrupt, doc.Version, FileVersion)
	}
	for id, blob := range doc.Pairings {
		s.blobs[key(id)] = blob
	}
	if s.log != nil {
		s.log.Debugf("loaded %d pairings from %s", len(s.blobs), s.path)
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements PairingStore.
func (s *FileStore) Load(deviceID string) (*pairing.Data, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key(deviceID)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return decode(blob)
}

// Save implements PairingStore.
func (s *FileStore) Save(deviceID string, data *pairing.Data) error {
	blob, err := encode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(deviceID)
	prev, had := s.blobs[k]
	s.blobs[k] = blob
	if err := s.flushLocked(); err != nil {
		if had {
			s.blobs[k] = prev
		} else {
			delete(s.blobs, k)
		}
		return err
	}
	return nil
}

// Delete implements PairingStore.
func (s *FileStore) Delete(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(deviceID)
	prev, ok := s.blobs[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	delete(s.blobs, k)
	if err := s.flushLocked(); err != nil {
		s.blobs[k] = prev
		return err
	}
	return nil
}

// List implements PairingStore.
func (s *FileStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.blobs), nil
}

func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(fileDocument{Version: FileVersion, Pairings: s.blobs}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pairings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Tracef("wrote %d pairings to %s", len(s.blobs), s.path)
	}
	return nil
}
