package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData(t *testing.T, accessoryID string) *pairing.Data {
	t.Helper()
	ctrl, err := pairing.NewIdentity(nil)
	require.NoError(t, err)
	acc, err := pairing.NewIdentity(nil)
	require.NoError(t, err)
	return &pairing.Data{
		ControllerID:   ctrl.ID,
		ControllerLTPK: ctrl.PublicKey,
		ControllerLTSK: ctrl.PrivateKey,
		AccessoryID:    accessoryID,
		AccessoryLTPK:  acc.PublicKey,
	}
}

func testStores(t *testing.T) map[string]PairingStore {
	fs, err := OpenFileStore(FileStoreConfig{
		Path:          filepath.Join(t.TempDir(), "nested", "pairings.json"),
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	return map[string]PairingStore{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestPairingStore(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load("AA:BB:CC:DD:EE:FF")
			assert.ErrorIs(t, err, ErrNotFound)

			lamp := testData(t, "AA:BB:CC:DD:EE:FF")
			require.NoError(t, store.Save("aa:bb:cc:dd:ee:ff", lamp))
			require.NoError(t, store.Save("11:22:33:44:55:66", testData(t, "11:22:33:44:55:66")))

			got, err := store.Load("AA:BB:CC:DD:EE:FF")
			require.NoError(t, err)
			assert.Equal(t, lamp, got)

			ids, err := store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"11:22:33:44:55:66", "AA:BB:CC:DD:EE:FF"}, ids)

			replaced := testData(t, "AA:BB:CC:DD:EE:FF")
			require.NoError(t, store.Save("AA:BB:CC:DD:EE:FF", replaced))
			got, err = store.Load("AA:BB:CC:DD:EE:FF")
			require.NoError(t, err)
			assert.Equal(t, replaced.ControllerID, got.ControllerID)

			require.NoError(t, store.Delete("AA:BB:CC:DD:EE:FF"))
			assert.ErrorIs(t, store.Delete("AA:BB:CC:DD:EE:FF"), ErrNotFound)
			_, err = store.Load("AA:BB:CC:DD:EE:FF")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPairingStore_RejectsInvalid(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Save("AA:BB:CC:DD:EE:FF", nil), pairing.ErrInvalidData)
			assert.ErrorIs(t, store.Save("AA:BB:CC:DD:EE:FF", &pairing.Data{ControllerID: "x"}), hap.ErrDecode)

			ids, err := store.List()
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	s, err := OpenFileStore(FileStoreConfig{Path: path})
	require.NoError(t, err)

	d := testData(t, "AA:BB:CC:DD:EE:FF")
	require.NoError(t, s.Save("AA:BB:CC:DD:EE:FF", d))

	again, err := OpenFileStore(FileStoreConfig{Path: path})
	require.NoError(t, err)
	got, err := again.Load("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, path, again.Path())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 1`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestOpenFileStore_Errors(t *testing.T) {
	_, err := OpenFileStore(FileStoreConfig{})
	assert.Error(t, err)

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "pairings"},
		{"newer version", `{"version": 9, "pairings": {}}`},
		{"bad blob", `{"version": 1, "pairings": {"AA:BB:CC:DD:EE:FF": 5}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))
			_, err := OpenFileStore(FileStoreConfig{Path: path})
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.ErrorIs(t, err, hap.ErrDecode)
		})
	}
}

func TestFileStore_UndecodableEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "pairings": {"AA:BB:CC:DD:EE:FF": "AAEC"}}`), 0o600))

	s, err := OpenFileStore(FileStoreConfig{Path: path})
	require.NoError(t, err)
	_, err = s.Load("AA:BB:CC:DD:EE:FF")
	assert.ErrorIs(t, err, pairing.ErrInvalidData)
}
