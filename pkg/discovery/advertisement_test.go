package discovery

import (
	"testing"

	"github.com/backkem/hap/pkg/hap"
	"github.com/rigado/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdv is a scanned advertisement with only the fields HAP reads.
type fakeAdv struct {
	name string
	mfg  []byte
	addr ble.Addr
}

func (a *fakeAdv) LocalName() string                      { return a.name }
func (a *fakeAdv) ManufacturerData() []byte               { return a.mfg }
func (a *fakeAdv) ServiceData() []ble.ServiceData         { return nil }
func (a *fakeAdv) Services() []ble.UUID                   { return nil }
func (a *fakeAdv) OverflowService() []ble.UUID            { return nil }
func (a *fakeAdv) TxPowerLevel() int                      { return 0 }
func (a *fakeAdv) Connectable() bool                      { return true }
func (a *fakeAdv) SolicitedService() []ble.UUID           { return nil }
func (a *fakeAdv) RSSI() int                              { return -50 }
func (a *fakeAdv) Addr() ble.Addr                         { return a.addr }
func (a *fakeAdv) AddrType() uint8                        { return 0 }
func (a *fakeAdv) Timestamp() int64                       { return 0 }
func (a *fakeAdv) ToMap() (map[string]interface{}, error) { return nil, nil }
func (a *fakeAdv) Data() []byte                           { return nil }
func (a *fakeAdv) SrData() []byte                         { return nil }

// hapMfg builds HAP manufacturer data for device 11:22:33:44:55:66.
func hapMfg(sf byte, gsn uint16, cn byte, hash bool) []byte {
	body := []byte{
		sf,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
		0x05, 0x00,
		byte(gsn), byte(gsn >> 8),
		cn,
		0x02,
	}
	if hash {
		body = append(body, 0xDE, 0xAD, 0xBE, 0xEF)
	}
	// Upper STL bits carry the advertising interval.
	out := []byte{0x4C, 0x00, HAPAdvertisementType, 0x20 | byte(len(body))}
	return append(out, body...)
}

func TestParseManufacturerData(t *testing.T) {
	a, err := ParseManufacturerData(hapMfg(0x01, 0x0102, 3, true))
	require.NoError(t, err)
	assert.Equal(t, hap.StatusNotPaired, a.Status)
	assert.Equal(t, "11:22:33:44:55:66", a.DeviceID)
	assert.Equal(t, hap.Category(5), a.Category)
	assert.Equal(t, uint16(0x0102), a.GlobalStateNumber)
	assert.Equal(t, uint8(3), a.ConfigNumber)
	assert.Equal(t, uint8(2), a.CompatibleVersion)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, a.SetupHash)

	a, err = ParseManufacturerData(hapMfg(0, 7, 1, false))
	require.NoError(t, err)
	assert.Nil(t, a.SetupHash)
}

func TestParseManufacturerData_Invalid(t *testing.T) {
	short := hapMfg(0, 1, 1, false)
	short[3] = 0x0C

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"other company", append([]byte{0x06, 0x00}, hapMfg(0, 1, 1, false)[2:]...)},
		{"other type", append([]byte{0x4C, 0x00, 0x10}, hapMfg(0, 1, 1, false)[3:]...)},
		{"length below minimum", short},
		{"truncated", hapMfg(0, 1, 1, false)[:10]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseManufacturerData(tc.data)
			assert.ErrorIs(t, err, ErrNotHAPAdvertisement)
			assert.ErrorIs(t, err, hap.ErrDecode)
		})
	}
}

func TestParseAdvertisement(t *testing.T) {
	adv := &fakeAdv{name: "Sensor", mfg: hapMfg(0, 42, 2, false), addr: ble.NewAddr("aa:bb:cc:00:11:22")}
	assert.True(t, IsHAPAdvertisement(adv))

	d, err := ParseAdvertisement(adv)
	require.NoError(t, err)
	assert.Equal(t, hap.TransportBLE, d.Transport)
	assert.Equal(t, "11:22:33:44:55:66", d.DeviceID)
	assert.Equal(t, "Sensor", d.Name)
	assert.Equal(t, uint16(42), d.GlobalStateNumber)
	assert.Equal(t, uint32(2), d.ConfigNumber)
	assert.True(t, d.Paired())
	assert.Equal(t, adv.addr.String(), d.Address())

	other := &fakeAdv{mfg: []byte{0x4C, 0x00, 0x02, 0x15}, addr: adv.addr}
	assert.False(t, IsHAPAdvertisement(other))
	assert.False(t, IsHAPAdvertisement(&fakeAdv{}))

	_, err = ParseAdvertisement(&fakeAdv{mfg: adv.mfg})
	assert.ErrorIs(t, err, ErrNotHAPAdvertisement)
}
