package transport

import (
	"testing"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestSignature_RoundTrip(t *testing.T) {
	svc := &accessory.Service{IID: 10, Type: accessory.ShortType(0x43)}
	tests := []struct {
		name string
		c    *accessory.Characteristic
	}{
		{"brightness", &accessory.Characteristic{
			IID: 12, Type: accessory.ShortType(0x08), Format: accessory.FormatInt,
			Perms: []accessory.Perm{accessory.PermPairedRead, accessory.PermPairedWrite, accessory.PermEvents},
			Unit:  accessory.UnitPercentage, MinValue: f64(0), MaxValue: f64(100), MinStep: f64(1),
		}},
		{"temperature", &accessory.Characteristic{
			IID: 13, Type: accessory.ShortType(0x11), Format: accessory.FormatFloat,
			Perms: []accessory.Perm{accessory.PermPairedRead, accessory.PermEvents},
			Unit:  accessory.UnitCelsius, MinValue: f64(-40), MaxValue: f64(100), MinStep: f64(0.5),
		}},
		{"mode", &accessory.Characteristic{
			IID: 14, Type: accessory.ShortType(0x33), Format: accessory.FormatUInt8,
			Perms:       []accessory.Perm{accessory.PermPairedRead, accessory.PermPairedWrite},
			ValidValues: []float64{0, 1, 3}, Description: "Target Mode",
		}},
		{"identify", &accessory.Characteristic{
			IID: 2, Type: accessory.ShortType(0x14), Format: accessory.FormatBool,
			Perms: []accessory.Perm{accessory.PermPairedWrite},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, err := SignatureOf(tc.c, svc).Encode()
			require.NoError(t, err)
			sig, err := DecodeSignature(body)
			require.NoError(t, err)

			assert.Equal(t, svc.Type, sig.ServiceType)
			assert.Equal(t, uint16(10), sig.ServiceIID)

			got := sig.Characteristic(1, tc.c.IID)
			assert.Equal(t, accessory.ID{AID: 1, IID: tc.c.IID}, got.ID())
			assert.Equal(t, tc.c.Type, got.Type)
			assert.Equal(t, tc.c.Format, got.Format)
			assert.ElementsMatch(t, tc.c.Perms, got.Perms)
			assert.Equal(t, tc.c.Unit, got.Unit)
			assert.Equal(t, tc.c.Description, got.Description)
			assert.Equal(t, tc.c.ValidValues, got.ValidValues)
			if tc.c.MinValue != nil {
				require.NotNil(t, got.MinValue)
				require.NotNil(t, got.MaxValue)
				assert.InDelta(t, *tc.c.MinValue, *got.MinValue, 1e-6)
				assert.InDelta(t, *tc.c.MaxValue, *got.MaxValue, 1e-6)
			}
			if tc.c.MinStep != nil {
				require.NotNil(t, got.MinStep)
				assert.InDelta(t, *tc.c.MinStep, *got.MinStep, 1e-6)
			}
		})
	}
}

func TestDecodeSignature_Malformed(t *testing.T) {
	_, err := DecodeSignature([]byte{0x04, 0x02, 0x00})
	assert.Error(t, err)

	_, err = DecodeSignature(nil)
	assert.Error(t, err)
}

func TestPDUError_AccessoryStatus(t *testing.T) {
	tests := []struct {
		in   PDUStatus
		want accessory.Status
	}{
		{PDUStatusInvalidInstanceID, accessory.StatusResourceDoesNotExist},
		{PDUStatusInsufficientAuthorization, accessory.StatusInsufficientAuthorization},
		{PDUStatusInsufficientAuthentication, accessory.StatusInsufficientPrivileges},
		{PDUStatusMaxProcedures, accessory.StatusBusy},
		{PDUStatusInvalidRequest, accessory.StatusInvalidValue},
		{PDUStatusUnsupportedPDU, accessory.StatusUnableToCommunicate},
	}
	for _, tc := range tests {
		e := &PDUError{Status: tc.in}
		assert.Equal(t, tc.want, e.AccessoryStatus(), tc.in.String())
	}
}
