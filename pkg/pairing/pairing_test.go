package pairing_test

import (
	"context"
	"crypto/ed25519"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/hap/internal/hapsim"
	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccessory(t *testing.T) *hapsim.Accessory {
	t.Helper()
	acc, err := hapsim.New(hapsim.Config{})
	require.NoError(t, err)
	return acc
}

func setup(t *testing.T, acc *hapsim.Accessory) *pairing.Data {
	t.Helper()
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn()})
	require.NoError(t, err)
	data, err := s.Run(context.Background(), hapsim.DefaultPIN)
	require.NoError(t, err)
	return data
}

// verified returns a connection on which pair-verify has completed.
func verified(t *testing.T, acc *hapsim.Accessory, data *pairing.Data) *hapsim.Conn {
	t.Helper()
	conn := acc.NewConn()
	v, err := pairing.NewVerify(pairing.VerifyConfig{Exchanger: conn, Data: data})
	require.NoError(t, err)
	_, err = v.Run(context.Background())
	require.NoError(t, err)
	return conn
}

func TestSetupThenVerify(t *testing.T) {
	acc := newAccessory(t)

	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn()})
	require.NoError(t, err)
	assert.Equal(t, pairing.SetupIdle, s.State())

	data, err := s.Run(context.Background(), hapsim.DefaultPIN)
	require.NoError(t, err)
	assert.Equal(t, pairing.SetupPaired, s.State())
	require.NoError(t, data.Validate())
	assert.Equal(t, acc.ID(), data.AccessoryID)
	assert.Equal(t, acc.PublicKey(), data.AccessoryLTPK)
	assert.True(t, acc.Paired())

	conn := acc.NewConn()
	v, err := pairing.NewVerify(pairing.VerifyConfig{Exchanger: conn, Data: data})
	require.NoError(t, err)
	shared, err := v.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, shared, 32)
	assert.Equal(t, conn.SharedSecret(), shared)
	assert.Equal(t, shared, v.SharedSecret())
	assert.Equal(t, pairing.VerifyEstablished, v.State())
	assert.True(t, conn.Verified())

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, pairing.ErrInvalidState)
}

func TestSetup_KeepsGivenIdentity(t *testing.T) {
	acc := newAccessory(t)
	id, err := pairing.NewIdentity(nil)
	require.NoError(t, err)

	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn(), Identity: id})
	require.NoError(t, err)
	data, err := s.Run(context.Background(), hapsim.DefaultPIN)
	require.NoError(t, err)
	assert.Equal(t, id.ID, data.ControllerID)
	assert.Equal(t, id.PublicKey, data.ControllerLTPK)

	pairings := acc.Pairings()
	require.Len(t, pairings, 1)
	assert.Equal(t, id.ID, pairings[0].ID)
	assert.True(t, pairings[0].Admin)
}

func TestSetup_WrongPIN(t *testing.T) {
	acc := newAccessory(t)
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn()})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "111-22-333")
	assert.ErrorIs(t, err, pairing.ErrAuthentication)
	assert.ErrorIs(t, err, hap.ErrAuthentication)
	var ae *pairing.AccessoryError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, byte(4), ae.State)
	assert.Equal(t, pairing.SetupFailed, s.State())
	assert.False(t, acc.Paired())

	// A failed attempt restarts from M1.
	_, err = s.Run(context.Background(), hapsim.DefaultPIN)
	require.NoError(t, err)
	assert.True(t, acc.Paired())
}

func TestSetup_InvalidPINSendsNothing(t *testing.T) {
	var calls atomic.Int32
	ex := pairing.ExchangerFunc(func(context.Context, pairing.Endpoint, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: ex})
	require.NoError(t, err)

	for _, pin := range []string{"12345678", "123-45-67a", "1234-5-678", "x"} {
		_, err := s.Run(context.Background(), pin)
		assert.ErrorIs(t, err, pairing.ErrInvalidPIN, pin)
		assert.ErrorIs(t, err, hap.ErrValidation, pin)
	}
	assert.Zero(t, calls.Load())
	assert.Equal(t, pairing.SetupIdle, s.State())
}

func TestSetup_NilExchanger(t *testing.T) {
	_, err := pairing.NewSetup(pairing.SetupConfig{})
	assert.ErrorIs(t, err, pairing.ErrNilExchanger)

	_, err = pairing.NewVerify(pairing.VerifyConfig{})
	assert.ErrorIs(t, err, pairing.ErrNilExchanger)

	_, err = pairing.NewVerify(pairing.VerifyConfig{Exchanger: newAccessory(t).NewConn()})
	assert.ErrorIs(t, err, pairing.ErrNotPaired)
}

func TestSetup_DisplayPIN(t *testing.T) {
	acc := newAccessory(t)
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn()})
	require.NoError(t, err)

	_, err = s.Resume(context.Background(), hapsim.DefaultPIN)
	assert.ErrorIs(t, err, pairing.ErrInvalidState)

	_, err = s.Run(context.Background(), pairing.DisplayPIN)
	assert.ErrorIs(t, err, pairing.ErrPINRequired)
	assert.Equal(t, pairing.SetupAwaitingPIN, s.State())
	assert.False(t, s.Expired())

	// A mistyped code keeps the attempt pending.
	_, err = s.Resume(context.Background(), "12-345-678")
	assert.ErrorIs(t, err, pairing.ErrInvalidPIN)
	assert.Equal(t, pairing.SetupAwaitingPIN, s.State())

	_, err = s.Run(context.Background(), hapsim.DefaultPIN)
	assert.ErrorIs(t, err, pairing.ErrInvalidState)

	data, err := s.Resume(context.Background(), hapsim.DefaultPIN)
	require.NoError(t, err)
	assert.Equal(t, acc.ID(), data.AccessoryID)
	assert.Equal(t, pairing.SetupPaired, s.State())
}

func TestSetup_DisplayPINExpires(t *testing.T) {
	mock := clock.NewMock()
	acc := newAccessory(t)
	s, err := pairing.NewSetup(pairing.SetupConfig{
		Exchanger:  acc.NewConn(),
		PendingTTL: time.Minute,
		Clock:      mock,
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), pairing.DisplayPIN)
	require.ErrorIs(t, err, pairing.ErrPINRequired)

	mock.Add(59 * time.Second)
	assert.False(t, s.Expired())
	mock.Add(2 * time.Second)
	assert.True(t, s.Expired())

	_, err = s.Resume(context.Background(), hapsim.DefaultPIN)
	assert.ErrorIs(t, err, pairing.ErrPINExpired)
	assert.Equal(t, pairing.SetupFailed, s.State())
	assert.False(t, s.Expired())
	assert.False(t, acc.Paired())
}

func TestSetup_AlreadyPaired(t *testing.T) {
	acc := newAccessory(t)
	setup(t, acc)

	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: acc.NewConn()})
	require.NoError(t, err)
	_, err = s.Run(context.Background(), hapsim.DefaultPIN)
	assert.ErrorIs(t, err, pairing.ErrAccessoryUnavailable)
	assert.Equal(t, pairing.SetupFailed, s.State())
}

func TestVerify_UnknownController(t *testing.T) {
	acc := newAccessory(t)
	data := setup(t, acc)

	stranger, err := pairing.NewIdentity(nil)
	require.NoError(t, err)
	forged := *data
	forged.ControllerID = stranger.ID
	forged.ControllerLTPK = stranger.PublicKey
	forged.ControllerLTSK = stranger.PrivateKey

	v, err := pairing.NewVerify(pairing.VerifyConfig{Exchanger: acc.NewConn(), Data: &forged})
	require.NoError(t, err)
	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, pairing.ErrAuthentication)
	assert.Equal(t, pairing.VerifyFailed, v.State())
}

func TestVerify_WrongAccessory(t *testing.T) {
	acc := newAccessory(t)
	data := setup(t, acc)

	other, err := hapsim.New(hapsim.Config{ID: "AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	v, err := pairing.NewVerify(pairing.VerifyConfig{Exchanger: other.NewConn(), Data: data})
	require.NoError(t, err)
	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, pairing.ErrUnknownAccessory)
	assert.ErrorIs(t, err, hap.ErrAuthentication)
}

func TestAdmin(t *testing.T) {
	ctx := context.Background()
	acc := newAccessory(t)
	data := setup(t, acc)

	_, err := pairing.ListPairings(ctx, acc.NewConn())
	assert.ErrorIs(t, err, pairing.ErrAuthentication, "unverified connection")

	conn := verified(t, acc, data)
	list, err := pairing.ListPairings(ctx, conn)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, data.ControllerID, list[0].ID)
	assert.True(t, list[0].Admin)

	guest, err := pairing.NewIdentity(nil)
	require.NoError(t, err)
	require.NoError(t, pairing.AddPairing(ctx, conn, pairing.Pairing{ID: guest.ID, PublicKey: guest.PublicKey}))

	list, err = pairing.ListPairings(ctx, conn)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]pairing.Pairing{}
	for _, p := range list {
		byID[p.ID] = p
	}
	assert.False(t, byID[guest.ID].Admin)
	assert.Equal(t, guest.PublicKey, byID[guest.ID].PublicKey)

	require.NoError(t, pairing.RemovePairing(ctx, conn, guest.ID))
	list, err = pairing.ListPairings(ctx, conn)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Removing our own pairing leaves the accessory unpaired.
	require.NoError(t, pairing.RemovePairing(ctx, conn, data.ControllerID))
	assert.False(t, acc.Paired())
}

func TestAccessoryError(t *testing.T) {
	tests := []struct {
		code tlv.ErrorCode
		want error
		kind error
	}{
		{tlv.ErrorCodeUnknown, pairing.ErrAccessoryUnknown, hap.ErrTransport},
		{tlv.ErrorCodeAuthentication, pairing.ErrAuthentication, hap.ErrAuthentication},
		{tlv.ErrorCodeBackoff, pairing.ErrAccessoryBackoff, hap.ErrTransport},
		{tlv.ErrorCodeMaxPeers, pairing.ErrAccessoryMaxPeers, hap.ErrAuthentication},
		{tlv.ErrorCodeMaxTries, pairing.ErrAccessoryMaxTries, hap.ErrAuthentication},
		{tlv.ErrorCodeUnavailable, pairing.ErrAccessoryUnavailable, hap.ErrAuthentication},
		{tlv.ErrorCodeBusy, pairing.ErrAccessoryBusy, hap.ErrTransport},
	}
	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			err := error(&pairing.AccessoryError{Code: tc.code, State: 2})
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestAccessoryError_RetryDelay(t *testing.T) {
	ex := pairing.ExchangerFunc(func(context.Context, pairing.Endpoint, []byte) ([]byte, error) {
		return tlv.NewWriter().
			AddByte(tlv.TypeState, 2).
			AddByte(tlv.TypeError, byte(tlv.ErrorCodeBackoff)).
			AddUint(tlv.TypeRetryDelay, 30).
			Bytes(), nil
	})
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: ex})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), hapsim.DefaultPIN)
	var ae *pairing.AccessoryError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 30*time.Second, ae.RetryDelay)
	assert.True(t, hap.IsRetryable(err))
	assert.Contains(t, err.Error(), "retry in 30s")
}

func TestSetup_UnexpectedState(t *testing.T) {
	ex := pairing.ExchangerFunc(func(context.Context, pairing.Endpoint, []byte) ([]byte, error) {
		return tlv.NewWriter().AddByte(tlv.TypeState, 4).Bytes(), nil
	})
	s, err := pairing.NewSetup(pairing.SetupConfig{Exchanger: ex})
	require.NoError(t, err)
	_, err = s.Run(context.Background(), hapsim.DefaultPIN)
	assert.ErrorIs(t, err, pairing.ErrUnexpectedState)
	assert.ErrorIs(t, err, hap.ErrDecode)
}

func TestData_Binary(t *testing.T) {
	data := setup(t, newAccessory(t))

	blob, err := data.MarshalBinary()
	require.NoError(t, err)

	var back pairing.Data
	require.NoError(t, back.UnmarshalBinary(blob))
	assert.Equal(t, *data, back)
	assert.Equal(t, data.ControllerID, back.Identity().ID)

	again, err := back.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, blob, again, "encoding is deterministic")

	assert.ErrorIs(t, back.UnmarshalBinary([]byte{0xff, 0x00}), pairing.ErrInvalidData)

	short := *data
	short.AccessoryLTPK = short.AccessoryLTPK[:8]
	blob, err = short.MarshalBinary()
	require.NoError(t, err)
	err = back.UnmarshalBinary(blob)
	assert.ErrorIs(t, err, pairing.ErrInvalidData)
	assert.ErrorIs(t, err, hap.ErrDecode)
	assert.Len(t, back.AccessoryLTPK, ed25519.PublicKeySize, "failed decode leaves the value intact")
}

func TestPIN(t *testing.T) {
	tests := []struct {
		in      string
		norm    string
		valid   bool
		trivial bool
	}{
		{"123-45-678", "123-45-678", true, true},
		{"12345678", "123-45-678", false, true},
		{"031-45-154", "031-45-154", true, false},
		{"111-11-111", "111-11-111", true, true},
		{"876-54-321", "876-54-321", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if tc.valid {
				assert.NoError(t, pairing.ValidatePIN(tc.in))
			} else {
				assert.ErrorIs(t, pairing.ValidatePIN(tc.in), pairing.ErrInvalidPIN)
			}
			norm, err := pairing.NormalizePIN(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.norm, norm)
			assert.NoError(t, pairing.ValidatePIN(norm))
			assert.Equal(t, tc.trivial, pairing.IsTrivialPIN(norm))
		})
	}

	for _, bad := range []string{"", "1234567", "1234-5678", "abc-de-fgh"} {
		_, err := pairing.NormalizePIN(bad)
		assert.ErrorIs(t, err, pairing.ErrInvalidPIN, bad)
	}
}
