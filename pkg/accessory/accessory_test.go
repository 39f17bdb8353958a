package accessory

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/backkem/hap/pkg/hap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lightbulbDB = `{
  "accessories": [{
    "aid": 1,
    "services": [
      {"iid": 1, "type": "3E", "characteristics": [
        {"iid": 2, "type": "23", "format": "string", "perms": ["pr"], "value": "Desk Lamp"},
        {"iid": 3, "type": "20", "format": "string", "perms": ["pr"], "value": "Acme"},
        {"iid": 4, "type": "14", "format": "bool", "perms": ["pw"]}
      ]},
      {"iid": 10, "type": "00000043-0000-1000-8000-0026BB765291", "primary": true, "characteristics": [
        {"iid": 11, "type": "25", "format": "bool", "perms": ["pr", "pw", "ev"], "value": 1},
        {"iid": 12, "type": "8", "format": "int", "perms": ["pr", "pw", "ev"], "value": 50,
         "unit": "percentage", "minValue": 0, "maxValue": 100, "minStep": 1}
      ]}
    ]
  }]
}`

func TestDecode(t *testing.T) {
	db, err := Decode([]byte(lightbulbDB))
	require.NoError(t, err)
	require.Len(t, db.Accessories, 1)

	acc := db.Accessory(1)
	require.NotNil(t, acc)

	svc := acc.Service(ShortType(0x43))
	require.NotNil(t, svc)
	assert.True(t, svc.Primary)

	on := svc.Characteristic(ShortType(0x25))
	require.NotNil(t, on)
	assert.Equal(t, ID{AID: 1, IID: 11}, on.ID())
	assert.Equal(t, true, on.Value, "numeric bool normalized")
	assert.True(t, on.Notifies())

	bri, err := db.Find(ID{AID: 1, IID: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(50), bri.Value)
	assert.Equal(t, UnitPercentage, bri.Unit)
	assert.Equal(t, svc, acc.ServiceOf(12))

	_, err = db.Find(ID{AID: 2, IID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"accessories": [`))
	assert.ErrorIs(t, err, hap.ErrDecode)

	_, err = Decode([]byte(`{"accessories": [{"aid": 1, "services": [{"iid": 1, "type": "zz"}]}]}`))
	assert.ErrorIs(t, err, hap.ErrDecode)
}

func TestEncodeRoundTripTypes(t *testing.T) {
	db, err := Decode([]byte(lightbulbDB))
	require.NoError(t, err)
	out, err := db.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"43"`)

	again, err := Decode(out)
	require.NoError(t, err)
	c, err := again.Find(ID{AID: 1, IID: 12})
	require.NoError(t, err)
	assert.Equal(t, ShortType(0x08), c.Type)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		code uint32
	}{
		{"25", 0x25},
		{"0000004A", 0x4A},
		{"00000043-0000-1000-8000-0026BB765291", 0x43},
		{"00000043-0000-1000-8000-0026bb765291", 0x43},
	}
	for _, tc := range tests {
		got, err := ParseType(tc.in)
		require.NoError(t, err, tc.in)
		code, ok := got.Code()
		assert.True(t, ok, tc.in)
		assert.Equal(t, tc.code, code, tc.in)
	}

	vendor, err := ParseType("E863F10D-079E-48FF-8F27-9C2605A29F52")
	require.NoError(t, err)
	assert.False(t, vendor.IsApple())
	assert.Equal(t, "E863F10D-079E-48FF-8F27-9C2605A29F52", vendor.String())

	_, err = ParseType("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestType_LE(t *testing.T) {
	on := ShortType(0x25)
	le := on.LE()
	assert.Equal(t, byte(0x91), le[0])
	assert.Equal(t, byte(0x25), le[12])

	back, err := TypeFromLE(le)
	require.NoError(t, err)
	assert.Equal(t, on, back)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("1.12")
	require.NoError(t, err)
	assert.Equal(t, ID{AID: 1, IID: 12}, id)
	assert.Equal(t, "1.12", id.String())

	for _, bad := range []string{"", "1", "a.1", "1.b", "1.-2"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}

	assert.Equal(t, "1.2,3.4", JoinIDs([]ID{{1, 2}, {3, 4}}))
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func writable(format Format) *Characteristic {
	return &Characteristic{AID: 1, IID: 9, Format: format, Perms: []Perm{PermPairedRead, PermPairedWrite}}
}

func TestCoerce(t *testing.T) {
	brightness := writable(FormatInt)
	brightness.MinValue, brightness.MaxValue, brightness.MinStep = f64(0), f64(100), f64(1)

	halfStep := writable(FormatFloat)
	halfStep.MinStep = f64(0.5)

	temp := writable(FormatFloat)
	temp.MinValue, temp.MaxValue, temp.MinStep = f64(10), f64(38), f64(0.1)

	mode := writable(FormatUInt8)
	mode.ValidValues = []float64{0, 1, 3}

	level := writable(FormatUInt8)

	name := writable(FormatString)
	name.MaxLen = intp(5)

	tests := []struct {
		name string
		c    *Characteristic
		in   any
		want any
	}{
		{"clamp high", brightness, 150, int64(100)},
		{"clamp low", brightness, -3, int64(0)},
		{"integer rounding", brightness, 42.6, int64(43)},
		{"string number", brightness, "55", int64(55)},
		{"half step up", halfStep, 2.3, 2.5},
		{"half step down", halfStep, 2.2, 2.0},
		{"step from min", temp, 21.04, 21.0},
		{"step noise", temp, 20.33, 20.3},
		{"valid values snap", mode, 2.6, int64(3)},
		{"valid values snap low", mode, 1.4, int64(1)},
		{"format bound", level, 300, int64(255)},
		{"bool from int", writable(FormatBool), 0, false},
		{"bool from string", writable(FormatBool), "true", true},
		{"string truncate", name, "Kitchen", "Kitch"},
		{"string unlimited default", writable(FormatString), strings.Repeat("x", 70), strings.Repeat("x", 64)},
		{"data from bytes", writable(FormatData), []byte{1, 2, 3}, "AQID"},
		{"uint64", writable(FormatUInt64), 7.0, uint64(7)},
		{"uint64 top", writable(FormatUInt64), uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"uint64 past range", writable(FormatUInt64), 1e30, uint64(math.MaxUint64)},
		{"uint64 negative", writable(FormatUInt64), -5.0, uint64(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.c.Coerce(tc.in)
			require.NoError(t, err)
			if f, ok := tc.want.(float64); ok {
				assert.InDelta(t, f, got, 1e-9)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeValue_Integers(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		in     any
		want   any
	}{
		{"uint64 kept exact", FormatUInt64, uint64(math.MaxUint64 - 1), uint64(math.MaxUint64 - 1)},
		{"uint64 from float", FormatUInt64, 42.0, uint64(42)},
		{"uint64 saturates", FormatUInt64, 1e30, uint64(math.MaxUint64)},
		{"uint64 negative unchanged", FormatUInt64, -1.0, -1.0},
		{"int from float", FormatInt, 12.0, int64(12)},
		{"int out of range unchanged", FormatInt, 1e30, 1e30},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeValue(tc.format, tc.in))
		})
	}
}

func TestCoerce_TruncateKeepsUTF8(t *testing.T) {
	c := writable(FormatString)
	c.MaxLen = intp(4)
	got, err := c.Coerce("aäää")
	require.NoError(t, err)
	assert.Equal(t, "aä", got)
}

func TestCoerce_Errors(t *testing.T) {
	ro := &Characteristic{Format: FormatInt, Perms: []Perm{PermPairedRead}}
	_, err := ro.Coerce(1)
	if !errors.Is(err, ErrNotWritable) || !errors.Is(err, hap.ErrUnsupportedOperation) {
		t.Errorf("Coerce() on read-only error = %v, want ErrNotWritable", err)
	}

	tests := []struct {
		name string
		c    *Characteristic
		in   any
	}{
		{"string to int", writable(FormatInt), "bright"},
		{"NaN", writable(FormatFloat), "NaN"},
		{"struct to bool", writable(FormatBool), struct{}{}},
		{"map to string", writable(FormatString), map[string]int{}},
		{"bad base64", writable(FormatTLV8), "%%%"},
		{"unknown format", writable(Format("weird")), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.c.Coerce(tc.in)
			assert.ErrorIs(t, err, ErrUncoercible)
			assert.ErrorIs(t, err, hap.ErrValidation)
		})
	}
}

func TestStatusError(t *testing.T) {
	v := Value{ID: ID{1, 2}, Status: StatusReadOnly}
	err := v.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, hap.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "ReadOnly")

	assert.ErrorIs(t, (&StatusError{Status: StatusInvalidValue}), hap.ErrValidation)
	assert.ErrorIs(t, (&StatusError{Status: StatusBusy}), hap.ErrTransport)
	assert.NoError(t, Value{Status: StatusSuccess}.Err())
}
