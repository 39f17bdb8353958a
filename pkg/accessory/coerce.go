package accessory

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLen is the string length limit when maxLen is absent.
const DefaultMaxLen = 64

// Coerce converts v into a value that fits c's format and metadata:
// numbers are clamped to [min, max], rounded to the nearest step from min
// (or zero), rounded to integers for integer formats and snapped to the
// nearest valid value; strings are truncated to maxLen. Characteristics
// without write permission yield ErrNotWritable; values that cannot be
// converted yield ErrUncoercible.
func (c *Characteristic) Coerce(v any) (any, error) {
	if !c.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, c.ID())
	}
	return c.coerce(v)
}

func (c *Characteristic) coerce(v any) (any, error) {
	switch c.Format {
	case FormatBool:
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v to bool", ErrUncoercible, v)
		}
		return b, nil

	case FormatString:
		s, ok := toString(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v to string", ErrUncoercible, v)
		}
		limit := DefaultMaxLen
		if c.MaxLen != nil {
			limit = *c.MaxLen
		}
		return truncate(s, limit), nil

	case FormatData, FormatTLV8:
		switch t := v.(type) {
		case []byte:
			return base64.StdEncoding.EncodeToString(t), nil
		case string:
			if _, err := base64.StdEncoding.DecodeString(t); err != nil {
				return nil, fmt.Errorf("%w: %q is not base64", ErrUncoercible, t)
			}
			return t, nil
		}
		return nil, fmt.Errorf("%w: %T to %s", ErrUncoercible, v, c.Format)
	}

	if !c.Format.IsNumeric() {
		return nil, fmt.Errorf("%w: unknown format %q", ErrUncoercible, c.Format)
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v to %s", ErrUncoercible, v, c.Format)
	}
	f = c.fitNumber(f)
	if c.Format.IsInteger() {
		if c.Format == FormatUInt64 {
			return toUint64(f), nil
		}
		return int64(f), nil
	}
	return f, nil
}

// fitNumber applies range, step, integer and valid-value rules in that order.
func (c *Characteristic) fitNumber(f float64) float64 {
	lo, hi := c.Format.bounds()
	if c.MinValue != nil {
		lo = math.Max(lo, *c.MinValue)
	}
	if c.MaxValue != nil {
		hi = math.Min(hi, *c.MaxValue)
	}
	if len(c.ValidValuesRange) == 2 {
		lo = math.Max(lo, c.ValidValuesRange[0])
		hi = math.Min(hi, c.ValidValuesRange[1])
	}
	f = clamp(f, lo, hi)

	if c.MinStep != nil && *c.MinStep > 0 {
		step := *c.MinStep
		base := 0.0
		if c.MinValue != nil {
			base = *c.MinValue
		}
		f = base + math.Round((f-base)/step)*step
		// Rounding up may overshoot the maximum.
		for f > hi && f-step >= lo {
			f -= step
		}
		f = cleanFloat(f)
	}

	if c.Format.IsInteger() {
		f = clamp(math.Round(f), math.Ceil(lo), math.Floor(hi))
	}

	if len(c.ValidValues) > 0 {
		best := c.ValidValues[0]
		for _, vv := range c.ValidValues[1:] {
			if math.Abs(vv-f) < math.Abs(best-f) {
				best = vv
			}
		}
		f = best
	}
	return f
}

// NormalizeValue converts a JSON-decoded value to the Go type matching
// format: int64 or uint64 for integer formats, float64 for float, bool for
// bool (accepting 0/1). Values that do not fit are returned unchanged.
func NormalizeValue(format Format, v any) any {
	if v == nil {
		return nil
	}
	switch {
	case format == FormatBool:
		if b, ok := toBool(v); ok {
			return b
		}
	case format == FormatUInt64:
		if u, ok := v.(uint64); ok {
			return u
		}
		if f, ok := toFloat(v); ok && f >= 0 {
			return toUint64(f)
		}
	case format.IsInteger():
		if f, ok := toFloat(v); ok && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
	case format == FormatFloat:
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return v
}

// toUint64 saturates at both ends of the range, where a plain conversion
// is implementation-defined.
func toUint64(f float64) uint64 {
	switch {
	case f >= twoTo64:
		return math.MaxUint64
	case f <= 0:
		return 0
	}
	return uint64(f)
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// cleanFloat drops binary noise such as 0.30000000000000004.
func cleanFloat(f float64) float64 {
	return math.Round(f*1e9) / 1e9
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case bool, float64, float32, int, int64, int32, uint64, uint32:
		return fmt.Sprint(t), true
	}
	return "", false
}
