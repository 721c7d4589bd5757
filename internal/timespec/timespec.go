// Package timespec converts snippet time values into seconds.
//
// A time value is either a number of seconds or a colon-delimited timestamp:
// "SS[.f]", "MM:SS[.f]" or "HH:MM:SS[.f]".
package timespec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a time value cannot be converted to seconds.
var ErrMalformed = errors.New("malformed time spec")

const maxSegments = 3

func malformed(raw any, reason string) error {
	return fmt.Errorf("%w: %v: %s", ErrMalformed, raw, reason)
}

// Parse converts a numeric value or a timestamp string into seconds.
// Numeric values are returned unchanged.
func Parse(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, malformed("<empty>", "no value")
	case string:
		return ParseString(val)
	case bool:
		return 0, malformed(val, "not a number or timestamp")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, malformed(v, err.Error())
	}
	return f, nil
}

// ParseString converts "SS[.f]", "MM:SS[.f]" or "HH:MM:SS[.f]" into seconds.
func ParseString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, malformed(strconv.Quote(s), "empty timestamp")
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) > maxSegments {
		return 0, malformed(strconv.Quote(s), fmt.Sprintf("%d segments, at most %d allowed", len(parts), maxSegments))
	}

	// The last segment carries seconds (optionally fractional); the ones
	// before it are whole minutes and hours.
	seconds, err := parseSeconds(parts[len(parts)-1])
	if err != nil {
		return 0, malformed(strconv.Quote(s), err.Error())
	}

	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := parseWhole(parts[i])
		if err != nil {
			return 0, malformed(strconv.Quote(s), err.Error())
		}
		seconds += float64(n) * multiplier
		multiplier *= 60
	}

	return seconds, nil
}

func parseSeconds(seg string) (float64, error) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return 0, errors.New("empty seconds segment")
	}
	f, err := strconv.ParseFloat(seg, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("segment %q is not numeric", seg)
	}
	return f, nil
}

func parseWhole(seg string) (int, error) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return 0, errors.New("empty segment")
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("segment %q is not a whole number", seg)
	}
	return n, nil
}

// Value holds a time value as written in a job file, either a number or a
// timestamp string. It is resolved to seconds on demand.
type Value struct {
	raw any
}

// FromSeconds returns a Value holding a numeric seconds value.
func FromSeconds(s float64) Value {
	return Value{raw: s}
}

// FromString returns a Value holding a timestamp string.
func FromString(s string) Value {
	return Value{raw: s}
}

// IsSet reports whether the value was present in the job file.
func (v Value) IsSet() bool {
	return v.raw != nil
}

// Seconds resolves the value to seconds since the start of the source.
func (v Value) Seconds() (float64, error) {
	return Parse(v.raw)
}

// String returns the value as it was written.
func (v Value) String() string {
	if v.raw == nil {
		return ""
	}
	return cast.ToString(v.raw)
}

// UnmarshalYAML keeps numeric scalars as numbers and everything else as the
// raw string. Structural validation happens in Seconds.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return malformed(node.Value, "expected a number or timestamp string")
	}
	switch node.ShortTag() {
	case "!!null":
		v.raw = nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return malformed(node.Value, err.Error())
		}
		v.raw = f
	default:
		v.raw = node.Value
	}
	return nil
}

// MarshalYAML writes the value back in its original form.
func (v Value) MarshalYAML() (any, error) {
	return v.raw, nil
}
