package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional measurement. The zero value is absent.
//
// Absence is carried in the type rather than as NaN so that every layer
// (engine, assessor, classifier, JSON boundary) handles "no value" the same way.
type Value struct {
	v     float64
	valid bool
}

// Some returns a present value. NaN and ±Inf are treated as absent.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, valid: true}
}

// None returns an absent value.
func None() Value {
	return Value{}
}

// Ptr converts a nullable float into a Value.
func Ptr(p *float64) Value {
	if p == nil {
		return Value{}
	}
	return Some(*p)
}

// Get returns the value and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.v, v.valid
}

// Valid reports whether the value is present.
func (v Value) Valid() bool {
	return v.valid
}

// Positive reports whether the value is present and strictly greater than zero.
func (v Value) Positive() bool {
	return v.valid && v.v > 0
}

// Or returns the value, or def when absent.
func (v Value) Or(def float64) float64 {
	if !v.valid {
		return def
	}
	return v.v
}

// String formats present values without trailing zeros and absent values as "n/a".
func (v Value) String() string {
	if !v.valid {
		return "n/a"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes null as absent.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}
