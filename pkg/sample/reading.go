package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reading is an optional numeric value: either present with a value, or absent.
// The zero value is absent.
//
// On the wire an absent reading is JSON null and a present one is a number.
type Reading struct {
	value   float64
	present bool
}

// Some returns a present reading.
func Some(v float64) Reading {
	return Reading{value: v, present: true}
}

// None returns an absent reading.
func None() Reading {
	return Reading{}
}

// Get returns the value and whether it is present.
func (r Reading) Get() (float64, bool) {
	return r.value, r.present
}

// Present reports whether the reading has a value.
func (r Reading) Present() bool {
	return r.present
}

// String renders the value, or "-" when absent.
func (r Reading) String() string {
	if !r.present {
		return "-"
	}
	return strconv.FormatFloat(r.value, 'f', -1, 64)
}

func (r Reading) pointer() *float64 {
	if !r.present {
		return nil
	}
	v := r.value
	return &v
}

// MarshalJSON implements json.Marshaler.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.present {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = None()
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("reading must be a number or null: %w", err)
	}

	*r = Some(v)
	return nil
}
