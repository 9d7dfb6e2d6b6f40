package models

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Value is a metric reading that is either present or explicitly absent.
// Absent values serialize as JSON null and never as zero or a placeholder.
type Value struct {
	d     decimal.Decimal
	valid bool
}

// Present wraps a known decimal reading.
func Present(d decimal.Decimal) Value {
	return Value{d: d, valid: true}
}

// Absent returns a value with no reading.
func Absent() Value {
	return Value{}
}

// FromFloat wraps a float reading.
func FromFloat(f float64) Value {
	return Present(decimal.NewFromFloat(f))
}

// ParseValue parses the textual form used in CSV files. An empty string is absent.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("parse value %q: %w", s, err)
	}
	return Present(d), nil
}

func (v Value) IsPresent() bool { return v.valid }

// Decimal returns the reading and whether it is present.
func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.d, v.valid
}

// String renders the reading, or "" when absent.
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	return v.d.String()
}

// Equal reports whether both values are absent or both hold the same number.
func (v Value) Equal(o Value) bool {
	if v.valid != o.valid {
		return false
	}
	return !v.valid || v.d.Equal(o.d)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return []byte(v.d.String()), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = Absent()
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*v = Present(d)
	return nil
}
