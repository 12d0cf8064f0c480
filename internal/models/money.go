package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinorUnitsPerUnit is the number of minor units (cents) in one currency unit.
const MinorUnitsPerUnit = 100

// Money is an amount in minor currency units.
// It is rendered as a decimal string with two fractional digits.
type Money int64

// NewMoney builds an amount from whole units and cents.
func NewMoney(units, cents int64) Money {
	return Money(units*MinorUnitsPerUnit + cents)
}

// ParseMoney parses "10", "10.5" or "10.50". Negative amounts are rejected.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty money amount")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, fmt.Errorf("invalid money amount %q", s)
	}

	var cents int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid money amount %q", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("invalid money amount %q", s)
		}
	}

	return NewMoney(units, cents), nil
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorUnitsPerUnit, v%MinorUnitsPerUnit)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "10.00" and 10.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("money must be a string or a number: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
