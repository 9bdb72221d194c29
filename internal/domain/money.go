package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CentsPerUnit is the number of minor units in one currency unit.
const CentsPerUnit = 100

// Money is an amount in minor units (hundredths). Fee arithmetic stays in integers;
// decimals are only produced at the storage and JSON edges.
type Money int64

// ParseMoney reads a decimal amount such as "65000", "1.005" or "-3.5", rounding half
// away from zero to two decimal places.
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > (1<<62)/CentsPerUnit {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	frac += "000"
	cents, _ := strconv.ParseInt(frac[:2], 10, 64)
	total := units*CentsPerUnit + cents
	if frac[2] >= '5' {
		total++
	}
	if negative {
		total = -total
	}
	return Money(total), nil
}

// MoneyFromFloat converts a decoded JSON or YAML number. The shortest decimal form of
// the float is what the caller wrote, so 1.005 rounds to 1.01.
func MoneyFromFloat(v float64) Money {
	m, err := ParseMoney(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return 0
	}
	return m
}

// Float64 is the amount in currency units, for presentation only.
func (m Money) Float64() float64 {
	return float64(m) / CentsPerUnit
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/CentsPerUnit, v%CentsPerUnit)
}

// MarshalJSON writes the amount as a decimal number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		return nil
	}
	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
