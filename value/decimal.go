package value

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

type DecimalKind int

const (
	DecimalExact DecimalKind = iota
	DecimalNaN
	DecimalPositiveInfinity
	DecimalNegativeInfinity
)

// Decimal is an arbitrary precision decimal that can also carry the special
// values NUMERIC columns allow. Exact values are Int scaled by 10^Exp, so
// 12.34 is Int=1234 Exp=-2 and trailing zeros stay significant.
type Decimal struct {
	Int  *big.Int
	Exp  int32
	Kind DecimalKind
}

func (d Decimal) IsSpecial() bool {
	return d.Kind != DecimalExact
}

func (d Decimal) String() string {
	switch d.Kind {
	case DecimalNaN:
		return "NaN"
	case DecimalPositiveInfinity:
		return "Infinity"
	case DecimalNegativeInfinity:
		return "-Infinity"
	}

	if d.Int == nil {
		return "0"
	}

	digits := new(big.Int).Abs(d.Int).String()
	scale := int(-d.Exp)

	var sb strings.Builder
	if d.Int.Sign() < 0 {
		sb.WriteByte('-')
	}

	switch {
	case scale <= 0:
		sb.WriteString(digits)
		for i := 0; i < -scale; i++ {
			sb.WriteByte('0')
		}
	case len(digits) <= scale:
		sb.WriteString("0.")
		for i := 0; i < scale-len(digits); i++ {
			sb.WriteByte('0')
		}
		sb.WriteString(digits)
	default:
		sb.WriteString(digits[:len(digits)-scale])
		sb.WriteByte('.')
		sb.WriteString(digits[len(digits)-scale:])
	}

	return sb.String()
}

// Float64 returns the nearest float64. Specials map onto the IEEE specials.
func (d Decimal) Float64() float64 {
	switch d.Kind {
	case DecimalNaN:
		return math.NaN()
	case DecimalPositiveInfinity:
		return math.Inf(1)
	case DecimalNegativeInfinity:
		return math.Inf(-1)
	}

	if d.Int == nil {
		return 0
	}

	f, _ := new(big.Float).SetInt(d.Int).Float64()
	return f * math.Pow(10, float64(d.Exp))
}

// MarshalJSON renders exact values as JSON numbers. JSON has no NaN or
// infinity literals, so specials become strings.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d.Kind == DecimalExact {
		return []byte(d.String()), nil
	}
	return json.Marshal(d.String())
}

// ParseDecimal parses the text output of a NUMERIC column. The server prints
// plain decimal notation plus the three special tokens.
func ParseDecimal(s string) (Decimal, error) {
	switch s {
	case "NaN":
		return Decimal{Kind: DecimalNaN}, nil
	case "Infinity":
		return Decimal{Kind: DecimalPositiveInfinity}, nil
	case "-Infinity":
		return Decimal{Kind: DecimalNegativeInfinity}, nil
	}

	mantissa := s
	negative := false
	if len(mantissa) > 0 && (mantissa[0] == '+' || mantissa[0] == '-') {
		negative = mantissa[0] == '-'
		mantissa = mantissa[1:]
	}

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	if digits == "" {
		return Decimal{}, fmt.Errorf("decimal parse %q: no digits", s)
	}

	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Decimal{}, fmt.Errorf("decimal parse %q: unexpected character %q", s, digits[i])
		}
	}

	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal parse %q", s)
	}
	if negative {
		unscaled.Neg(unscaled)
	}

	return Decimal{Int: unscaled, Exp: -int32(len(fracPart))}, nil
}

// ParseMoney parses the text output of a MONEY column. Currency symbols and
// group separators are stripped, and a parenthesized amount reads as
// negative, matching how the server's locales print the type.
func ParseMoney(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decimal{}, fmt.Errorf("money parse: empty input")
	}

	negative := false
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		negative = true
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var amount strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			amount.WriteRune(r)
		case r == '.':
			amount.WriteRune(r)
		case r == '-':
			negative = true
		default:
			// currency symbol, group separator or spacing
		}
	}

	d, err := ParseDecimal(amount.String())
	if err != nil {
		return Decimal{}, fmt.Errorf("money parse %q: %w", s, err)
	}

	if negative {
		d.Int.Neg(d.Int)
	}

	return d, nil
}
