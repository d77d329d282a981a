// Package money provides the fixed point and checked integer arithmetic
// used for all balance and interest calculations in the ledger.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of decimal places carried by a Fixed value.
const Decimals = 18

// scale is the mantissa of 1.0.
var scale = uint256.NewInt(1e18)

// Set of error variables for arithmetic failures. These represent broken
// bookkeeping invariants, not conditions a caller is expected to recover from.
var (
	ErrOverflow     = errors.New("arithmetic overflow")
	ErrUnderflow    = errors.New("arithmetic underflow")
	ErrDivideByZero = errors.New("division by zero")
)

// =============================================================================

// Fixed represents a fractional value as an integer mantissa scaled by 10^18.
// All operations truncate toward zero so that repeated splits of an amount can
// never sum to more than the original.
type Fixed struct {
	mantissa uint256.Int
}

// Zero returns the zero value.
func Zero() Fixed {
	return Fixed{}
}

// One returns the fixed point representation of 1.0.
func One() Fixed {
	return Fixed{mantissa: *scale}
}

// FromUnits converts a whole number of token units into a fixed point value.
func FromUnits(amount uint64) Fixed {
	var f Fixed
	f.mantissa.Mul(uint256.NewInt(amount), scale)
	return f
}

// FromMantissa constructs a fixed point value directly from a raw 10^18
// scaled mantissa.
func FromMantissa(mantissa uint64) Fixed {
	var f Fixed
	f.mantissa.SetUint64(mantissa)
	return f
}

// Parse converts a decimal string such as "1.1" or "0.25" into a fixed
// point value. At most 18 fractional digits are accepted.
func Parse(s string) (Fixed, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}

	if len(frac) > Decimals {
		return Fixed{}, fmt.Errorf("parsing %q: more than %d decimal places", s, Decimals)
	}

	var f Fixed
	if err := f.mantissa.SetFromDecimal(whole + frac + strings.Repeat("0", Decimals-len(frac))); err != nil {
		return Fixed{}, fmt.Errorf("parsing %q: %w", s, err)
	}

	return f, nil
}

// String renders the value as a decimal string with trailing fractional
// zeros removed.
func (f Fixed) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&f.mantissa, scale, &frac)

	if frac.IsZero() {
		return whole.Dec()
	}

	digits := fmt.Sprintf("%018s", frac.Dec())
	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// IsZero reports whether the value is zero.
func (f Fixed) IsZero() bool {
	return f.mantissa.IsZero()
}

// Cmp compares two fixed point values, returning -1, 0 or 1.
func (f Fixed) Cmp(g Fixed) int {
	return f.mantissa.Cmp(&g.mantissa)
}

// =============================================================================

// Add returns f+g, failing on overflow.
func (f Fixed) Add(g Fixed) (Fixed, error) {
	var r Fixed
	if _, carry := r.mantissa.AddOverflow(&f.mantissa, &g.mantissa); carry {
		return Fixed{}, fmt.Errorf("add: %w", ErrOverflow)
	}
	return r, nil
}

// Sub returns f-g, failing if the result would be negative.
func (f Fixed) Sub(g Fixed) (Fixed, error) {
	var r Fixed
	if _, borrow := r.mantissa.SubOverflow(&f.mantissa, &g.mantissa); borrow {
		return Fixed{}, fmt.Errorf("sub: %w", ErrUnderflow)
	}
	return r, nil
}

// Mul returns f×g truncated toward zero.
func (f Fixed) Mul(g Fixed) (Fixed, error) {
	var r Fixed
	if _, overflow := r.mantissa.MulOverflow(&f.mantissa, &g.mantissa); overflow {
		return Fixed{}, fmt.Errorf("mul: %w", ErrOverflow)
	}
	r.mantissa.Div(&r.mantissa, scale)
	return r, nil
}

// MulUnits returns f scaled by a whole number of token units.
func (f Fixed) MulUnits(amount uint64) (Fixed, error) {
	var r Fixed
	if _, overflow := r.mantissa.MulOverflow(&f.mantissa, uint256.NewInt(amount)); overflow {
		return Fixed{}, fmt.Errorf("mul units: %w", ErrOverflow)
	}
	return r, nil
}

// Div returns f÷g truncated toward zero.
func (f Fixed) Div(g Fixed) (Fixed, error) {
	if g.mantissa.IsZero() {
		return Fixed{}, fmt.Errorf("div: %w", ErrDivideByZero)
	}

	var r Fixed
	if _, overflow := r.mantissa.MulOverflow(&f.mantissa, scale); overflow {
		return Fixed{}, fmt.Errorf("div: %w", ErrOverflow)
	}
	r.mantissa.Div(&r.mantissa, &g.mantissa)
	return r, nil
}

// Truncate converts the value back into whole token units, discarding any
// fractional part. Consumers rely on this single rounding rule to keep
// split amounts from exceeding their source.
func (f Fixed) Truncate() (uint64, error) {
	var r uint256.Int
	r.Div(&f.mantissa, scale)
	if !r.IsUint64() {
		return 0, fmt.Errorf("truncate: %w", ErrOverflow)
	}
	return r.Uint64(), nil
}

// =============================================================================

// MarshalJSON implements the json.Marshaler interface rendering the value
// as a decimal string.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface accepting a
// decimal string.
func (f *Fixed) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)

	v, err := Parse(s)
	if err != nil {
		return err
	}

	*f = v
	return nil
}

// =============================================================================

// SafeAdd returns a+b, failing on overflow.
func SafeAdd(a uint64, b uint64) (uint64, error) {
	if a+b < a {
		return 0, fmt.Errorf("safe add: %w", ErrOverflow)
	}
	return a + b, nil
}

// SafeSub returns a-b, failing if the result would be negative.
func SafeSub(a uint64, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("safe sub: %w", ErrUnderflow)
	}
	return a - b, nil
}

// SafeMul returns a×b, failing on overflow.
func SafeMul(a uint64, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a*b/b != a {
		return 0, fmt.Errorf("safe mul: %w", ErrOverflow)
	}
	return a * b, nil
}
