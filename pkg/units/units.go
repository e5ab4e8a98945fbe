// Package units converts between 18-decimal fixed-point token amounts, as
// stored by the token, staking and minting contracts, and decimal text.
package units

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the fixed-point scale used by the token and by native currency.
const Decimals = 18

// ErrInvalidAmount is returned when decimal text cannot be represented exactly.
var ErrInvalidAmount = errors.New("invalid amount")

var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Amount is a non-negative fixed-point value in base units (wei). The zero
// value is a valid zero amount. Amounts are immutable.
type Amount struct {
	wei *big.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// FromWei wraps a base-unit integer. The argument is copied; nil means zero.
func FromWei(wei *big.Int) Amount {
	if wei == nil {
		return Amount{}
	}
	return Amount{wei: new(big.Int).Set(wei)}
}

// FromTokens returns n whole tokens.
func FromTokens(n int64) Amount {
	return Amount{wei: new(big.Int).Mul(big.NewInt(n), one)}
}

// Parse converts decimal text such as "2.5" or "120" into an amount.
// More than 18 fractional digits, signs and exponents are rejected rather
// than rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(fracPart, ".") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if intPart == "" && fracPart == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(fracPart) > Decimals {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}

	digits := intPart + fracPart + strings.Repeat("0", Decimals-len(fracPart))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{wei: wei}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (a Amount) bigInt() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return a.wei
}

// Wei returns a copy of the base-unit value.
func (a Amount) Wei() *big.Int {
	return new(big.Int).Set(a.bigInt())
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int { return a.bigInt().Sign() }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// Cmp compares a and b.
func (a Amount) Cmp(b Amount) int { return a.bigInt().Cmp(b.bigInt()) }

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{wei: new(big.Int).Add(a.bigInt(), b.bigInt())}
}

// Rat returns the exact decimal value as a rational number.
func (a Amount) Rat() *big.Rat {
	return new(big.Rat).SetFrac(a.bigInt(), one)
}

// Float64 returns the nearest float64. Only for display and metrics.
func (a Amount) Float64() float64 {
	f, _ := a.Rat().Float64()
	return f
}

// String renders the exact value with trailing fractional zeros removed.
func (a Amount) String() string {
	w := a.bigInt()
	abs := new(big.Int).Abs(w)
	q, r := new(big.Int).QuoRem(abs, one, new(big.Int))

	var b strings.Builder
	if w.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(q.String())
	if r.Sign() != 0 {
		frac := zeroPad(r.String(), Decimals)
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(frac, "0"))
	}
	return b.String()
}

// Format renders the value with exactly places fractional digits, rounding
// half away from zero, the way the dashboard shows balances ("120.00").
func (a Amount) Format(places int) string {
	if places < 0 {
		places = 0
	}
	w := a.bigInt()
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaled := new(big.Int).Mul(new(big.Int).Abs(w), scale)
	q, r := new(big.Int).QuoRem(scaled, one, new(big.Int))
	if new(big.Int).Lsh(r, 1).Cmp(one) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	ip, fp := new(big.Int).QuoRem(q, scale, new(big.Int))

	var b strings.Builder
	if w.Sign() < 0 && q.Sign() != 0 {
		b.WriteByte('-')
	}
	b.WriteString(ip.String())
	if places > 0 {
		b.WriteByte('.')
		b.WriteString(zeroPad(fp.String(), places))
	}
	return b.String()
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// Ratio returns num/den exactly. ok is false when den is zero.
func Ratio(num, den Amount) (r *big.Rat, ok bool) {
	if den.IsZero() {
		return new(big.Rat), false
	}
	return new(big.Rat).SetFrac(num.bigInt(), den.bigInt()), true
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
