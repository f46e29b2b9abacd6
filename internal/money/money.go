package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of wei digits in one ether.
const Decimals = 18

var (
	// ErrInvalidAmount is returned when an amount string cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount is returned when an amount is below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Zero returns a new zero amount.
func Zero() *big.Int {
	return big.NewInt(0)
}

// Ether converts a whole number of ether to wei.
func Ether(n int64) *big.Int {
	p := new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	return p.Mul(p, big.NewInt(n))
}

// ParseEther converts a decimal ether string such as "1.1" to wei.
// Fractions below one wei are rejected rather than truncated.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrNegativeAmount, s)
	}
	wei := d.Shift(Decimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	return wei.BigInt(), nil
}

// MustParseEther is ParseEther for constants; it panics on bad input.
func MustParseEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatEther renders a wei amount as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// ParseWei parses a base-10 wei string, as stored by the SQL backends.
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNegativeAmount, s)
	}
	return v, nil
}

// Add returns a + b as a new value.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a - b as a new value. Balances are never allowed below zero,
// so an underflow here is a programming error and panics.
func Sub(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		panic(fmt.Sprintf("money: underflow %s - %s", a, b))
	}
	return new(big.Int).Sub(a, b)
}

// SubFloor returns max(a - b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return Zero()
	}
	return new(big.Int).Sub(a, b)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Copy returns an independent copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return Zero()
	}
	return new(big.Int).Set(v)
}
