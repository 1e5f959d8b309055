// Package amount converts values between minimal units (satoshi, wei, ...) and currency units and provides a
// decimal-safe Amount value type. All arithmetic is done on arbitrary precision integers or decimals, never on floats,
// so 18-decimal chains keep every digit.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors returned by the conversion routines.
var (
	ErrMalformed  = errors.New("amount: malformed value")
	ErrNegative   = errors.New("amount: negative value")
	ErrDecimal    = errors.New("amount: decimal must be a non-negative integer")
	ErrFractional = errors.New("amount: minimal unit value must be an integer")
	ErrMismatch   = errors.New("amount: ticker or decimal mismatch")
)

func parse(value string, dec int) (decimal.Decimal, error) {
	if dec < 0 {
		return decimal.Zero, ErrDecimal
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNegative, value)
	}
	return d, nil
}

// ToCurrency shifts the decimal point of a minimal unit value dec places to the left, ie. ToCurrency("123456789", 8)
// returns "1.23456789". Trailing fractional zeros are dropped. Negative, fractional or malformed values return an error.
func ToCurrency(value string, dec int) (string, error) {
	d, err := parse(value, dec)
	if err != nil {
		return "", err
	}
	if !d.IsInteger() {
		return "", fmt.Errorf("%w: %q", ErrFractional, value)
	}
	return d.Shift(-int32(dec)).String(), nil
}

// ToMinimal shifts the decimal point of a currency unit value dec places to the right, ie. ToMinimal("1.23456789", 8)
// returns "123456789". Digits beyond dec fractional places are truncated.
func ToMinimal(value string, dec int) (string, error) {
	d, err := parse(value, dec)
	if err != nil {
		return "", err
	}
	return d.Shift(int32(dec)).Truncate(0).String(), nil
}

// ParseMinimal parses a minimal unit integer string. An empty string is malformed.
func ParseMinimal(value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	return v, nil
}

// Amount is an immutable value expressed in minimal units of a given ticker.
type Amount struct {
	value   *big.Int
	ticker  string
	decimal int
}

// New returns an Amount for the minimal unit value. Fractional or malformed values and a negative decimal return an
// error.
func New(value, ticker string, dec int) (Amount, error) {
	if dec < 0 {
		return Amount{}, ErrDecimal
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %q", ErrFractional, value)
	}
	return Amount{value: d.BigInt(), ticker: ticker, decimal: dec}, nil
}

// FromCurrency returns an Amount from a currency unit value.
func FromCurrency(value, ticker string, dec int) (Amount, error) {
	m, err := ToMinimal(value, dec)
	if err != nil {
		return Amount{}, err
	}
	return New(m, ticker, dec)
}

func (a Amount) int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// Ticker returns the ticker the amount is denominated in.
func (a Amount) Ticker() string { return a.ticker }

// Decimal returns the number of minimal unit digits.
func (a Amount) Decimal() int { return a.decimal }

// BigInt returns a copy of the minimal unit value.
func (a Amount) BigInt() *big.Int { return new(big.Int).Set(a.int()) }

// Minimal returns the minimal unit value as an integer string.
func (a Amount) Minimal() string { return a.int().String() }

// Currency returns the currency unit value as a decimal string.
func (a Amount) Currency() string {
	return decimal.NewFromBigInt(a.int(), -int32(a.decimal)).String()
}

// String returns the currency value followed by the ticker, ie. "1.5 BTC".
func (a Amount) String() string {
	if a.ticker == "" {
		return a.Currency()
	}
	return a.Currency() + " " + a.ticker
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.int().Sign() == 0 }

// Cmp compares two amounts of the same decimal and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.int().Cmp(b.int()) }

func (a Amount) compatible(b Amount) error {
	if !strings.EqualFold(a.ticker, b.ticker) || a.decimal != b.decimal {
		return fmt.Errorf("%w: %s/%d vs %s/%d", ErrMismatch, a.ticker, a.decimal, b.ticker, b.decimal)
	}
	return nil
}

// Add returns a+b. Both amounts must share ticker and decimal.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.compatible(b); err != nil {
		return Amount{}, err
	}
	return Amount{value: new(big.Int).Add(a.int(), b.int()), ticker: a.ticker, decimal: a.decimal}, nil
}

// Sub returns a-b. Both amounts must share ticker and decimal. The result may be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.compatible(b); err != nil {
		return Amount{}, err
	}
	return Amount{value: new(big.Int).Sub(a.int(), b.int()), ticker: a.ticker, decimal: a.decimal}, nil
}
