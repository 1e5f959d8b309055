package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCurrency(t *testing.T) {
	for _, tc := range []struct {
		in  string
		dec int
		out string
		err error
	}{
		{"123456789", 8, "1.23456789", nil},
		{"100000000", 8, "1", nil},
		{"1", 18, "0.000000000000000001", nil},
		{"0", 8, "0", nil},
		{"42", 0, "42", nil},
		{"-1", 8, "", ErrNegative},
		{"abc", 8, "", ErrMalformed},
		{"", 8, "", ErrMalformed},
		{"1.5", 8, "", ErrFractional},
		{"1", -1, "", ErrDecimal},
	} {
		out, err := ToCurrency(tc.in, tc.dec)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, out, tc.in)
	}
}

func TestToMinimal(t *testing.T) {
	for _, tc := range []struct {
		in  string
		dec int
		out string
		err error
	}{
		{"1.23456789", 8, "123456789", nil},
		{"1", 18, "1000000000000000000", nil},
		{"0.000000001", 8, "0", nil},
		{"1.999999999", 8, "199999999", nil},
		{" 2.5 ", 2, "250", nil},
		{"-0.1", 8, "", ErrNegative},
		{"1,5", 8, "", ErrMalformed},
	} {
		out, err := ToMinimal(tc.in, tc.dec)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, out, tc.in)
	}
}

func TestRoundTrip(t *testing.T) {
	values := []string{"0", "1", "10", "123456789", "1000000000000000000", "987654321987654321987654321"}
	for _, v := range values {
		for _, dec := range []int{0, 1, 6, 8, 18, 24} {
			c, err := ToCurrency(v, dec)
			require.NoError(t, err)
			m, err := ToMinimal(c, dec)
			require.NoError(t, err)
			assert.Equal(t, v, m, "value %s decimal %d", v, dec)
		}
	}
}

func TestAmount(t *testing.T) {
	a, err := New("150000000", "BTC", 8)
	require.NoError(t, err)
	assert.Equal(t, "1.5", a.Currency())
	assert.Equal(t, "1.5 BTC", a.String())
	assert.Equal(t, "150000000", a.Minimal())

	b, err := FromCurrency("0.5", "btc", 8)
	require.NoError(t, err)
	assert.Equal(t, "50000000", b.Minimal())

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "2", sum.Currency())

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.Equal(t, "-1", diff.Currency())
	assert.Equal(t, 1, a.Cmp(b))

	_, err = a.Add(Amount{ticker: "ETH", decimal: 18})
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = New("1.1", "BTC", 8)
	assert.ErrorIs(t, err, ErrFractional)
	_, err = New("1", "BTC", -2)
	assert.ErrorIs(t, err, ErrDecimal)

	var zero Amount
	assert.True(t, zero.IsZero())
	assert.Equal(t, "0", zero.Minimal())
}
