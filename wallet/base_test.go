package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/amount"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/guard"
)

func TestConversion(t *testing.T) {
	c, _ := newCoin(t, btcConfig())

	cases := []struct {
		currency, minimal string
	}{
		{"1.23456789", "123456789"},
		{"0.00000001", "1"},
		{"21000000", "2100000000000000"},
		{"0", "0"},
	}
	for _, tc := range cases {
		m, err := c.ToMinimalUnit(tc.currency)
		require.NoError(t, err)
		assert.Equal(t, tc.minimal, m)
		back, err := c.ToCurrencyUnit(m)
		require.NoError(t, err)
		assert.Equal(t, tc.currency, back)
	}

	m, err := c.ToMinimalUnitWithDecimal("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000", m)
	cur, err := c.ToCurrencyUnitWithDecimal("1500000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1.5", cur)
}

func TestSetBalance(t *testing.T) {
	c, bus := newCoin(t, btcConfig())
	touched := count(t, bus, event.Topic{Kind: event.Touched, Scope: "BTC"})
	updated := count(t, bus, event.Topic{Kind: event.BalanceUpdated, Scope: "BTC"})

	_, known := c.Balance()
	assert.False(t, known)
	assert.Equal(t, "", c.DivisibleBalance())

	// first value: no previous balance to compare with
	require.NoError(t, c.SetBalance("100000000"))
	assert.Equal(t, 1, touched.count())
	assert.Equal(t, 0, updated.count())

	// same value
	require.NoError(t, c.SetBalance("100000000"))
	assert.Equal(t, 2, touched.count())
	assert.Equal(t, 0, updated.count())

	require.NoError(t, c.SetBalance("150000000"))
	assert.Equal(t, 3, touched.count())
	require.Equal(t, 1, updated.count())
	be := updated.all()[0].(event.BalanceEvent)
	assert.Equal(t, "150000000", be.Balance)
	assert.Equal(t, "1.5", be.Divisible)

	// empty keeps the balance
	require.NoError(t, c.SetBalance(""))
	assert.Equal(t, 4, touched.count())
	bal, known := c.Balance()
	assert.True(t, known)
	assert.Equal(t, "150000000", bal)

	assert.ErrorIs(t, c.SetBalance("-5"), amount.ErrNegative)
	assert.Error(t, c.SetBalance("abc"))
	assert.Equal(t, 6, touched.count())
	assert.Equal(t, 1, updated.count())

	// both renderings of the balance agree
	div, err := c.ToCurrencyUnit(bal)
	require.NoError(t, err)
	assert.Equal(t, div, c.DivisibleBalance())
	assert.Equal(t, "150000000", c.IndivisibleBalance().String())
}

func TestOnceSharedAcrossWallets(t *testing.T) {
	bus := event.New()
	limiter := guard.New(time.Hour)
	opts := []Option{WithBus(bus), WithLimiter(limiter)}

	btc, err := NewCoin(btcConfig(), opts...)
	require.NoError(t, err)
	eth, err := NewCoin(ethConfig(), opts...)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = btc.CreateTransactionOnce(ctx, TxArgs{To: "x", Amount: "1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSkipped))

	// another wallet within the window
	_, err = eth.CreateTransactionOnce(ctx, TxArgs{To: "x", Amount: "1"})
	assert.ErrorIs(t, err, ErrSkipped)

	// other operations have their own window
	_, err = eth.SendTransactionOnce(ctx, "00")
	assert.ErrorIs(t, err, ErrNoExplorer)
	_, err = btc.SendTransactionOnce(ctx, "00")
	assert.ErrorIs(t, err, ErrSkipped)

	limiter.Reset(OpCreateTransaction)
	_, err = eth.CreateTransactionOnce(ctx, TxArgs{To: "x", Amount: "1"})
	assert.False(t, errors.Is(err, ErrSkipped))
}

func TestCooldownExpires(t *testing.T) {
	now := time.Unix(1700000000, 0)
	limiter := guard.New(guard.Cooldown)
	limiter.SetClock(func() time.Time { return now })
	c, err := NewCoin(btcConfig(), WithBus(event.New()), WithLimiter(limiter))
	require.NoError(t, err)

	assert.True(t, c.CanRun(OpSendTransaction))
	now = now.Add(4999 * time.Millisecond)
	assert.False(t, c.CanRun(OpSendTransaction))
	now = now.Add(time.Millisecond)
	assert.True(t, c.CanRun(OpSendTransaction))
}

func TestIsMatch(t *testing.T) {
	c, _ := newCoin(t, ethConfig())
	require.NoError(t, c.SetAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"))

	_, err := c.IsMatch(Query{})
	assert.ErrorIs(t, err, ErrTickerRequired)

	cases := []struct {
		name string
		q    Query
		exp  bool
	}{
		{"ticker", Query{Ticker: "ETH"}, true},
		{"ticker case", Query{Ticker: "eth"}, true},
		{"other ticker", Query{Ticker: "BTC"}, false},
		{"network", Query{Ticker: "ETH", Network: "mainnet"}, true},
		{"other network", Query{Ticker: "ETH", Network: "sepolia"}, false},
		{"address case", Query{Ticker: "ETH", Address: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"}, true},
		{"chain", Query{Ticker: "ETH", ChainID: "1"}, true},
		{"other chain", Query{Ticker: "ETH", ChainID: "5"}, false},
	}
	for _, tc := range cases {
		ok, err := c.IsMatch(tc.q)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.exp, ok, tc.name)
	}
}

func TestNewCoinValidation(t *testing.T) {
	cfg := btcConfig()
	cfg.ID = ""
	_, err := NewCoin(cfg, WithBus(event.New()))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)

	cfg = btcConfig()
	cfg.Decimal = -1
	_, err = NewCoin(cfg, WithBus(event.New()))
	assert.ErrorIs(t, err, amount.ErrDecimal)
}
