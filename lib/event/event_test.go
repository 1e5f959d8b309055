package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicString(t *testing.T) {
	assert.Equal(t, "update::BTC::balance", Topic{BalanceUpdated, "BTC"}.String())
	assert.Equal(t, "update::ETH::history", Topic{HistoryUpdated, "ETH"}.String())
	assert.Equal(t, "ETH::new-token-tx", Topic{NewTokenTx, "ETH"}.String())
	assert.Equal(t, "LTC::confirmed-socket-tx", Topic{ConfirmedSocketTx, "LTC"}.String())
	assert.Equal(t, "update::ATOM::staking-balances", Topic{StakingBalancesUpdated, "ATOM"}.String())
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "balance", BalanceUpdated.Name())
	assert.Equal(t, "new-tx", NewTransaction.Name())
	assert.Equal(t, "confirmed-socket-tx", ConfirmedSocketTx.Name())
	assert.Equal(t, "unknown(0)", Kind(0).Name())
}

func TestParseTopic(t *testing.T) {
	for k := range formats {
		want := Topic{Kind: k, Scope: "ETH137"}
		got, err := ParseTopic(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTopic("something::else")
	assert.Error(t, err)
}

func TestSocketTopic(t *testing.T) {
	e := SocketTxEvent{CoinID: "BTC"}
	assert.Equal(t, "BTC::new-socket-tx", e.Topic().String())
	e.Confirmed = true
	assert.Equal(t, "BTC::confirmed-socket-tx", e.Topic().String())
}

func TestBusOrder(t *testing.T) {
	b := New()
	topic := Topic{BalanceUpdated, "BTC"}
	var got []string
	require.NoError(t, b.Subscribe(topic, func(e Event) { got = append(got, "first:"+e.(BalanceEvent).Balance) }))
	require.NoError(t, b.Subscribe(topic, func(e Event) { got = append(got, "second:"+e.(BalanceEvent).Balance) }))
	assert.True(t, b.HasSubscribers(topic))
	assert.False(t, b.HasSubscribers(Topic{BalanceUpdated, "ETH"}))

	b.Emit(BalanceEvent{WalletID: "BTC", Balance: "1"})
	b.Emit(BalanceEvent{WalletID: "ETH", Balance: "2"})
	b.Emit(BalanceEvent{WalletID: "BTC", Balance: "3"})
	assert.Equal(t, []string{"first:1", "second:1", "first:3", "second:3"}, got)
}

func TestBusAsync(t *testing.T) {
	b := New()
	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, b.SubscribeAsync(Topic{Touched, "BTC"}, func(e Event) {
		// async handlers may emit
		b.Emit(BalanceEvent{WalletID: e.(TouchedEvent).WalletID})
	}))
	require.NoError(t, b.Subscribe(Topic{BalanceUpdated, "BTC"}, func(e Event) {
		mu.Lock()
		got = append(got, e.Topic().String())
		mu.Unlock()
	}))
	b.Emit(TouchedEvent{WalletID: "BTC"})
	b.WaitAsync()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"update::BTC::balance"}, got)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
