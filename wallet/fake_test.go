package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/guard"
	"github.com/tarancss/mcw/lib/types"
)

const (
	fakeClass  = "FakeExplorer"
	plainClass = "PlainExplorer"
)

// fakeExplorer serves canned answers and records what it was asked.
type fakeExplorer struct {
	explorer.Base

	mu       sync.Mutex
	info     types.Info
	infoErr  error
	txs      []types.Transaction
	txErr    error
	utxos    []types.UTXO
	sent     []string
	sendErr  error
	checkErr error
	tokens   map[string]string
	socket   map[string]types.Transaction
	updates  int
	queries  []explorer.Query
}

func (f *fakeExplorer) UpdateParams(cfg config.ExplorerConfig) {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	f.Base.UpdateParams(cfg)
}

func (f *fakeExplorer) GetInfo(context.Context, string) (types.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.infoErr
}

func (f *fakeExplorer) GetTransactions(_ context.Context, q explorer.Query) ([]types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.txErr != nil {
		return nil, f.txErr
	}
	var res []types.Transaction
	for _, tx := range f.txs {
		if q.Contract == "" || tx.Contract == q.Contract {
			res = append(res, tx)
		}
	}
	return res, nil
}

func (f *fakeExplorer) GetUnspentOutputs(context.Context, string, string) ([]types.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utxos, nil
}

func (f *fakeExplorer) SendTransaction(_ context.Context, raw string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, raw)
	return "hash-" + raw, nil
}

func (f *fakeExplorer) CheckTransaction(_ context.Context, _ string, tx types.Transaction) (types.Transaction, error) {
	if f.checkErr != nil {
		return tx, f.checkErr
	}
	tx.Status = types.TxConfirmed
	return tx, nil
}

func (f *fakeExplorer) GetTokenBalance(_ context.Context, _, contract string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.tokens[contract]
	if !ok {
		return "", errors.New("no such token")
	}
	return b, nil
}

func (f *fakeExplorer) GetSocketTransaction(_ context.Context, req explorer.SocketRequest) error {
	f.mu.Lock()
	tx, ok := f.socket[req.Hash]
	f.mu.Unlock()
	if !ok {
		return types.ErrNoTrx
	}
	f.Owner().Notify(tx)
	return nil
}

func (f *fakeExplorer) set(fn func(f *fakeExplorer)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeExplorer) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

// plainExplorer only has the base behaviour.
type plainExplorer struct {
	explorer.Base
}

func init() {
	explorer.Register(fakeClass, func(cfg config.ExplorerConfig, o explorer.Owner, d explorer.Deps) (explorer.Explorer, error) {
		f := &fakeExplorer{tokens: map[string]string{}, socket: map[string]types.Transaction{}}
		f.Init(fakeClass, cfg, o, d.Log)
		return f, nil
	})
	explorer.Register(plainClass, func(cfg config.ExplorerConfig, o explorer.Owner, d explorer.Deps) (explorer.Explorer, error) {
		p := &plainExplorer{}
		p.Init(plainClass, cfg, o, d.Log)
		return p, nil
	})
}

func btcConfig() config.CoinConfig {
	return config.CoinConfig{
		ID:                 "BTC",
		ClassName:          "BTCCoin",
		Ticker:             "BTC",
		Name:               "Bitcoin",
		Decimal:            8,
		FeeData:            map[string]string{"fee": "1000"},
		UnspendableBalance: "546",
		Explorers:          []config.ExplorerConfig{{ClassName: fakeClass, BaseURL: "https://fake.btc"}},
		Network:            "mainnet",
		Socket:             true,
		Features:           []string{"SocketTransactions"},
	}
}

func ethConfig() config.CoinConfig {
	return config.CoinConfig{
		ID:        "ETH",
		ClassName: "ETHCoin",
		Ticker:    "ETH",
		Name:      "Ethereum",
		Decimal:   18,
		FeeData:   map[string]string{"gasPrice": "20000000000", "gasLimit": "21000", "tokenGasLimit": "150000"},
		GasLimit:  21000,
		Explorers: []config.ExplorerConfig{{ClassName: fakeClass, BaseURL: "https://fake.eth"}},
		Network:   "mainnet",
		ChainID:   "1",
		Features:  []string{"CustomTokens", "SocketTransactions"},
	}
}

// testOpts isolates a test from the process wide bus and limiter.
func testOpts(bus *event.Bus) []Option {
	return []Option{WithBus(bus), WithLimiter(guard.New(time.Hour))}
}

// newCoin builds a coin of the registered class with its explorers loaded.
func newCoin(t *testing.T, cfg config.CoinConfig, opts ...Option) (*Coin, *event.Bus) {
	t.Helper()
	bus := event.New()
	class, ok := LookupClass(cfg.ClassName)
	require.True(t, ok, cfg.ClassName)
	c, err := CreateCoin(cfg, class, append(testOpts(bus), opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.LoadExplorers())
	return c, bus
}

func fakeOf(t *testing.T, c *Coin) *fakeExplorer {
	t.Helper()
	f, ok := c.Explorer().(*fakeExplorer)
	require.True(t, ok)
	return f
}

// counter counts the events of a topic.
type counter struct {
	n      int32
	mu     sync.Mutex
	events []event.Event
}

func count(t *testing.T, bus *event.Bus, topic event.Topic) *counter {
	t.Helper()
	c := &counter{}
	require.NoError(t, bus.Subscribe(topic, func(e event.Event) {
		atomic.AddInt32(&c.n, 1)
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
	}))
	return c
}

func (c *counter) count() int { return int(atomic.LoadInt32(&c.n)) }

func (c *counter) all() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}
