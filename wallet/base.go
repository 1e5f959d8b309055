// Package wallet implements the coin and token object model: wallets built from declarative configuration that keep a
// balance and a transaction history, delegate chain I/O to explorers and announce every change on the event bus.
//
// A Coin owns its explorers and an injected chain Strategy that knows how to derive addresses, compute fees and build
// transactions. A Token is a view over a parent Coin: it has its own balance and contract but reads its address and
// sends its transactions through the parent.
package wallet

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/amount"
	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/guard"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
)

// Operation names of the cooldown guarded wrappers.
const (
	OpCreateTransaction = "CreateTransaction"
	OpSendTransaction   = "SendTransaction"
)

// Wallet is the behaviour shared by coins and tokens.
type Wallet interface {
	ID() string
	Ticker() string
	Name() string
	Decimal() int
	Address() string
	Balance() (string, bool)
	DivisibleBalance() string
	SetBalance(v string) error
	GetInfo(ctx context.Context) types.Info
	GetBalance(ctx context.Context) string
	AvailableBalance(ctx context.Context, fees string) (string, error)
	IsAvailableForSend(ctx context.Context, amount, fee string) bool
	CreateTransaction(ctx context.Context, args TxArgs) (string, error)
	CreateTransactionOnce(ctx context.Context, args TxArgs) (string, error)
	SendTransaction(ctx context.Context, raw string) (string, error)
	SendTransactionOnce(ctx context.Context, raw string) (string, error)
	IsMatch(q Query) (bool, error)
}

// Identity is what names a wallet.
type Identity struct {
	ID         string
	Ticker     string
	Name       string
	Alias      string
	Decimal    int
	MemoRegexp string
}

// Query selects wallets in IsMatch. Ticker is required; any other field is compared only when both the query and
// the wallet have it.
type Query struct {
	Ticker   string
	Contract string
	Parent   string
	Address  string
	Network  string
	ChainID  string
}

// TxArgs are the user facing arguments of a transfer, amounts in currency units. An empty Fee lets the chain strategy
// decide.
type TxArgs struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Fee    string `json:"fee,omitempty"`
	Memo   string `json:"memo,omitempty"`
}

// TxQuery selects a page of history.
type TxQuery struct {
	Offset   int
	Limit    int
	Contract string
}

type options struct {
	bus      *event.Bus
	limiter  *guard.Limiter
	log      *zap.SugaredLogger
	db       store.DB
	manager  config.Manager
	strategy Strategy
	loader   *Loader
	http     *http.Client
}

// Option configures the collaborators of a wallet.
type Option func(*options)

// WithBus sets the event bus, event.Default() otherwise.
func WithBus(b *event.Bus) Option { return func(o *options) { o.bus = b } }

// WithLimiter sets the cooldown limiter, guard.Shared() otherwise.
func WithLimiter(l *guard.Limiter) Option { return func(o *options) { o.limiter = l } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(o *options) { o.log = l } }

// WithDB sets the database the wallet persists its transactions to.
func WithDB(db store.DB) Option { return func(o *options) { o.db = db } }

// WithManager sets the config manager serving live coin configuration.
func WithManager(m config.Manager) Option { return func(o *options) { o.manager = m } }

// WithStrategy sets the chain strategy of a coin.
func WithStrategy(s Strategy) Option { return func(o *options) { o.strategy = s } }

// WithLoader sets the dependency loader of a coin.
func WithLoader(l *Loader) Option { return func(o *options) { o.loader = l } }

// WithHTTPClient sets the HTTP client handed to explorers.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.http = c } }

func newOptions(base options, opts []Option) options {
	o := base
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = event.Default()
	}
	if o.limiter == nil {
		o.limiter = guard.Shared()
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	if o.db == nil {
		o.db = store.Nop{Log: o.log}
	}
	if o.manager == nil {
		o.manager = config.Rejecting{}
	}
	if o.strategy == nil {
		o.strategy = WatchOnly{}
	}
	if o.loader == nil {
		o.loader = NewLoader()
	}
	if o.http == nil {
		o.http = http.DefaultClient
	}
	return o
}

// Base holds the identity and balance shared by coins and tokens. The balance is kept in minimal units together with
// its currency unit rendering and is unknown (nil) until first set.
type Base struct {
	bmu       sync.RWMutex
	id        string
	ticker    string
	name      string
	alias     string
	memo      string
	decimal   int
	balance   *big.Int
	divisible string

	bus     *event.Bus
	limiter *guard.Limiter
	log     *zap.SugaredLogger
}

func (b *Base) init(id Identity, o options) error {
	if id.ID == "" {
		return invalid("id", "required")
	}
	if id.Ticker == "" {
		return invalid("ticker", "required")
	}
	if id.Decimal < 0 {
		return &ValidationError{Field: "decimal", Msg: "must not be negative", Err: amount.ErrDecimal}
	}
	b.id, b.ticker, b.name, b.alias, b.memo, b.decimal = id.ID, id.Ticker, id.Name, id.Alias, id.MemoRegexp, id.Decimal
	b.bus, b.limiter, b.log = o.bus, o.limiter, o.log.With("wallet", id.ID)
	return nil
}

// ID returns the wallet id.
func (b *Base) ID() string { return b.id }

// Ticker returns the display symbol.
func (b *Base) Ticker() string { return b.ticker }

// Name returns the display name.
func (b *Base) Name() string {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	return b.name
}

// Alias returns the alternative name, if any.
func (b *Base) Alias() string {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	return b.alias
}

// MemoRegexp returns the pattern memos must match, if any.
func (b *Base) MemoRegexp() string {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	return b.memo
}

// Decimal returns the number of minimal unit digits.
func (b *Base) Decimal() int {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	return b.decimal
}

// Log returns the wallet logger.
func (b *Base) Log() *zap.SugaredLogger { return b.log }

// Bus returns the event bus the wallet publishes on.
func (b *Base) Bus() *event.Bus { return b.bus }

func (b *Base) setName(name, alias string) {
	b.bmu.Lock()
	if name != "" {
		b.name = name
	}
	if alias != "" {
		b.alias = alias
	}
	b.bmu.Unlock()
}

func (b *Base) setMemoRegexp(s string) {
	b.bmu.Lock()
	b.memo = s
	b.bmu.Unlock()
}

// setDecimal changes the decimal and renders the balance again.
func (b *Base) setDecimal(d int) error {
	if d < 0 {
		return amount.ErrDecimal
	}
	b.bmu.Lock()
	defer b.bmu.Unlock()
	b.decimal = d
	if b.balance != nil {
		div, err := amount.ToCurrency(b.balance.String(), d)
		if err != nil {
			return err
		}
		b.divisible = div
	}
	return nil
}

// ToMinimalUnit converts a currency unit value with the wallet decimal.
func (b *Base) ToMinimalUnit(value string) (string, error) {
	return amount.ToMinimal(value, b.Decimal())
}

// ToMinimalUnitWithDecimal converts a currency unit value with the given decimal.
func (b *Base) ToMinimalUnitWithDecimal(value string, dec int) (string, error) {
	return amount.ToMinimal(value, dec)
}

// ToCurrencyUnit converts a minimal unit value with the wallet decimal.
func (b *Base) ToCurrencyUnit(value string) (string, error) {
	return amount.ToCurrency(value, b.Decimal())
}

// ToCurrencyUnitWithDecimal converts a minimal unit value with the given decimal.
func (b *Base) ToCurrencyUnitWithDecimal(value string, dec int) (string, error) {
	return amount.ToCurrency(value, dec)
}

// Balance returns the balance in minimal units and whether it is known.
func (b *Base) Balance() (string, bool) {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	if b.balance == nil {
		return "", false
	}
	return b.balance.String(), true
}

// IndivisibleBalance returns a copy of the balance in minimal units, nil when unknown.
func (b *Base) IndivisibleBalance() *big.Int {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	if b.balance == nil {
		return nil
	}
	return new(big.Int).Set(b.balance)
}

// DivisibleBalance returns the balance in currency units, empty when unknown.
func (b *Base) DivisibleBalance() string {
	b.bmu.RLock()
	defer b.bmu.RUnlock()
	return b.divisible
}

// SetBalance sets the balance from a minimal unit value. A BalanceUpdated event is published when a known balance
// changes its currency unit value, and a Touched event is published on every call, including calls with an empty value
// which keep the current balance.
func (b *Base) SetBalance(v string) error {
	defer b.bus.Emit(event.TouchedEvent{WalletID: b.id, Ticker: b.ticker})

	if strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := amount.ParseMinimal(v)
	if err != nil {
		return err
	}
	if n.Sign() < 0 {
		return amount.ErrNegative
	}

	b.bmu.Lock()
	div, err := amount.ToCurrency(n.String(), b.decimal)
	if err != nil {
		b.bmu.Unlock()
		return err
	}
	prev, known := b.divisible, b.balance != nil
	b.balance, b.divisible = n, div
	b.bmu.Unlock()

	if known && prev != div {
		b.bus.Emit(event.BalanceEvent{WalletID: b.id, Ticker: b.ticker, Balance: n.String(), Divisible: div})
	}
	return nil
}

// CanRun reports whether the operation may run now. The window is shared by every wallet using the same limiter.
func (b *Base) CanRun(op string) bool {
	return b.limiter.CanRun(op)
}

// runOnce calls fn unless op ran within the cooldown window, in which case it returns ErrSkipped.
func runOnce[T any](b *Base, op string, fn func() (T, error)) (T, error) {
	if !b.CanRun(op) {
		var zero T
		b.log.Infow("operation skipped", "op", op)
		return zero, ErrSkipped
	}
	return fn()
}

func match(q, own Query) (bool, error) {
	if q.Ticker == "" {
		return false, ErrTickerRequired
	}
	if !strings.EqualFold(q.Ticker, own.Ticker) {
		return false, nil
	}
	for _, p := range [][2]string{
		{q.Contract, own.Contract},
		{q.Parent, own.Parent},
		{q.Address, own.Address},
		{q.Network, own.Network},
		{q.ChainID, own.ChainID},
	} {
		if p[0] != "" && p[1] != "" && !strings.EqualFold(p[0], p[1]) {
			return false, nil
		}
	}
	return true, nil
}

// fits reports whether amount (currency units) is at most available (currency units), both read with dec.
func fits(amt, available string, dec int) bool {
	a, err := minimal(amt, dec)
	if err != nil {
		return false
	}
	av, err := minimal(available, dec)
	if err != nil {
		return false
	}
	return a.Cmp(av) <= 0
}

func minimal(value string, dec int) (*big.Int, error) {
	m, err := amount.ToMinimal(value, dec)
	if err != nil {
		return nil, err
	}
	return amount.ParseMinimal(m)
}
