package wallet

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
)

// Token sources.
const (
	SourceBuiltin = "builtin"
	SourceCustom  = "custom"
)

// TokenID derives the id of a token from its ticker, contract and the id (or network) of its parent. Contracts are
// compared case insensitively, so both spellings of an address give the same id.
func TokenID(ticker, contract, parent string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(ticker + "|" + strings.ToLower(contract) + "|" + parent))
	return hex.EncodeToString(h.Sum(nil))
}

// Token is a sub asset of a parent coin. It keeps its own balance and history but reads its address and sends its
// transactions through the parent, which pays the fees.
type Token struct {
	Base

	mu           sync.RWMutex
	contract     string
	parent       *Coin
	network      string
	source       string
	visibility   bool
	transactions []types.Transaction
	db           store.DB
}

// NewToken builds a token of parent. The token subscribes to the token transfers the parent announces and refreshes
// its balance on each of its own.
func NewToken(cfg config.TokenConfig, parent *Coin, opts ...Option) (*Token, error) {
	if parent == nil {
		return nil, invalid("parent", "required")
	}
	o := newOptions(parent.opts, opts)
	t := &Token{
		contract:   cfg.Contract,
		parent:     parent,
		network:    cfg.Network,
		source:     cfg.Source,
		visibility: cfg.Visibility,
		db:         o.db,
	}
	if t.source == "" {
		t.source = SourceBuiltin
	}
	scope := parent.ID()
	if scope == "" {
		scope = cfg.Network
	}
	if err := t.Base.init(Identity{
		ID: TokenID(cfg.Ticker, cfg.Contract, scope), Ticker: cfg.Ticker, Name: cfg.Name, Alias: cfg.Alias,
		Decimal: cfg.Decimal,
	}, o); err != nil {
		return nil, err
	}
	parent.registerToken(t.contract, t.ID(), t.Ticker())

	topic := event.Topic{Kind: event.NewTokenTx, Scope: parent.ID()}
	if err := t.bus.SubscribeAsync(topic, t.onTokenTx); err != nil {
		t.log.Errorw("subscribing", "topic", topic.String(), "err", err)
	}
	return t, nil
}

// CreateTokens builds the tokens listed in the coin configuration.
func CreateTokens(parent *Coin, cfgs []config.TokenConfig, opts ...Option) ([]*Token, error) {
	tokens := make([]*Token, 0, len(cfgs))
	for _, cfg := range cfgs {
		t, err := NewToken(cfg, parent, opts...)
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (t *Token) onTokenTx(e event.Event) {
	te, ok := e.(event.TokenTxEvent)
	if !ok || !strings.EqualFold(te.Contract, t.contract) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), socketTimeout)
	defer cancel()
	t.GetBalance(ctx)
}

// Contract returns the token contract, empty for native sub assets.
func (t *Token) Contract() string { return t.contract }

// Parent returns the coin the token belongs to.
func (t *Token) Parent() *Coin { return t.parent }

// Source returns where the token comes from, builtin or custom.
func (t *Token) Source() string { return t.source }

// Visibility reports whether the token is shown to the user.
func (t *Token) Visibility() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visibility
}

// SetVisibility shows or hides the token.
func (t *Token) SetVisibility(v bool) {
	t.mu.Lock()
	t.visibility = v
	t.mu.Unlock()
}

// Address returns the parent address.
func (t *Token) Address() string { return t.parent.Address() }

// Network returns the token network, the parent's unless configured.
func (t *Token) Network() string {
	if t.network != "" {
		return t.network
	}
	return t.parent.Network()
}

// NetworkType returns the parent network type.
func (t *Token) NetworkType() string { return t.parent.NetworkType() }

// FeeWallet returns the wallet paying the token fees, the parent.
func (t *Token) FeeWallet() *Coin { return t.parent }

// TxWebURL returns the parent transaction page prefix.
func (t *Token) TxWebURL() string { return t.parent.TxWebURL() }

// CoreLibrary returns the loader of the parent libraries.
func (t *Token) CoreLibrary() *Loader { return t.parent.Deps() }

// IsMatch implements Wallet.
func (t *Token) IsMatch(q Query) (bool, error) {
	return match(q, Query{
		Ticker:   t.Ticker(),
		Contract: t.contract,
		Parent:   t.parent.ID(),
		Address:  t.Address(),
		Network:  t.Network(),
	})
}

func (t *Token) info() types.Info {
	bal, _ := t.Balance()
	return types.Info{Balance: bal}
}

// GetInfo refreshes the token balance through the parent's active explorer. Errors are logged and the cached balance
// returned.
func (t *Token) GetInfo(ctx context.Context) types.Info {
	exp := t.parent.Explorer()
	addr := t.Address()
	if exp == nil || addr == "" {
		return t.info()
	}
	g, ok := exp.(explorer.TokenBalanceGetter)
	if !ok {
		t.log.Debugw("explorer cannot read token balances", "explorer", exp.Name())
		return t.info()
	}
	bal, err := g.GetTokenBalance(ctx, addr, t.contract)
	if err != nil {
		t.log.Warnw("getting token balance", "explorer", exp.Name(), "err", err)
		return t.info()
	}
	if err = t.SetBalance(bal); err != nil {
		t.log.Warnw("setting balance", "balance", bal, "err", err)
	}
	return t.info()
}

// GetBalance refreshes and returns the balance in minimal units, empty when unknown.
func (t *Token) GetBalance(ctx context.Context) string {
	return t.GetInfo(ctx).Balance
}

// AvailableBalance returns the token balance in currency units, "0" when unknown. Token and parent balances are
// separate ledgers, so fees do not reduce it.
func (t *Token) AvailableBalance(context.Context, string) (string, error) {
	if d := t.DivisibleBalance(); d != "" {
		return d, nil
	}
	return "0", nil
}

// IsAvailableForSend reports whether amount (currency units) is at most the available token balance.
func (t *Token) IsAvailableForSend(ctx context.Context, amt, fee string) bool {
	if strings.HasPrefix(strings.TrimSpace(amt), "-") {
		return false
	}
	avail, _ := t.AvailableBalance(ctx, fee)
	return fits(amt, avail, t.Decimal())
}

// IsAvailableForFee reports whether the parent can pay fee, in parent currency units.
func (t *Token) IsAvailableForFee(_ context.Context, fee string) bool {
	bal := t.parent.IndivisibleBalance()
	if bal == nil {
		return false
	}
	f, err := minimal(fee, t.parent.Decimal())
	if err != nil {
		return false
	}
	return bal.Cmp(f) >= 0
}

// CreateTransaction builds a token transfer through the parent. The amount is read with the token decimal and the fee
// with the parent's.
func (t *Token) CreateTransaction(ctx context.Context, args TxArgs) (string, error) {
	tr, err := t.parent.transfer(args, t.Decimal(), t.contract)
	if err != nil {
		return "", err
	}
	return t.parent.CreateTokenTransaction(ctx, tr)
}

// SendTransaction broadcasts through the parent.
func (t *Token) SendTransaction(ctx context.Context, raw string) (string, error) {
	return t.parent.SendTransaction(ctx, raw)
}

// CreateTransactionOnce is CreateTransaction guarded by the process wide cooldown.
func (t *Token) CreateTransactionOnce(ctx context.Context, args TxArgs) (string, error) {
	return runOnce(&t.Base, OpCreateTransaction, func() (string, error) { return t.CreateTransaction(ctx, args) })
}

// SendTransactionOnce is SendTransaction guarded by the process wide cooldown.
func (t *Token) SendTransactionOnce(ctx context.Context, raw string) (string, error) {
	return runOnce(&t.Base, OpSendTransaction, func() (string, error) { return t.SendTransaction(ctx, raw) })
}

// Transactions returns the cached history.
func (t *Token) Transactions() []types.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.Transaction(nil), t.transactions...)
}

// GetTransactions reads a page of the parent history restricted to the token, stores it, announces it with a
// HistoryUpdated event and caches it. On failure the cached history is returned.
func (t *Token) GetTransactions(ctx context.Context, offset, limit int) []types.Transaction {
	txs, err := t.parent.GetTransactions(ctx, TxQuery{Offset: offset, Limit: limit, Contract: t.contract})
	if err != nil {
		t.log.Warnw("getting transactions", "err", err)
		return t.Transactions()
	}
	own := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.WalletID == t.ID() {
			own = append(own, tx)
		}
	}
	saveTransactions(ctx, t.db, t.log, own)
	t.bus.Emit(historyEvent(t.ID(), own))
	t.mu.Lock()
	t.transactions = own
	t.mu.Unlock()
	return append([]types.Transaction(nil), own...)
}

// GetTokenTransactions reads the first page of the token history.
func (t *Token) GetTokenTransactions(ctx context.Context) []types.Transaction {
	return t.GetTransactions(ctx, 0, 0)
}

// UpdateTokenParamsFromServer applies a fresh token configuration in place. Ticker and contract make the token id
// and are not changed.
func (t *Token) UpdateTokenParamsFromServer(cfg config.TokenConfig) error {
	if !strings.EqualFold(cfg.Contract, t.contract) || cfg.Ticker != t.Ticker() {
		return invalid("token", "ticker and contract cannot change")
	}
	t.setName(cfg.Name, cfg.Alias)
	t.SetVisibility(cfg.Visibility)
	if cfg.Decimal != t.Decimal() {
		return t.setDecimal(cfg.Decimal)
	}
	return nil
}
