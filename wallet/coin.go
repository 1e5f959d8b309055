package wallet

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/tarancss/mcw/lib/amount"
	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
)

type tokenRef struct {
	id     string
	ticker string
}

// Coin is the wallet of a network's native asset.
type Coin struct {
	Base

	mu           sync.RWMutex
	className    string
	walletType   string
	cfg          *config.CoinConfig
	network      string
	chainID      config.ChainID
	denom        string
	feeData      map[string]string
	gasLimit     uint64
	coefficient  string
	unspendable  string
	txWebURL     string
	socket       bool
	features     []Feature
	explorerCfgs []config.ExplorerConfig
	explorers    []explorer.Explorer
	address      string
	nonce        *uint64
	transactions []types.Transaction
	tokens       map[string]tokenRef // by lower case contract
	subscribed   bool

	opts     options
	strategy Strategy
	notifier *TxNotifier
	deps     *Loader
	db       store.DB
	manager  config.Manager
	http     *http.Client
}

// NewCoin builds a coin from its configuration. The coin subscribes to its socket and configuration topics before
// returning, but explorers are only wired by LoadExplorers or ProcessExplorerConfig.
func NewCoin(cfg config.CoinConfig, opts ...Option) (*Coin, error) {
	o := newOptions(options{}, opts)
	c := &Coin{
		opts:     o,
		strategy: o.strategy,
		deps:     o.loader,
		db:       o.db,
		manager:  o.manager,
		http:     o.http,
		tokens:   make(map[string]tokenRef),
	}
	if err := c.Base.init(Identity{
		ID: cfg.ID, Ticker: cfg.Ticker, Name: cfg.Name, Alias: cfg.Alias, Decimal: cfg.Decimal,
		MemoRegexp: cfg.MemoRegexp,
	}, o); err != nil {
		return nil, err
	}

	src := cfg
	c.cfg = &src
	c.className, c.walletType = cfg.ClassName, cfg.WalletType
	c.network, c.chainID, c.denom = cfg.Network, cfg.ChainID, cfg.Denom
	c.feeData = make(map[string]string, len(cfg.FeeData))
	for k, v := range cfg.FeeData {
		c.feeData[k] = v
	}
	c.gasLimit, c.coefficient, c.unspendable = cfg.GasLimit, cfg.Coefficient, cfg.UnspendableBalance
	c.txWebURL, c.socket = cfg.TxWebURL, cfg.Socket
	c.explorerCfgs = append([]config.ExplorerConfig(nil), cfg.Explorers...)
	var unknown []string
	if c.features, unknown = parseFeatures(cfg.Features); len(unknown) > 0 {
		c.log.Warnw("ignoring unknown features", "features", unknown)
	}

	c.notifier = NewTxNotifier(c.ID(), o.bus, c.log)
	if dp, ok := c.strategy.(DependencyProvider); ok {
		for name, fn := range dp.Dependencies() {
			c.deps.Register(name, fn)
		}
	}
	c.manager.Register(c.ID())

	c.manageSocket()
	c.manageEvents()
	return c, nil
}

// ClassName returns the registry class the coin was built from.
func (c *Coin) ClassName() string { return c.className }

// NetworkType returns the wallet type of the coin, ie. "EVM", or its strategy kind when none was configured.
func (c *Coin) NetworkType() string {
	if c.walletType != "" {
		return c.walletType
	}
	return strings.ToUpper(c.strategy.Kind())
}

// Config returns the configuration the coin was last built or updated from. It must not be modified.
func (c *Coin) Config() *config.CoinConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Network returns the network name, ie. "mainnet".
func (c *Coin) Network() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.network
}

// ChainID returns the chain id.
func (c *Coin) ChainID() config.ChainID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainID
}

// Denom returns the denomination of chains that name their native asset.
func (c *Coin) Denom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.denom
}

// FeeData returns a copy of the fee schedule.
func (c *Coin) FeeData() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fd := make(map[string]string, len(c.feeData))
	for k, v := range c.feeData {
		fd[k] = v
	}
	return fd
}

// GasLimit returns the configured gas limit.
func (c *Coin) GasLimit() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gasLimit
}

// Coefficient returns the fee coefficient.
func (c *Coin) Coefficient() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coefficient
}

// UnspendableBalance returns the minimal unit amount that must stay in the wallet.
func (c *Coin) UnspendableBalance() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unspendable
}

// TxWebURL returns the transaction page prefix of the block explorer web site.
func (c *Coin) TxWebURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.txWebURL
}

// Socket reports whether the coin gets real time transaction notifications.
func (c *Coin) Socket() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socket
}

// Features returns the enabled features.
func (c *Coin) Features() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Feature(nil), c.features...)
}

// IsFeatureSupported reports whether the feature is enabled. Names outside the known set return ErrUnknownFeature.
func (c *Coin) IsFeatureSupported(name string) (bool, error) {
	f, err := ParseFeature(name)
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.features {
		if e == f {
			return true, nil
		}
	}
	return false, nil
}

// Strategy returns the chain strategy.
func (c *Coin) Strategy() Strategy { return c.strategy }

// Deps returns the loader of the coin libraries.
func (c *Coin) Deps() *Loader { return c.deps }

// DB returns the database of the coin.
func (c *Coin) DB() store.DB { return c.db }

// Address returns the loaded address, empty when no key or address has been loaded.
func (c *Coin) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

// Nonce returns the last account nonce reported by the explorer, nil for chains without nonces.
func (c *Coin) Nonce() *uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nonce == nil {
		return nil
	}
	n := *c.nonce
	return &n
}

// SetNonce sets the account nonce, ie. after broadcasting a transaction.
func (c *Coin) SetNonce(n uint64) {
	c.mu.Lock()
	c.nonce = &n
	c.mu.Unlock()
}

// IsMatch implements Wallet.
func (c *Coin) IsMatch(q Query) (bool, error) {
	return match(q, Query{
		Ticker:  c.Ticker(),
		Address: c.Address(),
		Network: c.Network(),
		ChainID: string(c.ChainID()),
	})
}

func (c *Coin) info() types.Info {
	bal, _ := c.Balance()
	return types.Info{Balance: bal, Nonce: c.Nonce()}
}

// GetInfo refreshes balance and nonce from the active explorer. Without an explorer or on any explorer error the
// cached values are returned; errors are logged, never returned. An unknown balance is empty.
func (c *Coin) GetInfo(ctx context.Context) types.Info {
	exp := c.Explorer()
	addr := c.Address()
	if exp == nil || addr == "" {
		return c.info()
	}
	info, err := exp.GetInfo(ctx, addr)
	if err != nil {
		c.log.Warnw("getting info", "explorer", exp.Name(), "err", err)
		return c.info()
	}
	if info.Balance != "" {
		if err = c.SetBalance(info.Balance); err != nil {
			c.log.Warnw("setting balance", "balance", info.Balance, "err", err)
		}
	}
	if info.Nonce != nil {
		c.SetNonce(*info.Nonce)
	}
	return c.info()
}

// GetBalance refreshes and returns the balance in minimal units, empty when unknown.
func (c *Coin) GetBalance(ctx context.Context) string {
	return c.GetInfo(ctx).Balance
}

// Transactions returns the cached history.
func (c *Coin) Transactions() []types.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Transaction(nil), c.transactions...)
}

// GetTransactions reads a page of history from the active explorer. Explorer errors are returned as
// *ExplorerRequestError; the cache is only used when the coin has no explorer. Pages of the coin's own history replace
// the cache, are stored in the transactions table and announced with a HistoryUpdated event.
func (c *Coin) GetTransactions(ctx context.Context, q TxQuery) ([]types.Transaction, error) {
	addr := c.Address()
	if addr == "" {
		return nil, ErrNoAddress
	}
	exp := c.Explorer()
	if exp == nil {
		return c.Transactions(), nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = exp.TxLimit()
	}
	txs, err := exp.GetTransactions(ctx, explorer.Query{
		Address: addr, Contract: q.Contract, Offset: q.Offset, Limit: limit,
	})
	if err != nil {
		return nil, &ExplorerRequestError{RequestType: "GetTransactions", Err: err, Wallet: c}
	}
	for i := range txs {
		c.format(&txs[i])
	}
	if q.Contract == "" {
		c.mu.Lock()
		c.transactions = append([]types.Transaction(nil), txs...)
		c.mu.Unlock()
		saveTransactions(ctx, c.db, c.log, txs)
		c.bus.Emit(historyEvent(c.ID(), txs))
	}
	return txs, nil
}

// GetTransaction reads one transaction from the active explorer.
func (c *Coin) GetTransaction(ctx context.Context, hash string) (*types.Transaction, error) {
	exp := c.Explorer()
	if exp == nil {
		return nil, ErrNoExplorer
	}
	tx, err := exp.GetTransaction(ctx, c.Address(), hash)
	if err != nil {
		return nil, &ExplorerRequestError{RequestType: "GetTransaction", Err: err, Wallet: c}
	}
	c.format(tx)
	return tx, nil
}

// CheckTransaction refreshes the status of a sent transaction.
func (c *Coin) CheckTransaction(ctx context.Context, tx types.Transaction) (types.Transaction, error) {
	exp := c.Explorer()
	if exp == nil {
		return tx, ErrNoExplorer
	}
	res, err := exp.CheckTransaction(ctx, c.Address(), tx)
	if err != nil {
		c.log.Warnw("checking transaction", "ticker", c.Ticker(), "txid", tx.Hash, "err", err)
		return tx, &ExplorerRequestError{RequestType: "CheckTransaction", Err: err, Wallet: c}
	}
	c.format(&res)
	return res, nil
}

// GetUnspentOutputs reads the unspent outputs of the loaded address.
func (c *Coin) GetUnspentOutputs(ctx context.Context) ([]types.UTXO, error) {
	addr := c.Address()
	if addr == "" {
		return nil, ErrNoAddress
	}
	exp := c.Explorer()
	if exp == nil {
		return nil, ErrNoExplorer
	}
	script := ""
	if sp, ok := c.strategy.(ScriptPubKeyProvider); ok {
		script, _ = sp.ScriptPubKey()
	}
	us, err := exp.GetUnspentOutputs(ctx, addr, script)
	if err != nil {
		return nil, &ExplorerRequestError{RequestType: "GetUnspentOutputs", Err: err, Wallet: c}
	}
	return us, nil
}

// fee returns the network fee of t in minimal units: the strategy's when it computes one, otherwise the "fee" entry of
// the fee schedule.
func (c *Coin) fee(ctx context.Context, t Transfer) (*big.Int, error) {
	if fc, ok := c.strategy.(FeeCalculator); ok {
		return fc.Fee(ctx, c, t)
	}
	return c.feeValue("fee"), nil
}

// feeValue returns the fee schedule entry as an integer, zero when missing or malformed.
func (c *Coin) feeValue(key string) *big.Int {
	c.mu.RLock()
	v := c.feeData[key]
	c.mu.RUnlock()
	if n, err := amount.ParseMinimal(v); err == nil && n.Sign() >= 0 {
		return n
	}
	return new(big.Int)
}

// GetFee returns the network fee of a transfer in currency units.
func (c *Coin) GetFee(ctx context.Context, args TxArgs) (string, error) {
	var t Transfer
	if args.To != "" || args.Amount != "" {
		var err error
		if t, err = c.transfer(args, c.Decimal(), ""); err != nil {
			return "", err
		}
	}
	f, err := c.fee(ctx, t)
	if err != nil {
		return "", err
	}
	return c.ToCurrencyUnit(f.String())
}

// AvailableBalance returns, in currency units, the balance minus the larger of fees (currency units) and the computed
// fee, minus the unspendable balance, floored at zero.
func (c *Coin) AvailableBalance(ctx context.Context, fees string) (string, error) {
	bal := c.IndivisibleBalance()
	if bal == nil {
		bal = new(big.Int)
	}
	fee := new(big.Int)
	if strings.TrimSpace(fees) != "" {
		f, err := minimal(fees, c.Decimal())
		if err != nil {
			return "", err
		}
		fee = f
	}
	computed, err := c.fee(ctx, Transfer{})
	if err != nil {
		c.log.Warnw("computing fee", "err", err)
		computed = c.feeValue("fee")
	}
	if computed.Cmp(fee) > 0 {
		fee = computed
	}
	unspendable := new(big.Int)
	if u, err := amount.ParseMinimal(c.UnspendableBalance()); err == nil {
		unspendable = u
	}
	avail := new(big.Int).Sub(bal, fee)
	avail.Sub(avail, unspendable)
	if avail.Sign() < 0 {
		avail.SetInt64(0)
	}
	return c.ToCurrencyUnit(avail.String())
}

// IsAvailableForSend reports whether amount (currency units) can be sent paying fee. Negative amounts and unknown
// balances are never available, and neither is a zero amount against a zero available balance.
func (c *Coin) IsAvailableForSend(ctx context.Context, amt, fee string) bool {
	if strings.HasPrefix(strings.TrimSpace(amt), "-") {
		return false
	}
	if _, known := c.Balance(); !known {
		return false
	}
	a, err := minimal(amt, c.Decimal())
	if err != nil {
		return false
	}
	avail, err := c.AvailableBalance(ctx, fee)
	if err != nil {
		return false
	}
	av, err := minimal(avail, c.Decimal())
	if err != nil {
		return false
	}
	if a.Sign() == 0 && av.Sign() == 0 {
		return false
	}
	return a.Cmp(av) <= 0
}

// registerToken lets transfers of contract found in the coin history be attributed to the token.
func (c *Coin) registerToken(contract, id, ticker string) {
	if contract == "" {
		return
	}
	c.mu.Lock()
	c.tokens[strings.ToLower(contract)] = tokenRef{id: id, ticker: ticker}
	c.mu.Unlock()
}

// format completes a transaction read from an explorer: coin transfers get the coin id and ticker and token transfers
// the id and ticker of the token wallet, when one is registered.
func (c *Coin) format(tx *types.Transaction) {
	if tx.WalletID == "" {
		tx.WalletID = c.ID()
	}
	if tx.Ticker == "" {
		tx.Ticker = c.Ticker()
	}
	if tx.Contract == "" {
		return
	}
	c.mu.RLock()
	ref, ok := c.tokens[strings.ToLower(tx.Contract)]
	c.mu.RUnlock()
	if ok {
		tx.WalletID, tx.Ticker = ref.id, ref.ticker
	}
}

// Close releases the explorers.
func (c *Coin) Close() {
	for _, e := range c.Explorers() {
		if cl, ok := e.(interface{ Close() }); ok {
			cl.Close()
		}
	}
}
