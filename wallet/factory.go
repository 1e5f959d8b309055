package wallet

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer/web3"
)

// EVMClassName is the class of coins built by CreateEVMCoin.
const EVMClassName = "EVMCoin"

// EVMParams describe an EVM chain added without a dedicated class. Decimal defaults to 18.
type EVMParams struct {
	Ticker     string
	Name       string
	Alias      string
	ChainID    uint64
	RPCBaseURL string
	Decimal    int
	Network    string
	TxWebURL   string
	Socket     bool
	Features   []string
	FeeData    map[string]string // merged over the default fee schedule
}

// evmParams reads the EVM fields of a coin record.
func evmParams(cfg config.CoinConfig) EVMParams {
	return EVMParams{
		Ticker: cfg.Ticker, Name: cfg.Name, Alias: cfg.Alias, ChainID: cfg.ChainID.Uint64(),
		RPCBaseURL: cfg.RPCBaseURL, Decimal: cfg.Decimal, Network: cfg.Network, TxWebURL: cfg.TxWebURL,
		Socket: cfg.Socket, Features: cfg.Features, FeeData: cfg.FeeData,
	}
}

// CreateEVMCoin builds a coin of an EVM chain from its RPC endpoint. Missing fields and RPC urls not using https are
// rejected with a *ValidationError before any request is made.
func CreateEVMCoin(p EVMParams, opts ...Option) (*Coin, error) {
	switch {
	case strings.TrimSpace(p.Ticker) == "":
		return nil, invalid("ticker", "required")
	case strings.TrimSpace(p.Name) == "":
		return nil, invalid("name", "required")
	case p.ChainID == 0:
		return nil, invalid("chainId", "required")
	case p.RPCBaseURL == "":
		return nil, invalid("rpcBaseUrl", "required")
	}
	u, err := url.Parse(p.RPCBaseURL)
	if err != nil {
		return nil, &ValidationError{Field: "rpcBaseUrl", Msg: p.RPCBaseURL, Err: err}
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, invalid("rpcBaseUrl", "must be an https url")
	}
	if p.Decimal == 0 {
		p.Decimal = 18
	}

	chain := config.ChainID(strconv.FormatUint(p.ChainID, 10))
	fees := map[string]string{
		"gasPrice":      DefaultGasPrice,
		"gasLimit":      strconv.Itoa(DefaultGasLimit),
		"tokenGasLimit": strconv.Itoa(DefaultTokenGasLimit),
	}
	for k, v := range p.FeeData {
		fees[k] = v
	}
	cfg := config.CoinConfig{
		ID:         strings.ToUpper(p.Ticker) + string(chain),
		ClassName:  EVMClassName,
		WalletType: config.WalletTypeEVM,
		Ticker:     p.Ticker,
		Name:       p.Name,
		Alias:      p.Alias,
		Decimal:    p.Decimal,
		FeeData:    fees,
		GasLimit:   DefaultGasLimit,
		Explorers: []config.ExplorerConfig{
			{ClassName: web3.ClassName, BaseURL: p.RPCBaseURL, WebURL: p.TxWebURL, ChainID: chain},
		},
		TxWebURL:   p.TxWebURL,
		Socket:     p.Socket,
		Network:    p.Network,
		ChainID:    chain,
		Features:   p.Features,
		RPCBaseURL: p.RPCBaseURL,
	}
	return NewCoin(cfg, append([]Option{WithStrategy(NewEVM(p.ChainID))}, opts...)...)
}

// CreateCoin builds the coin of a record with its class. Records of wallet type EVM go through CreateEVMCoin; the rest
// keep the known coin fields only.
func CreateCoin(cfg config.CoinConfig, class Class, opts ...Option) (*Coin, error) {
	if strings.EqualFold(cfg.WalletType, config.WalletTypeEVM) {
		return CreateEVMCoin(evmParams(cfg), opts...)
	}
	known := config.CoinConfig{
		ID:                 cfg.ID,
		ClassName:          class.Name,
		Ticker:             cfg.Ticker,
		Name:               cfg.Name,
		Alias:              cfg.Alias,
		Decimal:            cfg.Decimal,
		Network:            cfg.Network,
		ChainID:            cfg.ChainID,
		Denom:              cfg.Denom,
		FeeData:            cfg.FeeData,
		GasLimit:           cfg.GasLimit,
		Coefficient:        cfg.Coefficient,
		UnspendableBalance: cfg.UnspendableBalance,
		Explorers:          cfg.Explorers,
		TxWebURL:           cfg.TxWebURL,
		Socket:             cfg.Socket,
		Features:           cfg.Features,
		MemoRegexp:         cfg.MemoRegexp,
	}
	if class.NewStrategy == nil {
		return NewCoin(known, opts...)
	}
	s, err := class.NewStrategy(known)
	if err != nil {
		return nil, err
	}
	return NewCoin(known, append([]Option{WithStrategy(s)}, opts...)...)
}

// CoinSource provides the coins table.
type CoinSource interface {
	Coins(ctx context.Context) ([]config.CoinConfig, error)
}

// FileSource reads the coins table from a JSON file.
type FileSource string

// Coins implements CoinSource.
func (f FileSource) Coins(context.Context) ([]config.CoinConfig, error) {
	return config.LoadCoins(string(f))
}

// ManagerSource reads the coins table registered under ID in a config manager.
type ManagerSource struct {
	Manager config.Manager
	ID      string
}

// Coins implements CoinSource.
func (m ManagerSource) Coins(ctx context.Context) ([]config.CoinConfig, error) {
	m.Manager.Register(m.ID)
	b, err := m.Manager.Get(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return config.ParseCoins(b)
}

// StaticSource is an in memory coins table.
type StaticSource []config.CoinConfig

// Coins implements CoinSource.
func (s StaticSource) Coins(context.Context) ([]config.CoinConfig, error) { return s, nil }

// Wallets is the result of CreateWallets: the coins in table order and the tokens of each.
type Wallets struct {
	Coins  []*Coin
	Tokens map[string][]*Token // by coin id
}

// All returns the coins followed by their tokens.
func (w *Wallets) All() []Wallet {
	var all []Wallet
	for _, c := range w.Coins {
		all = append(all, c)
	}
	for _, c := range w.Coins {
		for _, t := range w.Tokens[c.ID()] {
			all = append(all, t)
		}
	}
	return all
}

// Get returns the coin or token with the id.
func (w *Wallets) Get(id string) Wallet {
	for _, x := range w.All() {
		if x.ID() == id {
			return x
		}
	}
	return nil
}

// Find returns the wallets matching the query.
func (w *Wallets) Find(q Query) []Wallet {
	var res []Wallet
	for _, x := range w.All() {
		if ok, err := x.IsMatch(q); err == nil && ok {
			res = append(res, x)
		}
	}
	return res
}

// Close releases the explorers of every coin.
func (w *Wallets) Close() {
	for _, c := range w.Coins {
		c.Close()
	}
}

// CreateWallets builds the coins (and their tokens) of the table, restricted to the id filter when not empty. Records
// whose class is not registered are skipped. Explorers are loaded once the coin is built; a coin whose explorers
// fail to load is kept without them.
func CreateWallets(ctx context.Context, src CoinSource, filter string, opts ...Option) (*Wallets, error) {
	cfgs, err := src.Coins(ctx)
	if err != nil {
		return nil, err
	}
	w := &Wallets{Tokens: make(map[string][]*Token)}
	var errs []error
	for _, cfg := range cfgs {
		if filter != "" && cfg.ID != filter {
			continue
		}
		class, ok := LookupClass(cfg.ClassName)
		if !ok {
			continue
		}
		c, err := CreateCoin(cfg, class, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err = c.LoadExplorers(); err != nil {
			c.log.Warnw("loading explorers", "err", err)
		}
		w.Coins = append(w.Coins, c)
		if len(cfg.Tokens) > 0 {
			tokens, err := CreateTokens(c, cfg.Tokens)
			if err != nil {
				errs = append(errs, err)
			}
			w.Tokens[c.ID()] = tokens
		}
	}
	return w, errors.Join(errs...)
}
