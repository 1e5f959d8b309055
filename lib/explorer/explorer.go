// Package explorer defines the data sources coins delegate their chain I/O to: balances, transaction history,
// unspent outputs and broadcasting. Concrete explorers register themselves by class name so coins can build them from
// declarative configuration.
package explorer

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/types"
)

// Errors returned by the registry.
var (
	ErrUnknownExplorer = errors.New("explorer: class not registered")
	ErrNoAddress       = errors.New("explorer: address required")
)

// Query selects a page of the transaction history of an address. Contract narrows it to a token.
type Query struct {
	Address  string
	Contract string
	Offset   int
	Limit    int
}

// SocketRequest asks an explorer to resolve a real time transaction notification.
type SocketRequest struct {
	Address      string
	Hash         string
	ScriptPubKey string
	Tokens       []string
	Type         string
}

// Owner is the coin an explorer works for.
type Owner interface {
	ID() string
	Ticker() string
	Decimal() int
	Network() string
	Address() string
	// Notify forwards a resolved transaction to the coin.
	Notify(tx types.Transaction)
}

// Explorer is the contract every data source implements. Methods a source cannot serve return
// types.ErrUnsupported.
type Explorer interface {
	Name() string
	Config() config.ExplorerConfig
	UpdateParams(cfg config.ExplorerConfig)
	GetInfo(ctx context.Context, address string) (types.Info, error)
	GetTransaction(ctx context.Context, address, txID string) (*types.Transaction, error)
	GetTransactions(ctx context.Context, q Query) ([]types.Transaction, error)
	GetUnspentOutputs(ctx context.Context, address, scriptPubKey string) ([]types.UTXO, error)
	SendTransaction(ctx context.Context, raw string) (string, error)
	CheckTransaction(ctx context.Context, address string, tx types.Transaction) (types.Transaction, error)
	// TxLimit is the page size of history requests, 0 when undefined.
	TxLimit() int
	CanPaginate() bool
}

// SocketTransactionGetter is implemented by explorers able to resolve socket notifications.
type SocketTransactionGetter interface {
	GetSocketTransaction(ctx context.Context, req SocketRequest) error
}

// TokenBalanceGetter is implemented by explorers of chains with contract tokens.
type TokenBalanceGetter interface {
	GetTokenBalance(ctx context.Context, address, contract string) (string, error)
}

// TokenInfoGetter is implemented by explorers able to read token metadata from the chain.
type TokenInfoGetter interface {
	GetToken(ctx context.Context, contract string) (types.Token, error)
}

// FeeRequest describes the transfer whose fee is estimated. Amount is in minimal units.
type FeeRequest struct {
	From     string
	To       string
	Contract string
	Amount   string
}

// FeeEstimator is implemented by explorers able to estimate the network fee of a transfer, in minimal units.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, req FeeRequest) (string, error)
}

// BlockSource is implemented by explorers backed by a node that can be scanned block by block.
type BlockSource interface {
	MaxBlocks() int // number of blocks that are controlled for orphans (uncles)
	AvgBlock() int  // average block mining rate in seconds
	GetBlock(block uint64, full bool, response interface{}) error
	DecodeBlock(b interface{}) (types.Block, error)
	DecodeTxs(t interface{}) ([]types.Trans, error)
	Close()
}

// Deps are the collaborators handed to explorer constructors.
type Deps struct {
	Log  *zap.SugaredLogger
	HTTP *http.Client
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.HTTP == nil {
		d.HTTP = http.DefaultClient
	}
	return d
}

// Factory builds an explorer bound to its owner.
type Factory func(cfg config.ExplorerConfig, owner Owner, deps Deps) (Explorer, error)

// legacy class names still found in coin tables.
var legacy = map[string]string{
	"BlockbookExplorer": "BlockbookV2Explorer",
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes an explorer class available by name. Registering the same name twice replaces the factory.
func Register(className string, f Factory) {
	mu.Lock()
	registry[className] = f
	mu.Unlock()
}

// Resolve maps legacy class names to their current name.
func Resolve(className string) string {
	if n, ok := legacy[className]; ok {
		return n
	}
	return className
}

// Registered returns the registered class names, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds an explorer of the given class.
func New(className string, cfg config.ExplorerConfig, owner Owner, deps Deps) (Explorer, error) {
	mu.RLock()
	f, ok := registry[Resolve(className)]
	mu.RUnlock()
	if !ok {
		return nil, ErrUnknownExplorer
	}
	return f(cfg, owner, deps.withDefaults())
}
