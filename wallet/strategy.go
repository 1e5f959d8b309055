package wallet

import (
	"context"
	"math/big"
)

// Transfer is a transfer ready for a chain strategy: amounts in minimal units of the asset moved. Contract is set for
// token transfers and Fee is nil when the strategy should compute it.
type Transfer struct {
	To       string
	Amount   *big.Int
	Fee      *big.Int
	Memo     string
	Contract string
}

// Strategy is the chain specific behaviour injected into a coin. Strategies implement the capability interfaces below
// that their chain supports; a coin asked for a missing capability returns an *AbstractMethodError.
type Strategy interface {
	Kind() string
}

// KeyLoader derives the address of a private key and keeps the key for signing.
type KeyLoader interface {
	SetPrivateKey(key string) (address string, err error)
}

// AddressValidator checks addresses of the chain.
type AddressValidator interface {
	ValidateAddress(addr string) error
}

// FeeCalculator computes the network fee of a transfer in minimal units of the coin.
type FeeCalculator interface {
	Fee(ctx context.Context, c *Coin, t Transfer) (*big.Int, error)
}

// TxCreator builds and signs a transfer of the coin, returning the raw transaction.
type TxCreator interface {
	CreateTransaction(ctx context.Context, c *Coin, t Transfer) (string, error)
}

// TokenTxCreator builds and signs a token transfer paid by the coin.
type TokenTxCreator interface {
	CreateTokenTransaction(ctx context.Context, c *Coin, t Transfer) (string, error)
}

// SentHook is told of each raw transaction the coin broadcast successfully.
type SentHook interface {
	Sent(c *Coin, raw string)
}

// ScriptPubKeyProvider returns the hex encoded output script of the loaded key, used by UTXO explorers.
type ScriptPubKeyProvider interface {
	ScriptPubKey() (string, error)
}

// DependencyProvider declares the libraries a strategy loads lazily through the coin Loader.
type DependencyProvider interface {
	Dependencies() map[string]LoadFunc
}

// WatchOnly is the strategy of coins that only read the chain.
type WatchOnly struct{}

// Kind implements Strategy.
func (WatchOnly) Kind() string { return "watch" }
