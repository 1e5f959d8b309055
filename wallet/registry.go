package wallet

import (
	"sort"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/tarancss/mcw/lib/config"

	// explorers referenced by the coin tables
	_ "github.com/tarancss/mcw/lib/explorer/blockbook"
	_ "github.com/tarancss/mcw/lib/explorer/ethnode"
	_ "github.com/tarancss/mcw/lib/explorer/web3"
)

// Class is an entry of the coin registry. NewStrategy builds the chain strategy of a coin record.
type Class struct {
	Name        string
	NewStrategy func(cfg config.CoinConfig) (Strategy, error)
}

var (
	classMu sync.RWMutex
	classes = make(map[string]Class)
)

// RegisterClass adds or replaces a class of the registry.
func RegisterClass(c Class) {
	classMu.Lock()
	classes[c.Name] = c
	classMu.Unlock()
}

// LookupClass returns the class registered under name.
func LookupClass(name string) (Class, bool) {
	classMu.RLock()
	defer classMu.RUnlock()
	c, ok := classes[name]
	return c, ok
}

// Classes returns the registered class names, sorted.
func Classes() []string {
	classMu.RLock()
	defer classMu.RUnlock()
	names := make([]string, 0, len(classes))
	for n := range classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func bitcoinParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	}
	return &chaincfg.MainNetParams
}

// evmClass builds EVM strategies for the record chain id, or def when the record has none.
func evmClass(name string, def uint64) Class {
	return Class{Name: name, NewStrategy: func(cfg config.CoinConfig) (Strategy, error) {
		id := cfg.ChainID.Uint64()
		if id == 0 {
			for _, e := range cfg.Explorers {
				if id = e.ChainID.Uint64(); id != 0 {
					break
				}
			}
		}
		if id == 0 {
			id = def
		}
		if id == 0 {
			return nil, invalid("chainId", "required")
		}
		return NewEVM(id), nil
	}}
}

func init() {
	RegisterClass(Class{Name: "BTCCoin", NewStrategy: func(cfg config.CoinConfig) (Strategy, error) {
		return NewUTXO(bitcoinParams(cfg.Network)), nil
	}})
	RegisterClass(Class{Name: "LTCCoin", NewStrategy: func(config.CoinConfig) (Strategy, error) {
		return NewUTXO(&LitecoinParams), nil
	}})
	RegisterClass(evmClass("ETHCoin", 1))
	RegisterClass(evmClass("BNBCoin", 56))
	RegisterClass(evmClass("MATICCoin", 137))
	RegisterClass(evmClass(EVMClassName, 0))
}
