package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// WalletTypeEVM selects the EVM construction path of the factory.
const WalletTypeEVM = "EVM"

// ChainID is a chain identifier. EVM chains use numbers and others (ie. cosmos) use strings, so both JSON forms are
// accepted.
type ChainID string

// UnmarshalJSON accepts a JSON number or string.
func (c *ChainID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChainID(s)
		return nil
	}
	if string(b) == "null" {
		*c = ""
		return nil
	}
	if _, err := strconv.ParseUint(string(b), 10, 64); err != nil {
		return fmt.Errorf("config: bad chainId %s", b)
	}
	*c = ChainID(b)
	return nil
}

// Uint64 returns the numeric chain id, or 0 when it is not a number.
func (c ChainID) Uint64() uint64 {
	n, _ := strconv.ParseUint(string(c), 10, 64)
	return n
}

// ExplorerConfig is the declarative configuration of one explorer instance. Two explorers of a coin are the same
// instance when their configs are deeply equal.
type ExplorerConfig struct {
	ClassName string            `json:"className"`
	BaseURL   string            `json:"baseUrl"`
	WebURL    string            `json:"webUrl,omitempty"`
	ChainID   ChainID           `json:"chainId,omitempty"`
	Type      string            `json:"type,omitempty"`
	Secret    string            `json:"secret,omitempty"`
	MaxBlocks int               `json:"maxBlocks,omitempty"`
	TxLimit   int               `json:"txLimit,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// TokenConfig is the declarative configuration of a token of a coin.
type TokenConfig struct {
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	Alias      string `json:"alias,omitempty"`
	Decimal    int    `json:"decimal"`
	Contract   string `json:"contract"`
	ParentID   string `json:"parentId,omitempty"`
	Network    string `json:"network,omitempty"`
	Source     string `json:"source,omitempty"`
	Visibility bool   `json:"visibility"`
}

// CoinConfig is one record of the coins table. Amount fields (FeeData values, UnspendableBalance) are decimal
// strings; fee data is in minimal units.
type CoinConfig struct {
	ID                 string            `json:"id"`
	ClassName          string            `json:"className"`
	WalletType         string            `json:"walletType,omitempty"`
	Ticker             string            `json:"ticker"`
	Name               string            `json:"name"`
	Alias              string            `json:"alias,omitempty"`
	Decimal            int               `json:"decimal"`
	FeeData            map[string]string `json:"feeData,omitempty"`
	GasLimit           uint64            `json:"gasLimit,omitempty"`
	Coefficient        string            `json:"coefficient,omitempty"`
	UnspendableBalance string            `json:"unspendableBalance,omitempty"`
	Explorers          []ExplorerConfig  `json:"explorers"`
	TxWebURL           string            `json:"txWebUrl,omitempty"`
	Socket             bool              `json:"socket"`
	Network            string            `json:"network,omitempty"`
	ChainID            ChainID           `json:"chainId,omitempty"`
	Denom              string            `json:"denom,omitempty"`
	Features           []string          `json:"features,omitempty"`
	MemoRegexp         string            `json:"memoRegexp,omitempty"`
	RPCBaseURL         string            `json:"rpcBaseUrl,omitempty"`
	Tokens             []TokenConfig     `json:"tokens,omitempty"`
}

// ParseCoins decodes a JSON array of coin records keeping their order.
func ParseCoins(b []byte) ([]CoinConfig, error) {
	var coins []CoinConfig
	if err := json.Unmarshal(b, &coins); err != nil {
		return nil, fmt.Errorf("config: decoding coins: %w", err)
	}
	return coins, nil
}

// LoadCoins reads the coins table from a JSON file.
func LoadCoins(filename string) ([]CoinConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading coins: %w", err)
	}
	return ParseCoins(b)
}
