package event

import (
	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/types"
)

// Event is a payload that knows the topic it is published on.
type Event interface {
	Topic() Topic
}

// BalanceEvent is published when the divisible balance of a wallet changes.
type BalanceEvent struct {
	WalletID  string `json:"walletId"`
	Ticker    string `json:"ticker"`
	Balance   string `json:"balance"`
	Divisible string `json:"divisibleBalance"`
}

// Topic implements Event.
func (e BalanceEvent) Topic() Topic { return Topic{Kind: BalanceUpdated, Scope: e.WalletID} }

// TouchedEvent is published every time a balance is set, changed or not.
type TouchedEvent struct {
	WalletID string `json:"walletId"`
	Ticker   string `json:"ticker"`
}

// Topic implements Event.
func (e TouchedEvent) Topic() Topic { return Topic{Kind: Touched, Scope: e.WalletID} }

// HistoryEvent carries the fresh transaction history of a wallet.
type HistoryEvent struct {
	WalletID     string              `json:"walletId"`
	Transactions []types.Transaction `json:"transactions"`
}

// Topic implements Event.
func (e HistoryEvent) Topic() Topic { return Topic{Kind: HistoryUpdated, Scope: e.WalletID} }

// TxEvent announces a new transaction of a wallet.
type TxEvent struct {
	WalletID string            `json:"walletId"`
	Tx       types.Transaction `json:"tx"`
}

// Topic implements Event.
func (e TxEvent) Topic() Topic { return Topic{Kind: NewTransaction, Scope: e.WalletID} }

// TokenTxEvent is published on the parent coin scope when a token transfer of one of its tokens is seen.
type TokenTxEvent struct {
	CoinID   string            `json:"coinId"`
	Contract string            `json:"contract"`
	Tx       types.Transaction `json:"tx"`
}

// Topic implements Event.
func (e TokenTxEvent) Topic() Topic { return Topic{Kind: NewTokenTx, Scope: e.CoinID} }

// SocketTxEvent is a real time transaction notification for a coin. When Tx is set the transaction is already
// resolved; otherwise the coin asks its explorer to fetch it from the hash.
type SocketTxEvent struct {
	CoinID       string             `json:"coinId"`
	Confirmed    bool               `json:"confirmed"`
	Address      string             `json:"address"`
	Hash         string             `json:"hash"`
	ScriptPubKey string             `json:"scriptPubKey,omitempty"`
	Tokens       []string           `json:"tokens,omitempty"`
	Type         string             `json:"type,omitempty"`
	Tx           *types.Transaction `json:"tx,omitempty"`
}

// Topic implements Event.
func (e SocketTxEvent) Topic() Topic {
	if e.Confirmed {
		return Topic{Kind: ConfirmedSocketTx, Scope: e.CoinID}
	}
	return Topic{Kind: NewSocketTx, Scope: e.CoinID}
}

// ConfigEvent carries a fresh coin configuration received from a server.
type ConfigEvent struct {
	CoinID string             `json:"coinId"`
	Config *config.CoinConfig `json:"config"`
}

// Topic implements Event.
func (e ConfigEvent) Topic() Topic { return Topic{Kind: ConfigUpdated, Scope: e.CoinID} }

// StakingEvent covers the staking topics, whose payload is chain specific.
type StakingEvent struct {
	Kind     Kind        `json:"-"`
	WalletID string      `json:"walletId"`
	Data     interface{} `json:"data"`
}

// Topic implements Event.
func (e StakingEvent) Topic() Topic { return Topic{Kind: e.Kind, Scope: e.WalletID} }
