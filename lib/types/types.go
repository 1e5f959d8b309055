// Package types contains the blockchain and wallet types shared by explorers, wallets and services.
package types

import (
	"errors"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus uint8

// Transaction status constants.
const (
	TxPending TxStatus = iota
	TxFailed
	TxConfirmed
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxFailed:
		return "failed"
	case TxConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Transaction is the wallet view of a transfer. WalletID identifies the coin or token wallet the transfer belongs to;
// explorers set the coin id and the coin moves transfers with a Contract to the matching token. Value and Fee are
// minimal unit strings.
type Transaction struct {
	WalletID      string   `json:"walletId" bson:"walletId"`
	Ticker        string   `json:"ticker" bson:"ticker"`
	Hash          string   `json:"txid" bson:"txid"`
	Block         uint64   `json:"block" bson:"block"`
	From          string   `json:"from" bson:"from"`
	To            string   `json:"to" bson:"to"`
	Value         string   `json:"value" bson:"value"`
	Fee           string   `json:"fee" bson:"fee"`
	Contract      string   `json:"contract,omitempty" bson:"contract,omitempty"`
	Memo          string   `json:"memo,omitempty" bson:"memo,omitempty"`
	Data          string   `json:"data,omitempty" bson:"data,omitempty"`
	Incoming      bool     `json:"incoming" bson:"incoming"`
	Status        TxStatus `json:"status" bson:"status"`
	Confirmations int64    `json:"confirmations" bson:"confirmations"`
	Timestamp     int64    `json:"ts" bson:"ts"`
}

// UTXO is an unspent output of a UTXO chain. Value is in minimal units and Script is the hex encoded pubkey script.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Value         string `json:"value"`
	Script        string `json:"script,omitempty"`
	Height        int64  `json:"height"`
	Confirmations int64  `json:"confirmations"`
}

// Info is the account state returned by an explorer. An empty Balance means the explorer did not report one and a
// nil Nonce means the chain has no account nonce.
type Info struct {
	Balance string  `json:"balance"`
	Nonce   *uint64 `json:"nonce,omitempty"`
}

// Token is a blockchain asset.
type Token struct {
	Name     string      `json:"name"`
	Symbol   string      `json:"symbol"`
	Decimals uint8       `json:"decimals"`
	Data     interface{} `json:"data"` // chain specific details
}

// Trans is a raw transfer as found in a block. There are chains with many transfers per transaction, for now we keep
// a single transfer from From to To.
type Trans struct {
	Block  string `json:"block"`
	Hash   string `json:"hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token,omitempty"`
	Value  string `json:"value"`
	Data   string `json:"data,omitempty"`
	Gas    string `json:"gas"`
	Price  uint64 `json:"price"`
	Fee    uint64 `json:"fee"`
	Status uint8  `json:"status"`
	TS     uint32 `json:"ts"`
}

// Block contains a simplified list of block fields.
type Block struct {
	Hash   string  `json:"hash"`
	PHash  string  `json:"parentHash"`
	Number string  `json:"number"`
	TS     string  `json:"timestamp"`
	Tx     []Trans `json:"transactions"`
}

// Error codes.
var (
	ErrBlockDecode   = errors.New("unable to decode block data into Block type")
	ErrNoBlockNumber = errors.New("block data does not contain a block number")
	ErrNoTS          = errors.New("block data does not contain a timestamp")
	ErrNoHash        = errors.New("block data does not contain a hash")
	ErrNoParentHash  = errors.New("block data does not contain a parenthash")
	ErrNoBlock       = errors.New("block not available yet")
	ErrNoTrx         = errors.New("transaction not found")
	ErrNoTrxHash     = errors.New("malformed tx data in block, field 'hash' missing")
	ErrNoTrxInput    = errors.New("malformed tx data in block, field 'input' missing")
	ErrNoTrxValue    = errors.New("malformed tx data in block, field 'value' missing")
	ErrNoTrxFrom     = errors.New("malformed tx data in block, field 'from' missing")
	ErrTrxWrongLen   = errors.New("malformed tx data in block, field 'input' has wrong length for ERC20.Transfer")
	ErrNoTrxGasUsed  = errors.New("malformed tx data in block, field 'gas' missing")
	ErrNoTrxGasPrice = errors.New("malformed tx data in block, field 'gasPrice' missing")
	ErrUnsupported   = errors.New("operation not supported by this explorer")
)
