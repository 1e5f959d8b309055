// Package msg defines the message broker the wallet and watcher services talk through.
//
// Three exchanges are used:
//
// - wr ("wallet requests"): the wallet service asks the watcher to listen to (or forget) an address
//
// - ee ("explorer events"): the watcher publishes the transactions it finds for a coin
//
// - we ("wallet events"): the wallet service publishes balance, history and transaction updates of its wallets
package msg

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tarancss/mcw/lib/event"
)

// Exchange names.
const (
	Requests     = "wr"
	TxEvents     = "ee"
	WalletEvents = "we"
)

// Types of object for wallet requests.
const (
	EXIT    = -1
	ADDRESS = 0
	TX      = 1
)

// Actions to be applied to objects for wallet requests.
const (
	LISTEN   = 0
	UNLISTEN = 1
)

// ErrClosed is returned by a broker used after Close.
var ErrClosed = errors.New("msg: broker closed")

// WalletReq is the message the wallet service publishes to ask the watcher of a coin to watch an object.
type WalletReq struct {
	Coin string `json:"coin"`
	Type int    `json:"type"` // type of object
	Obj  string `json:"obj"`
	Act  int    `json:"act"` // action to be applied
}

// WalletEvent is a bus event of a wallet as published on the wallet events exchange.
type WalletEvent struct {
	Topic    string          `json:"topic"`
	WalletID string          `json:"walletId"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// NewWalletEvent wraps a bus event for the broker.
func NewWalletEvent(e event.Event) (WalletEvent, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return WalletEvent{}, fmt.Errorf("msg: encoding event: %w", err)
	}
	t := e.Topic()
	return WalletEvent{Topic: t.String(), WalletID: t.Scope, Kind: t.Kind.Name(), Payload: b}, nil
}

// RoutingKey is the key the event is published with, ie. "BTC.balance".
func (w WalletEvent) RoutingKey() string {
	return w.WalletID + "." + w.Kind
}

// Broker is implemented by message brokers. Channels returned by the Get methods are closed when the broker is.
// A message is acknowledged once it has been received from the channel.
type Broker interface {
	Setup() error
	Close() error

	// methods for the wallet service
	SendRequest(coin string, r WalletReq) error
	GetTxs(coin string) (<-chan event.SocketTxEvent, <-chan error, error)
	SendWalletEvent(e WalletEvent) error

	// methods for the watcher service
	GetRequests(coin string) (<-chan WalletReq, <-chan error, error)
	SendTxs(coin string, txs []event.SocketTxEvent) error
}
