package wallet

import (
	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/types"
)

// TxNotifier announces new transactions of a coin. Token transfers are also announced on the coin scope so the token
// wallets of the coin can refresh.
type TxNotifier struct {
	coinID string
	bus    *event.Bus
	log    *zap.SugaredLogger
}

// NewTxNotifier returns a notifier for the coin.
func NewTxNotifier(coinID string, bus *event.Bus, log *zap.SugaredLogger) *TxNotifier {
	return &TxNotifier{coinID: coinID, bus: bus, log: log}
}

// Notify publishes tx on the NewTransaction topic of its wallet and, for token transfers, on the NewTokenTx topic of
// the coin.
func (n *TxNotifier) Notify(tx types.Transaction) {
	if tx.WalletID == "" {
		tx.WalletID = n.coinID
	}
	n.log.Debugw("new transaction", "walletId", tx.WalletID, "txid", tx.Hash, "status", tx.Status.String())
	n.bus.Emit(event.TxEvent{WalletID: tx.WalletID, Tx: tx})
	if tx.Contract != "" {
		n.bus.Emit(event.TokenTxEvent{CoinID: n.coinID, Contract: tx.Contract, Tx: tx})
	}
}
