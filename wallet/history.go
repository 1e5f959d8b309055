package wallet

import (
	"context"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
)

// TxKey is the key of a transaction in the transactions table.
func TxKey(walletID, hash string) store.Key {
	return store.CompositeKey(walletID, hash)
}

// saveTransactions stores txs in the transactions table. Errors are logged.
func saveTransactions(ctx context.Context, db store.DB, log *zap.SugaredLogger, txs []types.Transaction) {
	if len(txs) == 0 {
		return
	}
	entries := make([]store.Entry, 0, len(txs))
	for _, tx := range txs {
		r, err := store.ToRecord(tx)
		if err != nil {
			log.Warnw("encoding transaction", "txid", tx.Hash, "err", err)
			continue
		}
		entries = append(entries, store.Entry{Key: TxKey(tx.WalletID, tx.Hash), Record: r})
	}
	if err := db.Table(store.TableTransactions).BatchPut(ctx, entries); err != nil {
		log.Warnw("saving transactions", "count", len(entries), "err", err)
	}
}

// LoadTransactions reads the stored transactions of a wallet.
func LoadTransactions(ctx context.Context, db store.DB, walletID string) ([]types.Transaction, error) {
	rs, err := db.Table(store.TableTransactions).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var txs []types.Transaction
	for _, r := range rs {
		var tx types.Transaction
		if err = store.Decode(r, &tx); err != nil {
			return nil, err
		}
		if tx.WalletID == walletID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func historyEvent(walletID string, txs []types.Transaction) event.HistoryEvent {
	return event.HistoryEvent{WalletID: walletID, Transactions: append([]types.Transaction(nil), txs...)}
}
