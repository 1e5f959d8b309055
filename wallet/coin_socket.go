package wallet

import (
	"context"
	"time"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/types"
)

// socketTimeout bounds the explorer lookups triggered by bus events.
const socketTimeout = 30 * time.Second

// manageSocket subscribes the coin to its socket transaction topics, once.
func (c *Coin) manageSocket() {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	c.mu.Unlock()

	for _, k := range event.SocketKinds {
		t := event.Topic{Kind: k, Scope: c.ID()}
		if err := c.bus.SubscribeAsync(t, c.onSocketTx); err != nil {
			c.log.Errorw("subscribing", "topic", t.String(), "err", err)
		}
	}
}

// manageEvents subscribes the coin to configuration updates.
func (c *Coin) manageEvents() {
	t := event.Topic{Kind: event.ConfigUpdated, Scope: c.ID()}
	if err := c.bus.SubscribeAsync(t, c.onConfig); err != nil {
		c.log.Errorw("subscribing", "topic", t.String(), "err", err)
	}
}

func (c *Coin) onSocketTx(e event.Event) {
	se, ok := e.(event.SocketTxEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), socketTimeout)
	defer cancel()
	if err := c.HandleSocketTx(ctx, se); err != nil {
		c.log.Warnw("socket transaction", "txid", se.Hash, "err", err)
	}
}

func (c *Coin) onConfig(e event.Event) {
	ce, ok := e.(event.ConfigEvent)
	if !ok {
		return
	}
	if err := c.UpdateCoinParamsFromServer(ce.Config); err != nil {
		c.log.Warnw("applying configuration", "err", err)
	}
}

// HandleSocketTx processes a socket notification. A resolved transaction is forwarded to the notifier right away;
// otherwise the active explorer fetches it, which requires the explorer to implement
// explorer.SocketTransactionGetter.
func (c *Coin) HandleSocketTx(ctx context.Context, se event.SocketTxEvent) error {
	if se.Tx != nil {
		c.Notify(*se.Tx)
		return nil
	}
	req := explorer.SocketRequest{
		Address: se.Address, Hash: se.Hash, ScriptPubKey: se.ScriptPubKey, Tokens: se.Tokens, Type: se.Type,
	}
	if req.Address == "" {
		req.Address = c.Address()
	}
	if req.ScriptPubKey == "" {
		if sp, ok := c.strategy.(ScriptPubKeyProvider); ok {
			if s, err := sp.ScriptPubKey(); err == nil {
				req.ScriptPubKey = s
			}
		}
	}
	exp := c.Explorer()
	if exp == nil {
		return ErrNoExplorer
	}
	g, ok := exp.(explorer.SocketTransactionGetter)
	if !ok {
		return &AbstractMethodError{Method: "GetSocketTransaction", Wallet: c}
	}
	return g.GetSocketTransaction(ctx, req)
}

// Notify implements explorer.Owner: the transaction is completed, added to the cached history and announced.
func (c *Coin) Notify(tx types.Transaction) {
	c.format(&tx)
	if tx.WalletID == c.ID() {
		c.mu.Lock()
		replaced := false
		for i := range c.transactions {
			if c.transactions[i].Hash == tx.Hash {
				c.transactions[i], replaced = tx, true
				break
			}
		}
		if !replaced {
			c.transactions = append([]types.Transaction{tx}, c.transactions...)
		}
		c.mu.Unlock()
	}
	c.notifier.Notify(tx)
}

// RefreshConfig fetches the coin configuration from the config manager and applies it.
func (c *Coin) RefreshConfig(ctx context.Context) error {
	cfg, err := config.GetCoinConfig(ctx, c.manager, c.ID())
	if err != nil {
		return err
	}
	return c.UpdateCoinParamsFromServer(cfg)
}
