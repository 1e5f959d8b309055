package wallet

import (
	"context"
	"math/big"
	"regexp"
	"strings"
)

// transfer converts user arguments into a Transfer. amount is read with dec, the fee with the coin decimal.
func (c *Coin) transfer(args TxArgs, dec int, contract string) (Transfer, error) {
	t := Transfer{To: strings.TrimSpace(args.To), Memo: args.Memo, Contract: contract}
	if t.To == "" {
		return t, invalid("to", "required")
	}
	a, err := minimal(args.Amount, dec)
	if err != nil {
		return t, &ValidationError{Field: "amount", Msg: args.Amount, Err: err}
	}
	t.Amount = a
	if strings.TrimSpace(args.Fee) != "" {
		f, err := minimal(args.Fee, c.Decimal())
		if err != nil {
			return t, &ValidationError{Field: "fee", Msg: args.Fee, Err: err}
		}
		t.Fee = f
	}
	if args.Memo != "" {
		if pattern := c.MemoRegexp(); pattern != "" {
			ok, err := regexp.MatchString(pattern, args.Memo)
			if err != nil {
				return t, &ValidationError{Field: "memoRegexp", Msg: pattern, Err: err}
			}
			if !ok {
				return t, invalid("memo", "does not match "+pattern)
			}
		}
	}
	if v, ok := c.strategy.(AddressValidator); ok {
		if err = v.ValidateAddress(t.To); err != nil {
			return t, &ValidationError{Field: "to", Msg: t.To, Err: err}
		}
	}
	return t, nil
}

// SetPrivateKey loads a private key into the strategy and sets the address derived from it.
func (c *Coin) SetPrivateKey(key string) error {
	kl, ok := c.strategy.(KeyLoader)
	if !ok {
		return &AbstractMethodError{Method: "SetPrivateKey", Wallet: c}
	}
	addr, err := kl.SetPrivateKey(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
	return nil
}

// SetAddress loads an address without key, for watch only wallets. It is validated when the strategy can.
func (c *Coin) SetAddress(addr string) error {
	if v, ok := c.strategy.(AddressValidator); ok {
		if err := v.ValidateAddress(addr); err != nil {
			return &ValidationError{Field: "address", Msg: addr, Err: err}
		}
	}
	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
	return nil
}

// ValidateAddress checks an address of the chain.
func (c *Coin) ValidateAddress(addr string) error {
	v, ok := c.strategy.(AddressValidator)
	if !ok {
		return &AbstractMethodError{Method: "ValidateAddress", Wallet: c}
	}
	return v.ValidateAddress(addr)
}

// CreateTransaction builds and signs a transfer of the coin and returns the raw transaction.
func (c *Coin) CreateTransaction(ctx context.Context, args TxArgs) (string, error) {
	tc, ok := c.strategy.(TxCreator)
	if !ok {
		return "", &AbstractMethodError{Method: "CreateTransaction", Wallet: c}
	}
	if c.Address() == "" {
		return "", ErrNoAddress
	}
	t, err := c.transfer(args, c.Decimal(), "")
	if err != nil {
		return "", err
	}
	return tc.CreateTransaction(ctx, c, t)
}

// CreateTokenTransaction builds and signs a token transfer paid by the coin.
func (c *Coin) CreateTokenTransaction(ctx context.Context, t Transfer) (string, error) {
	tc, ok := c.strategy.(TokenTxCreator)
	if !ok {
		return "", &AbstractMethodError{Method: "CreateTokenTransaction", Wallet: c}
	}
	if c.Address() == "" {
		return "", ErrNoAddress
	}
	if t.Contract == "" {
		return "", invalid("contract", "required")
	}
	if t.Amount == nil {
		t.Amount = new(big.Int)
	}
	return tc.CreateTokenTransaction(ctx, c, t)
}

// SendTransaction broadcasts a raw transaction through the active explorer and returns its hash.
func (c *Coin) SendTransaction(ctx context.Context, raw string) (string, error) {
	exp := c.Explorer()
	if exp == nil {
		return "", ErrNoExplorer
	}
	hash, err := exp.SendTransaction(ctx, raw)
	if err != nil {
		return "", &ExplorerRequestError{RequestType: "SendTransaction", Err: err, Wallet: c}
	}
	if h, ok := c.strategy.(SentHook); ok {
		h.Sent(c, raw)
	}
	c.log.Infow("transaction sent", "txid", hash)
	return hash, nil
}

// CreateTransactionOnce is CreateTransaction guarded by the process wide cooldown: within the window after any wallet
// created a transaction it returns ErrSkipped without doing anything.
func (c *Coin) CreateTransactionOnce(ctx context.Context, args TxArgs) (string, error) {
	return runOnce(&c.Base, OpCreateTransaction, func() (string, error) { return c.CreateTransaction(ctx, args) })
}

// SendTransactionOnce is SendTransaction guarded by the process wide cooldown.
func (c *Coin) SendTransactionOnce(ctx context.Context, raw string) (string, error) {
	return runOnce(&c.Base, OpSendTransaction, func() (string, error) { return c.SendTransaction(ctx, raw) })
}
