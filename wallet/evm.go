package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tarancss/mcw/lib/erc20"
	"github.com/tarancss/mcw/lib/explorer"
)

// Default EVM fee schedule.
const (
	DefaultGasPrice      = "20000000000"
	DefaultGasLimit      = 21000
	DefaultTokenGasLimit = 150000
)

// EVM errors.
var (
	ErrBadEVMAddress = errors.New("wallet: not an EVM address")
	ErrNoNonce       = errors.New("wallet: account nonce unknown")
	ErrNoGasPrice    = errors.New("wallet: gas price unknown")
)

// EVM is the strategy of Ethereum compatible chains: secp256k1 keys, legacy transactions signed for the chain id and
// ERC20 token transfers.
type EVM struct {
	mu      sync.RWMutex
	chainID *big.Int
	key     *ecdsa.PrivateKey
}

// NewEVM returns the strategy for the chain.
func NewEVM(chainID uint64) *EVM {
	return &EVM{chainID: new(big.Int).SetUint64(chainID)}
}

// Kind implements Strategy.
func (*EVM) Kind() string { return "evm" }

// ChainID returns the chain id transactions are signed for.
func (e *EVM) ChainID() uint64 { return e.chainID.Uint64() }

// Dependencies implements DependencyProvider.
func (*EVM) Dependencies() map[string]LoadFunc {
	return map[string]LoadFunc{
		"erc20": func(context.Context) (interface{}, error) { return erc20.ABI() },
	}
}

// SetPrivateKey implements KeyLoader for hex encoded keys.
func (e *EVM) SetPrivateKey(key string) (string, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return "", fmt.Errorf("wallet: bad private key: %w", err)
	}
	e.mu.Lock()
	e.key = k
	e.mu.Unlock()
	return crypto.PubkeyToAddress(k.PublicKey).Hex(), nil
}

// ValidateAddress implements AddressValidator.
func (*EVM) ValidateAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q", ErrBadEVMAddress, addr)
	}
	return nil
}

func (e *EVM) gas(c *Coin, token bool) uint64 {
	key, def := "gasLimit", uint64(DefaultGasLimit)
	if token {
		key, def = "tokenGasLimit", DefaultTokenGasLimit
	}
	if g := c.feeValue(key); g.Sign() > 0 && g.IsUint64() {
		return g.Uint64()
	}
	if g := c.GasLimit(); g > 0 && !token {
		return g
	}
	return def
}

// gasPrice returns the configured gas price, or the estimate of the active explorer divided by gas.
func (e *EVM) gasPrice(ctx context.Context, c *Coin, t Transfer, gas uint64) (*big.Int, error) {
	if p := c.feeValue("gasPrice"); p.Sign() > 0 {
		return p, nil
	}
	fe, ok := c.Explorer().(explorer.FeeEstimator)
	if !ok {
		return nil, ErrNoGasPrice
	}
	amt := "0"
	if t.Amount != nil {
		amt = t.Amount.String()
	}
	fee, err := fe.EstimateFee(ctx, explorer.FeeRequest{From: c.Address(), To: t.To, Contract: t.Contract, Amount: amt})
	if err != nil {
		return nil, fmt.Errorf("wallet: estimating fee: %w", err)
	}
	f, ok := new(big.Int).SetString(fee, 10)
	if !ok {
		return nil, ErrNoGasPrice
	}
	return f.Div(f, new(big.Int).SetUint64(gas)), nil
}

// Sent implements SentHook moving the coin nonce past the nonce of the broadcast transaction.
func (e *EVM) Sent(c *Coin, raw string) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		c.log.Warnw("decoding sent transaction", "err", err)
		return
	}
	tx := new(gtypes.Transaction)
	if err = tx.UnmarshalBinary(b); err != nil {
		c.log.Warnw("decoding sent transaction", "err", err)
		return
	}
	if n := c.Nonce(); n == nil || *n <= tx.Nonce() {
		c.SetNonce(tx.Nonce() + 1)
	}
}

// Fee implements FeeCalculator as gas price times gas limit.
func (e *EVM) Fee(ctx context.Context, c *Coin, t Transfer) (*big.Int, error) {
	if t.Fee != nil {
		return new(big.Int).Set(t.Fee), nil
	}
	gas := e.gas(c, t.Contract != "")
	price, err := e.gasPrice(ctx, c, t, gas)
	if err != nil {
		return nil, err
	}
	return price.Mul(price, new(big.Int).SetUint64(gas)), nil
}

// CreateTransaction implements TxCreator.
func (e *EVM) CreateTransaction(ctx context.Context, c *Coin, t Transfer) (string, error) {
	return e.sign(ctx, c, t, common.HexToAddress(t.To), t.Amount, nil, e.gas(c, false))
}

// CreateTokenTransaction implements TokenTxCreator with an ERC20 transfer call to the contract.
func (e *EVM) CreateTokenTransaction(ctx context.Context, c *Coin, t Transfer) (string, error) {
	lib, err := c.Deps().Load(ctx, "erc20")
	if err != nil {
		return "", err
	}
	a, ok := lib.(abi.ABI)
	if !ok {
		return "", fmt.Errorf("wallet: erc20 library is %T", lib)
	}
	if !common.IsHexAddress(t.Contract) {
		return "", fmt.Errorf("%w: contract %q", ErrBadEVMAddress, t.Contract)
	}
	data, err := a.Pack("transfer", common.HexToAddress(t.To), t.Amount)
	if err != nil {
		return "", fmt.Errorf("wallet: encoding transfer: %w", err)
	}
	return e.sign(ctx, c, t, common.HexToAddress(t.Contract), new(big.Int), data, e.gas(c, true))
}

func (e *EVM) sign(ctx context.Context, c *Coin, t Transfer, to common.Address, value *big.Int, data []byte,
	gas uint64) (string, error) {
	e.mu.RLock()
	key := e.key
	e.mu.RUnlock()
	if key == nil {
		return "", ErrNoPrivateKey
	}

	nonce := c.Nonce()
	if nonce == nil {
		nonce = c.GetInfo(ctx).Nonce
	}
	if nonce == nil {
		return "", ErrNoNonce
	}

	var price *big.Int
	if t.Fee != nil {
		price = new(big.Int).Div(t.Fee, new(big.Int).SetUint64(gas))
	} else {
		var err error
		if price, err = e.gasPrice(ctx, c, t, gas); err != nil {
			return "", err
		}
	}

	tx := gtypes.NewTx(&gtypes.LegacyTx{Nonce: *nonce, GasPrice: price, Gas: gas, To: &to, Value: value, Data: data})
	signed, err := gtypes.SignTx(tx, gtypes.LatestSignerForChainID(e.chainID), key)
	if err != nil {
		return "", fmt.Errorf("wallet: signing: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("wallet: encoding transaction: %w", err)
	}
	c.log.Debugw("transaction created", "txid", signed.Hash().Hex(), "nonce", *nonce, "gas", gas, "gasPrice", price)
	return hexutil.Encode(raw), nil
}
