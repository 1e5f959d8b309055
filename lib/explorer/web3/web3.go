// Package web3 implements an explorer over the standard EVM JSON-RPC API with go-ethereum's ethclient. It is the
// explorer EVM coins get by default.
package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/erc20"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/types"
)

// ClassName is the registry name of the explorer.
const ClassName = "Web3Explorer"

// ErrBadAddress is returned for addresses that are not 20 byte hex strings.
var ErrBadAddress = errors.New("web3: bad address")

func init() {
	explorer.Register(ClassName, func(cfg config.ExplorerConfig, owner explorer.Owner,
		deps explorer.Deps) (explorer.Explorer, error) {
		return New(cfg, owner, deps), nil
	})
}

// Web3 is a JSON-RPC explorer. The client is dialed on first use.
type Web3 struct {
	explorer.Base
	mu sync.Mutex
	c  *ethclient.Client
	sf singleflight.Group
}

// New returns an explorer for the node at cfg.BaseURL.
func New(cfg config.ExplorerConfig, owner explorer.Owner, deps explorer.Deps) *Web3 {
	w := &Web3{}
	w.Init(ClassName, cfg, owner, deps.Log)
	return w
}

// UpdateParams implements explorer.Explorer. A new url drops the current client.
func (w *Web3) UpdateParams(cfg config.ExplorerConfig) {
	old := w.Config()
	w.Base.UpdateParams(cfg)
	if old.BaseURL != cfg.BaseURL {
		w.mu.Lock()
		if w.c != nil {
			w.c.Close()
			w.c = nil
		}
		w.mu.Unlock()
	}
}

func (w *Web3) client(ctx context.Context) (*ethclient.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return w.c, nil
	}
	url := w.Config().BaseURL
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("web3: dialing %s: %w", url, err)
	}
	w.c = c
	return c, nil
}

// Close releases the client.
func (w *Web3) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		w.c.Close()
		w.c = nil
	}
}

func address(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	return common.HexToAddress(s), nil
}

// GetInfo implements explorer.Explorer returning balance and pending nonce. Concurrent calls for the same address
// share one request.
func (w *Web3) GetInfo(ctx context.Context, addr string) (types.Info, error) {
	a, err := address(addr)
	if err != nil {
		return types.Info{}, err
	}
	v, err, _ := w.sf.Do("info:"+strings.ToLower(addr), func() (interface{}, error) {
		c, err := w.client(ctx)
		if err != nil {
			return nil, err
		}
		bal, err := c.BalanceAt(ctx, a, nil)
		if err != nil {
			return nil, fmt.Errorf("web3: balance of %s: %w", addr, err)
		}
		nonce, err := c.PendingNonceAt(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("web3: nonce of %s: %w", addr, err)
		}
		return types.Info{Balance: bal.String(), Nonce: &nonce}, nil
	})
	if err != nil {
		return types.Info{}, err
	}
	return v.(types.Info), nil
}

// GetTokenBalance implements explorer.TokenBalanceGetter with an eth_call to balanceOf.
func (w *Web3) GetTokenBalance(ctx context.Context, addr, contract string) (string, error) {
	token, err := address(contract)
	if err != nil {
		return "", err
	}
	data, err := erc20.PackBalanceOf(addr)
	if err != nil {
		return "", err
	}
	c, err := w.client(ctx)
	if err != nil {
		return "", err
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("web3: balanceOf %s: %w", contract, err)
	}
	bal, err := erc20.UnpackBalance(out)
	if err != nil {
		return "", err
	}
	return bal.String(), nil
}

// GetTransaction implements explorer.Explorer. Mined transactions get status, block and fee from their receipt.
func (w *Web3) GetTransaction(ctx context.Context, addr, hash string) (*types.Transaction, error) {
	c, err := w.client(ctx)
	if err != nil {
		return nil, err
	}
	h := common.HexToHash(hash)
	gtx, pending, err := c.TransactionByHash(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, types.ErrNoTrx
	}
	if err != nil {
		return nil, fmt.Errorf("web3: tx %s: %w", hash, err)
	}

	owner := w.Owner()
	tx := &types.Transaction{
		WalletID: owner.ID(),
		Ticker:   owner.Ticker(),
		Hash:     gtx.Hash().Hex(),
		Value:    gtx.Value().String(),
		Status:   types.TxPending,
		Fee:      new(big.Int).Mul(gtx.GasPrice(), new(big.Int).SetUint64(gtx.Gas())).String(),
	}
	if from, errS := gtypes.Sender(gtypes.LatestSignerForChainID(gtx.ChainId()), gtx); errS == nil {
		tx.From = from.Hex()
	}
	if to := gtx.To(); to != nil {
		tx.To = to.Hex()
		if rcpt, amount, errT := erc20.UnpackTransfer(gtx.Data()); errT == nil {
			tx.Contract, tx.To, tx.Value = to.Hex(), rcpt.Hex(), amount.String()
		}
	}
	if len(gtx.Data()) > 0 && tx.Contract == "" {
		tx.Data = hexutil.Encode(gtx.Data())
	}
	tx.Incoming = strings.EqualFold(tx.To, addr)

	if !pending {
		if err = w.applyReceipt(ctx, c, gtx, tx); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func (w *Web3) applyReceipt(ctx context.Context, c *ethclient.Client, gtx *gtypes.Transaction,
	tx *types.Transaction) error {
	r, err := c.TransactionReceipt(ctx, gtx.Hash())
	if errors.Is(err, ethereum.NotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("web3: receipt %s: %w", tx.Hash, err)
	}
	if r.Status == gtypes.ReceiptStatusSuccessful {
		tx.Status = types.TxConfirmed
	} else {
		tx.Status = types.TxFailed
	}
	if r.BlockNumber != nil {
		tx.Block = r.BlockNumber.Uint64()
	}
	price := r.EffectiveGasPrice
	if price == nil {
		price = gtx.GasPrice()
	}
	tx.Fee = new(big.Int).Mul(price, new(big.Int).SetUint64(r.GasUsed)).String()
	return nil
}

// SendTransaction implements explorer.Explorer broadcasting a hex encoded signed transaction.
func (w *Web3) SendTransaction(ctx context.Context, raw string) (string, error) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("web3: raw transaction: %w", err)
	}
	var gtx gtypes.Transaction
	if err = gtx.UnmarshalBinary(b); err != nil {
		return "", fmt.Errorf("web3: raw transaction: %w", err)
	}
	c, err := w.client(ctx)
	if err != nil {
		return "", err
	}
	if err = c.SendTransaction(ctx, &gtx); err != nil {
		return "", fmt.Errorf("web3: sending %s: %w", gtx.Hash().Hex(), err)
	}
	return gtx.Hash().Hex(), nil
}

// CheckTransaction implements explorer.Explorer.
func (w *Web3) CheckTransaction(ctx context.Context, addr string, tx types.Transaction) (types.Transaction, error) {
	fresh, err := w.GetTransaction(ctx, addr, tx.Hash)
	if err != nil {
		return tx, err
	}
	tx.Status, tx.Block, tx.Fee = fresh.Status, fresh.Block, fresh.Fee
	return tx, nil
}

// GetSocketTransaction implements explorer.SocketTransactionGetter.
func (w *Web3) GetSocketTransaction(ctx context.Context, req explorer.SocketRequest) error {
	tx, err := w.GetTransaction(ctx, req.Address, req.Hash)
	if err != nil {
		return err
	}
	w.Owner().Notify(*tx)
	return nil
}

// EstimateFee implements explorer.FeeEstimator as suggested gas price times estimated gas.
func (w *Web3) EstimateFee(ctx context.Context, req explorer.FeeRequest) (string, error) {
	from, err := address(req.From)
	if err != nil {
		return "", err
	}
	to, err := address(req.To)
	if err != nil {
		return "", err
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		amount = new(big.Int)
	}
	msg := ethereum.CallMsg{From: from, To: &to, Value: amount}
	if req.Contract != "" {
		token, errA := address(req.Contract)
		if errA != nil {
			return "", errA
		}
		if msg.Data, err = erc20.PackTransfer(req.To, amount); err != nil {
			return "", err
		}
		msg.To, msg.Value = &token, nil
	}

	c, err := w.client(ctx)
	if err != nil {
		return "", err
	}
	price, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("web3: gas price: %w", err)
	}
	gas, err := c.EstimateGas(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("web3: estimating gas: %w", err)
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gas)).String(), nil
}
