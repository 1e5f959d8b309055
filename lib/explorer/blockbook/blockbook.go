// Package blockbook implements an explorer over the Blockbook v2 REST API, the indexer used by UTXO coins.
package blockbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/types"
)

// ClassName is the registry name of the explorer.
const ClassName = "BlockbookV2Explorer"

const (
	// DefaultPageSize is used when the query and the configuration give no limit.
	DefaultPageSize = 50
	// FinalConfirmations is the depth after which transactions are cached.
	FinalConfirmations = 6
)

// ErrResponse wraps error messages returned by the server.
var ErrResponse = errors.New("blockbook: server error")

func init() {
	explorer.Register(ClassName, func(cfg config.ExplorerConfig, owner explorer.Owner,
		deps explorer.Deps) (explorer.Explorer, error) {
		return New(cfg, owner, deps)
	})
}

// Blockbook is a Blockbook v2 client. Final transactions are cached.
type Blockbook struct {
	explorer.Base
	http  *http.Client
	cache *bigcache.BigCache
}

// New returns an explorer for the Blockbook instance at cfg.BaseURL.
func New(cfg config.ExplorerConfig, owner explorer.Owner, deps explorer.Deps) (*Blockbook, error) {
	cc := bigcache.DefaultConfig(30 * time.Minute)
	cc.Shards = 16
	cc.MaxEntriesInWindow = 1024
	cc.MaxEntrySize = 2048
	cache, err := bigcache.New(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("blockbook: cache: %w", err)
	}
	b := &Blockbook{http: deps.HTTP, cache: cache}
	if b.http == nil {
		b.http = http.DefaultClient
	}
	b.Init(ClassName, cfg, owner, deps.Log)
	return b, nil
}

// CanPaginate implements explorer.Explorer.
func (b *Blockbook) CanPaginate() bool { return true }

// Close releases the transaction cache.
func (b *Blockbook) Close() {
	_ = b.cache.Close()
}

type vin struct {
	Addresses []string `json:"addresses"`
	Value     string   `json:"value"`
}

type vout struct {
	N         uint32   `json:"n"`
	Addresses []string `json:"addresses"`
	Value     string   `json:"value"`
	Hex       string   `json:"hex"`
}

type tokenTransfer struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Contract string `json:"contract"`
	Token    string `json:"token"` // blockbook before 0.4
	Value    string `json:"value"`
}

func (t tokenTransfer) contract() string {
	if t.Contract != "" {
		return t.Contract
	}
	return t.Token
}

type tx struct {
	TxID           string          `json:"txid"`
	Vin            []vin           `json:"vin"`
	Vout           []vout          `json:"vout"`
	BlockHeight    int64           `json:"blockHeight"`
	Confirmations  int64           `json:"confirmations"`
	BlockTime      int64           `json:"blockTime"`
	Fees           string          `json:"fees"`
	TokenTransfers []tokenTransfer `json:"tokenTransfers"`
	EthereumData   *struct {
		Status int `json:"status"` // 1 ok, 0 failed, -1 pending
	} `json:"ethereumSpecific"`
}

type address struct {
	Page         int    `json:"page"`
	TotalPages   int    `json:"totalPages"`
	Balance      string `json:"balance"`
	Unconfirmed  string `json:"unconfirmedBalance"`
	Nonce        string `json:"nonce"`
	Transactions []tx   `json:"transactions"`
}

type utxo struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Value         string `json:"value"`
	Height        int64  `json:"height"`
	Confirmations int64  `json:"confirmations"`
}

// do decodes the JSON answer of a GET or POST request to path into res.
func (b *Blockbook) do(ctx context.Context, method, path string, body io.Reader, res interface{}) error {
	u := strings.TrimRight(b.Config().BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("blockbook: %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("blockbook: %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			if strings.Contains(strings.ToLower(e.Error), "not found") {
				return types.ErrNoTrx
			}
			return fmt.Errorf("%w: %s", ErrResponse, e.Error)
		}
		return fmt.Errorf("%w: %s returned %d", ErrResponse, path, resp.StatusCode)
	}
	if err = json.Unmarshal(data, res); err != nil {
		return fmt.Errorf("blockbook: decoding %s: %w", path, err)
	}
	return nil
}

// GetInfo implements explorer.Explorer. The balance includes unconfirmed funds.
func (b *Blockbook) GetInfo(ctx context.Context, addr string) (types.Info, error) {
	if addr == "" {
		return types.Info{}, explorer.ErrNoAddress
	}
	var a address
	if err := b.do(ctx, http.MethodGet, "/api/v2/address/"+url.PathEscape(addr)+"?details=basic", nil, &a); err != nil {
		return types.Info{}, err
	}
	bal, ok := new(big.Int).SetString(a.Balance, 10)
	if !ok {
		return types.Info{}, fmt.Errorf("%w: bad balance %q", ErrResponse, a.Balance)
	}
	if u, ok := new(big.Int).SetString(a.Unconfirmed, 10); ok {
		bal.Add(bal, u)
	}
	info := types.Info{Balance: bal.String()}
	if a.Nonce != "" {
		if n, err := strconv.ParseUint(a.Nonce, 10, 64); err == nil {
			info.Nonce = &n
		}
	}
	return info, nil
}

func (b *Blockbook) pageSize(limit int) int {
	if limit > 0 {
		return limit
	}
	if l := b.TxLimit(); l > 0 {
		return l
	}
	return DefaultPageSize
}

// GetTransactions implements explorer.Explorer. Offset is rounded down to a page boundary.
func (b *Blockbook) GetTransactions(ctx context.Context, q explorer.Query) ([]types.Transaction, error) {
	if q.Address == "" {
		return nil, explorer.ErrNoAddress
	}
	size := b.pageSize(q.Limit)
	v := url.Values{}
	v.Set("details", "txs")
	v.Set("page", strconv.Itoa(q.Offset/size+1))
	v.Set("pageSize", strconv.Itoa(size))
	if q.Contract != "" {
		v.Set("contract", q.Contract)
	}
	var a address
	if err := b.do(ctx, http.MethodGet, "/api/v2/address/"+url.PathEscape(q.Address)+"?"+v.Encode(), nil,
		&a); err != nil {
		return nil, err
	}
	txs := make([]types.Transaction, 0, len(a.Transactions))
	for i := range a.Transactions {
		if q.Contract != "" {
			txs = append(txs, b.tokenTxs(q.Address, q.Contract, &a.Transactions[i])...)
			continue
		}
		txs = append(txs, b.convert(q.Address, &a.Transactions[i]))
	}
	return txs, nil
}

func (b *Blockbook) fetch(ctx context.Context, hash string) (*tx, error) {
	if data, err := b.cache.Get(hash); err == nil {
		var t tx
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}
	var t tx
	if err := b.do(ctx, http.MethodGet, "/api/v2/tx/"+url.PathEscape(hash), nil, &t); err != nil {
		return nil, err
	}
	if t.Confirmations >= FinalConfirmations {
		if data, err := json.Marshal(&t); err == nil {
			if err = b.cache.Set(hash, data); err != nil {
				b.Log().Debugw("caching tx", "txid", hash, "err", err)
			}
		}
	}
	return &t, nil
}

// GetTransaction implements explorer.Explorer.
func (b *Blockbook) GetTransaction(ctx context.Context, addr, hash string) (*types.Transaction, error) {
	t, err := b.fetch(ctx, hash)
	if err != nil {
		return nil, err
	}
	res := b.convert(addr, t)
	return &res, nil
}

// GetUnspentOutputs implements explorer.Explorer. Blockbook does not return scripts, so every output gets
// scriptPubKey.
func (b *Blockbook) GetUnspentOutputs(ctx context.Context, addr, scriptPubKey string) ([]types.UTXO, error) {
	if addr == "" {
		return nil, explorer.ErrNoAddress
	}
	var us []utxo
	if err := b.do(ctx, http.MethodGet, "/api/v2/utxo/"+url.PathEscape(addr), nil, &us); err != nil {
		return nil, err
	}
	res := make([]types.UTXO, 0, len(us))
	for _, u := range us {
		res = append(res, types.UTXO{
			TxID: u.TxID, Vout: u.Vout, Value: u.Value, Script: scriptPubKey,
			Height: u.Height, Confirmations: u.Confirmations,
		})
	}
	return res, nil
}

// SendTransaction implements explorer.Explorer.
func (b *Blockbook) SendTransaction(ctx context.Context, raw string) (string, error) {
	var res struct {
		Result string `json:"result"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/v2/sendtx/", strings.NewReader(raw), &res); err != nil {
		return "", err
	}
	return res.Result, nil
}

// CheckTransaction implements explorer.Explorer refreshing status, block and confirmations.
func (b *Blockbook) CheckTransaction(ctx context.Context, addr string, t types.Transaction) (types.Transaction,
	error) {
	fresh, err := b.GetTransaction(ctx, addr, t.Hash)
	if err != nil {
		return t, err
	}
	t.Status, t.Block, t.Confirmations, t.Timestamp = fresh.Status, fresh.Block, fresh.Confirmations, fresh.Timestamp
	if t.Fee == "" {
		t.Fee = fresh.Fee
	}
	return t, nil
}

// GetSocketTransaction implements explorer.SocketTransactionGetter.
func (b *Blockbook) GetSocketTransaction(ctx context.Context, req explorer.SocketRequest) error {
	t, err := b.GetTransaction(ctx, req.Address, req.Hash)
	if err != nil {
		return err
	}
	b.Owner().Notify(*t)
	return nil
}

// GetTokenBalance implements explorer.TokenBalanceGetter for Blockbook instances indexing EVM chains.
func (b *Blockbook) GetTokenBalance(ctx context.Context, addr, contract string) (string, error) {
	var a struct {
		Tokens []struct {
			Contract string `json:"contract"`
			Balance  string `json:"balance"`
		} `json:"tokens"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/v2/address/"+url.PathEscape(addr)+"?details=tokenBalances", nil,
		&a); err != nil {
		return "", err
	}
	for _, t := range a.Tokens {
		if strings.EqualFold(t.Contract, contract) {
			return t.Balance, nil
		}
	}
	return "0", nil
}

func status(t *tx) types.TxStatus {
	if t.EthereumData != nil && t.EthereumData.Status == 0 {
		return types.TxFailed
	}
	if t.Confirmations > 0 {
		return types.TxConfirmed
	}
	return types.TxPending
}

func has(addrs []string, addr string) bool {
	for _, a := range addrs {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}

func sum(acc *big.Int, s string) {
	if v, ok := new(big.Int).SetString(s, 10); ok {
		acc.Add(acc, v)
	}
}

// convert builds the view of t from addr. Outgoing transfers are valued by what left the wallet minus change and fee.
func (b *Blockbook) convert(addr string, t *tx) types.Transaction {
	owner := b.Owner()
	res := types.Transaction{
		WalletID:      owner.ID(),
		Ticker:        owner.Ticker(),
		Hash:          t.TxID,
		Fee:           t.Fees,
		Status:        status(t),
		Confirmations: t.Confirmations,
		Timestamp:     t.BlockTime,
	}
	if t.BlockHeight > 0 {
		res.Block = uint64(t.BlockHeight)
	}

	spent, received := new(big.Int), new(big.Int)
	for _, in := range t.Vin {
		if has(in.Addresses, addr) {
			sum(spent, in.Value)
		} else if res.From == "" && len(in.Addresses) > 0 {
			res.From = in.Addresses[0]
		}
	}
	for _, out := range t.Vout {
		if has(out.Addresses, addr) {
			sum(received, out.Value)
		} else if res.To == "" && len(out.Addresses) > 0 {
			res.To = out.Addresses[0]
		}
	}

	if spent.Sign() > 0 {
		value := new(big.Int).Sub(spent, received)
		if fee, ok := new(big.Int).SetString(t.Fees, 10); ok {
			value.Sub(value, fee)
		}
		if value.Sign() < 0 {
			value.SetInt64(0)
		}
		res.From, res.Value = addr, value.String()
		if res.To == "" {
			res.To = addr
		}
		return res
	}
	res.To, res.Value, res.Incoming = addr, received.String(), true
	return res
}

// tokenTxs returns the transfers of contract in t involving addr.
func (b *Blockbook) tokenTxs(addr, contract string, t *tx) []types.Transaction {
	var res []types.Transaction
	for _, tt := range t.TokenTransfers {
		if !strings.EqualFold(tt.contract(), contract) {
			continue
		}
		if !strings.EqualFold(tt.From, addr) && !strings.EqualFold(tt.To, addr) {
			continue
		}
		res = append(res, types.Transaction{
			WalletID:      b.Owner().ID(),
			Ticker:        b.Owner().Ticker(),
			Hash:          t.TxID,
			Block:         uint64(max(t.BlockHeight, 0)),
			From:          tt.From,
			To:            tt.To,
			Value:         tt.Value,
			Fee:           t.Fees,
			Contract:      tt.contract(),
			Incoming:      strings.EqualFold(tt.To, addr),
			Status:        status(t),
			Confirmations: t.Confirmations,
			Timestamp:     t.BlockTime,
		})
	}
	return res
}
