package web3

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/erc20"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/types"
)

type owner struct {
	mu  sync.Mutex
	got []types.Transaction
}

func (*owner) ID() string      { return "ETH" }
func (*owner) Ticker() string  { return "ETH" }
func (*owner) Decimal() int    { return 18 }
func (*owner) Network() string { return "mainnet" }
func (*owner) Address() string { return "" }
func (o *owner) Notify(tx types.Transaction) {
	o.mu.Lock()
	o.got = append(o.got, tx)
	o.mu.Unlock()
}

// node is a minimal JSON-RPC endpoint answering from a method table.
type node struct {
	t      *testing.T
	mu     sync.Mutex
	calls  map[string]int
	txs    map[string]interface{}
	rcpts  map[string]interface{}
	result map[string]interface{}
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		n.t.Errorf("bad request: %v", err)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	var res interface{}
	switch req.Method {
	case "eth_getTransactionByHash", "eth_getTransactionReceipt":
		var h string
		_ = json.Unmarshal(req.Params[0], &h)
		if req.Method == "eth_getTransactionByHash" {
			res = n.txs[strings.ToLower(h)]
		} else {
			res = n.rcpts[strings.ToLower(h)]
		}
	default:
		res = n.result[req.Method]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": res})
}

func (n *node) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func newNode(t *testing.T) *node {
	return &node{
		t:     t,
		calls: make(map[string]int),
		txs:   make(map[string]interface{}),
		rcpts: make(map[string]interface{}),
		result: map[string]interface{}{
			"eth_getBalance":          "0x64",
			"eth_getTransactionCount": "0x3",
			"eth_gasPrice":            "0xa",
			"eth_estimateGas":         "0x5208",
			"eth_call":                hexutil.Encode(common.LeftPadBytes(big.NewInt(42).Bytes(), 32)),
		},
	}
}

// mined adds tx to the node, mined in block 16 when withReceipt is set.
func (n *node) mined(t *testing.T, tx *gtypes.Transaction, from common.Address, withReceipt bool) {
	b, err := tx.MarshalJSON()
	require.NoError(t, err)
	m := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(b, &m))
	m["from"] = from.Hex()
	h := strings.ToLower(tx.Hash().Hex())
	if withReceipt {
		m["blockHash"] = common.HexToHash("0x01").Hex()
		m["blockNumber"] = "0x10"
		m["transactionIndex"] = "0x0"
		r := &gtypes.Receipt{
			Status: gtypes.ReceiptStatusSuccessful, CumulativeGasUsed: 21000, GasUsed: 21000,
			EffectiveGasPrice: big.NewInt(10), BlockNumber: big.NewInt(16), TxHash: tx.Hash(),
			Logs: []*gtypes.Log{},
		}
		rb, err := r.MarshalJSON()
		require.NoError(t, err)
		n.rcpts[h] = json.RawMessage(rb)
	}
	n.txs[h] = m
}

func signed(t *testing.T, to common.Address, value int64, data []byte) (*gtypes.Transaction, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := gtypes.MustSignNewTx(key, gtypes.LatestSignerForChainID(big.NewInt(1)), &gtypes.LegacyTx{
		Nonce: 1, GasPrice: big.NewInt(10), Gas: 60000, To: &to, Value: big.NewInt(value), Data: data,
	})
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func setup(t *testing.T) (*Web3, *node, *owner) {
	n := newNode(t)
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	o := &owner{}
	w := New(config.ExplorerConfig{ClassName: ClassName, BaseURL: srv.URL}, o, explorer.Deps{})
	t.Cleanup(w.Close)
	return w, n, o
}

func TestGetInfo(t *testing.T) {
	w, _, _ := setup(t)
	info, err := w.GetInfo(context.Background(), "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f")
	require.NoError(t, err)
	assert.Equal(t, "100", info.Balance)
	require.NotNil(t, info.Nonce)
	assert.Equal(t, uint64(3), *info.Nonce)

	_, err = w.GetInfo(context.Background(), "0x1234")
	assert.ErrorIs(t, err, ErrBadAddress)
}

func TestGetTokenBalance(t *testing.T) {
	w, n, _ := setup(t)
	bal, err := w.GetTokenBalance(context.Background(), "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f",
		"0xdAC17F958D2ee523a2206206994597C13D831ec7")
	require.NoError(t, err)
	assert.Equal(t, "42", bal)
	assert.Equal(t, 1, n.count("eth_call"))
}

func TestGetTransaction(t *testing.T) {
	w, n, o := setup(t)
	to := common.HexToAddress("0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f")
	tx, from := signed(t, to, 5, nil)
	n.mined(t, tx, from, true)

	got, err := w.GetTransaction(context.Background(), to.Hex(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, got.Status)
	assert.Equal(t, uint64(16), got.Block)
	assert.Equal(t, "210000", got.Fee)
	assert.Equal(t, "5", got.Value)
	assert.Equal(t, from.Hex(), got.From)
	assert.True(t, got.Incoming)
	assert.Equal(t, "ETH", got.WalletID)

	_, err = w.GetTransaction(context.Background(), to.Hex(), common.HexToHash("0xdead").Hex())
	assert.ErrorIs(t, err, types.ErrNoTrx)

	require.NoError(t, w.GetSocketTransaction(context.Background(),
		explorer.SocketRequest{Address: to.Hex(), Hash: tx.Hash().Hex()}))
	require.Len(t, o.got, 1)
	assert.Equal(t, tx.Hash().Hex(), o.got[0].Hash)
}

func TestGetTokenTransaction(t *testing.T) {
	w, n, _ := setup(t)
	token := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	rcpt := "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f"
	data, err := erc20.PackTransfer(rcpt, big.NewInt(1500000))
	require.NoError(t, err)
	tx, from := signed(t, token, 0, data)
	n.mined(t, tx, from, false)

	got, err := w.GetTransaction(context.Background(), from.Hex(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, types.TxPending, got.Status)
	assert.Equal(t, token.Hex(), got.Contract)
	assert.Equal(t, common.HexToAddress(rcpt).Hex(), got.To)
	assert.Equal(t, "1500000", got.Value)
	assert.False(t, got.Incoming)
	assert.Zero(t, n.count("eth_getTransactionReceipt"))

	checked, err := w.CheckTransaction(context.Background(), from.Hex(), types.Transaction{Hash: tx.Hash().Hex()})
	require.NoError(t, err)
	assert.Equal(t, types.TxPending, checked.Status)
}

func TestSendTransaction(t *testing.T) {
	w, n, _ := setup(t)
	tx, _ := signed(t, common.HexToAddress("0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f"), 5, nil)
	n.result["eth_sendRawTransaction"] = tx.Hash().Hex()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	hash, err := w.SendTransaction(context.Background(), hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)

	_, err = w.SendTransaction(context.Background(), "zz")
	assert.Error(t, err)
}

func TestEstimateFee(t *testing.T) {
	w, _, _ := setup(t)
	fee, err := w.EstimateFee(context.Background(), explorer.FeeRequest{
		From:   "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f",
		To:     "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4",
		Amount: "1000",
	})
	require.NoError(t, err)
	assert.Equal(t, "210000", fee)

	_, err = w.EstimateFee(context.Background(), explorer.FeeRequest{From: "x", To: "y"})
	assert.ErrorIs(t, err, ErrBadAddress)
}

func TestRegistered(t *testing.T) {
	e, err := explorer.New(ClassName, config.ExplorerConfig{BaseURL: "http://localhost:1"}, &owner{}, explorer.Deps{})
	require.NoError(t, err)
	assert.Equal(t, ClassName, e.Name())
	assert.Implements(t, (*explorer.FeeEstimator)(nil), e)
	assert.Implements(t, (*explorer.TokenBalanceGetter)(nil), e)
}
