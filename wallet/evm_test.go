package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/erc20"
	"github.com/tarancss/mcw/lib/explorer"
)

const (
	testEVMKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	recipient  = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

func decodeEVM(t *testing.T, raw string) *gtypes.Transaction {
	t.Helper()
	b, err := hexutil.Decode(raw)
	require.NoError(t, err)
	tx := new(gtypes.Transaction)
	require.NoError(t, tx.UnmarshalBinary(b))
	return tx
}

func transferAmount(t *testing.T, data []byte) *big.Int {
	t.Helper()
	to, amt, err := erc20.UnpackTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, ethAddr, to.Hex())
	return amt
}

func TestEVMKeys(t *testing.T) {
	s := NewEVM(1)
	addr, err := s.SetPrivateKey(testEVMKey)
	require.NoError(t, err)
	assert.Equal(t, ethAddr, addr)

	_, err = s.SetPrivateKey("nope")
	assert.Error(t, err)

	assert.NoError(t, s.ValidateAddress(recipient))
	assert.ErrorIs(t, s.ValidateAddress("0x1234"), ErrBadEVMAddress)
	assert.Equal(t, []string{"erc20"}, keys(s.Dependencies()))
}

func keys(m map[string]LoadFunc) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

func TestEVMCreateTransaction(t *testing.T) {
	c, _ := newCoin(t, ethConfig())
	ctx := context.Background()

	_, err := c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	assert.ErrorIs(t, err, ErrNoAddress)

	require.NoError(t, c.SetAddress(ethAddr))
	_, err = c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	assert.ErrorIs(t, err, ErrNoPrivateKey)

	require.NoError(t, c.SetPrivateKey(testEVMKey))
	assert.Equal(t, ethAddr, c.Address())

	// the nonce comes from the explorer when unknown
	nonce := uint64(3)
	fakeOf(t, c).set(func(f *fakeExplorer) { f.info.Nonce = &nonce })
	raw, err := c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	require.NoError(t, err)

	tx := decodeEVM(t, raw)
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, "20000000000", tx.GasPrice().String())
	assert.Equal(t, "500000000000000000", tx.Value().String())
	assert.Equal(t, recipient, tx.To().Hex())
	from, err := gtypes.Sender(gtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, ethAddr, from.Hex())

	// creating does not use the nonce up, sending does
	require.NotNil(t, c.Nonce())
	assert.Equal(t, uint64(3), *c.Nonce())
	_, err = c.SendTransaction(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), *c.Nonce())

	// an explicit fee sets the gas price
	raw, err = c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5", Fee: "0.00042"})
	require.NoError(t, err)
	tx = decodeEVM(t, raw)
	assert.Equal(t, uint64(4), tx.Nonce())
	assert.Equal(t, "20000000000", tx.GasPrice().String())

	_, err = c.CreateTransaction(ctx, TxArgs{To: "0xnothex", Amount: "0.5"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "to", ve.Field)

	_, err = c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "abc"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
}

func TestEVMNonceFailedSend(t *testing.T) {
	c, _ := newCoin(t, ethConfig())
	ctx := context.Background()
	require.NoError(t, c.SetPrivateKey(testEVMKey))
	nonce := uint64(3)
	f := fakeOf(t, c)
	f.set(func(f *fakeExplorer) {
		f.info.Nonce = &nonce
		f.sendErr = errors.New("node unavailable")
	})

	raw, err := c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	require.NoError(t, err)
	_, err = c.SendTransaction(ctx, raw)
	var re *ExplorerRequestError
	require.ErrorAs(t, err, &re)

	// the failed send leaves the nonce for the next transaction
	raw, err = c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), decodeEVM(t, raw).Nonce())

	f.set(func(f *fakeExplorer) { f.sendErr = nil })
	_, err = c.SendTransaction(ctx, raw)
	require.NoError(t, err)
	raw, err = c.CreateTransaction(ctx, TxArgs{To: recipient, Amount: "0.5"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), decodeEVM(t, raw).Nonce())

	// an older transaction sent late does not move the nonce back
	c.SetNonce(9)
	_, err = c.SendTransaction(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), *c.Nonce())
}

func TestEVMNonceUnknown(t *testing.T) {
	c, _ := newCoin(t, ethConfig())
	require.NoError(t, c.SetPrivateKey(testEVMKey))
	_, err := c.CreateTransaction(context.Background(), TxArgs{To: recipient, Amount: "1"})
	assert.ErrorIs(t, err, ErrNoNonce)
}

func TestEVMFee(t *testing.T) {
	c, _ := newCoin(t, ethConfig())
	ctx := context.Background()

	fee, err := c.GetFee(ctx, TxArgs{})
	require.NoError(t, err)
	assert.Equal(t, "0.00042", fee)

	s := c.Strategy().(*EVM)
	f, err := s.Fee(ctx, c, Transfer{Contract: usdt})
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000", f.String())

	// without a configured gas price the explorer estimate is used
	cfg := ethConfig()
	cfg.FeeData = nil
	c, _ = newCoin(t, cfg)
	_, err = c.GetFee(ctx, TxArgs{})
	assert.ErrorIs(t, err, ErrNoGasPrice)

	cfg.Explorers[0].ClassName = estimatorClass
	c, _ = newCoin(t, cfg)
	fee, err = c.GetFee(ctx, TxArgs{})
	require.NoError(t, err)
	assert.Equal(t, "0.000021", fee)
}

const estimatorClass = "EstimatorExplorer"

// estimator quotes one gwei per gas.
type estimator struct {
	fakeExplorer
}

func (*estimator) EstimateFee(context.Context, explorer.FeeRequest) (string, error) {
	return "21000000000000", nil
}

func init() {
	explorer.Register(estimatorClass, func(cfg config.ExplorerConfig, o explorer.Owner, d explorer.Deps) (explorer.Explorer, error) {
		e := &estimator{}
		e.Init(estimatorClass, cfg, o, d.Log)
		return e, nil
	})
}
