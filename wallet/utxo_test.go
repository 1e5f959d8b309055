package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/mcw/lib/types"
)

func wif(t *testing.T, params *chaincfg.Params) (*btcutil.WIF, string) {
	t.Helper()
	k, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	w, err := btcutil.NewWIF(k, params, true)
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(k.PubKey().SerializeCompressed()), params)
	require.NoError(t, err)
	return w, addr.EncodeAddress()
}

func TestUTXOKeys(t *testing.T) {
	btc := NewUTXO(&chaincfg.MainNetParams)
	w, exp := wif(t, &chaincfg.MainNetParams)
	addr, err := btc.SetPrivateKey(w.String())
	require.NoError(t, err)
	assert.Equal(t, exp, addr)
	assert.True(t, strings.HasPrefix(addr, "bc1q"))

	// raw hex keys derive the same address
	hexKey := hex.EncodeToString(w.PrivKey.Serialize())
	addr, err = NewUTXO(&chaincfg.MainNetParams).SetPrivateKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, exp, addr)

	ltc := NewUTXO(&LitecoinParams)
	lw, lexp := wif(t, &LitecoinParams)
	addr, err = ltc.SetPrivateKey(lw.String())
	require.NoError(t, err)
	assert.Equal(t, lexp, addr)
	assert.True(t, strings.HasPrefix(addr, "ltc1q"))

	// keys of another network are refused
	_, err = ltc.SetPrivateKey(w.String())
	assert.Error(t, err)
	_, err = ltc.SetPrivateKey("garbage")
	var bad hex.InvalidByteError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, hex.InvalidByteError('g'), bad)
	_, err = ltc.SetPrivateKey(strings.Repeat("ab", 31))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "31 bytes")

	assert.NoError(t, btc.ValidateAddress(exp))
	assert.ErrorIs(t, ltc.ValidateAddress(exp), ErrBadUTXOAddress)
	assert.NoError(t, ltc.ValidateAddress(lexp))

	script, err := btc.ScriptPubKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script, "0014"))
	_, err = NewUTXO(&chaincfg.MainNetParams).ScriptPubKey()
	assert.ErrorIs(t, err, ErrNoPrivateKey)
}

func utxoCoin(t *testing.T) (*Coin, *fakeExplorer) {
	t.Helper()
	cfg := btcConfig()
	cfg.FeeData = map[string]string{"feePerByte": "10", "fee": "1000"}
	c, _ := newCoin(t, cfg)
	w, _ := wif(t, &chaincfg.MainNetParams)
	require.NoError(t, c.SetPrivateKey(w.String()))
	f := fakeOf(t, c)
	f.set(func(f *fakeExplorer) {
		f.utxos = []types.UTXO{
			{TxID: strings.Repeat("11", 32), Vout: 0, Value: "30000"},
			{TxID: strings.Repeat("22", 32), Vout: 1, Value: "50000"},
			{TxID: strings.Repeat("33", 32), Vout: 0, Value: "bad"},
		}
	})
	return c, f
}

func decodeUTXO(t *testing.T, raw string) *wire.MsgTx {
	t.Helper()
	b, err := hex.DecodeString(raw)
	require.NoError(t, err)
	tx := wire.NewMsgTx(2)
	require.NoError(t, tx.Deserialize(bytes.NewReader(b)))
	return tx
}

func TestUTXOCreateTransaction(t *testing.T) {
	c, _ := utxoCoin(t)
	_, to := wif(t, &chaincfg.MainNetParams)
	own, err := c.Strategy().(ScriptPubKeyProvider).ScriptPubKey()
	require.NoError(t, err)
	ownScript, _ := hex.DecodeString(own)

	raw, err := c.CreateTransaction(context.Background(), TxArgs{To: to, Amount: "0.0004"})
	require.NoError(t, err)
	tx := decodeUTXO(t, raw)

	// the largest output covers 40000 plus 10 sat/vbyte for one input and two outputs
	require.Len(t, tx.TxIn, 1)
	assert.Equal(t, strings.Repeat("22", 32), tx.TxIn[0].PreviousOutPoint.Hash.String())
	assert.Equal(t, uint32(1), tx.TxIn[0].PreviousOutPoint.Index)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, int64(40000), tx.TxOut[0].Value)
	assert.Equal(t, int64(50000-40000-1410), tx.TxOut[1].Value)
	assert.Equal(t, ownScript, tx.TxOut[1].PkScript)

	// the witness spends the input
	prev := wire.NewTxOut(50000, ownScript)
	fetcher := txscript.NewCannedPrevOutputFetcher(prev.PkScript, prev.Value)
	vm, err := txscript.NewEngine(prev.PkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), prev.Value, fetcher)
	require.NoError(t, err)
	assert.NoError(t, vm.Execute())
}

func TestUTXOSelection(t *testing.T) {
	c, _ := utxoCoin(t)
	_, to := wif(t, &chaincfg.MainNetParams)
	ctx := context.Background()

	// both outputs are needed
	raw, err := c.CreateTransaction(ctx, TxArgs{To: to, Amount: "0.0006"})
	require.NoError(t, err)
	tx := decodeUTXO(t, raw)
	require.Len(t, tx.TxIn, 2)
	assert.Equal(t, int64(80000-60000-2090), tx.TxOut[1].Value)

	// change below the dust limit goes to the fee
	raw, err = c.CreateTransaction(ctx, TxArgs{To: to, Amount: "0.0007791"})
	require.NoError(t, err)
	tx = decodeUTXO(t, raw)
	require.Len(t, tx.TxOut, 1)

	_, err = c.CreateTransaction(ctx, TxArgs{To: to, Amount: "0.0008"})
	assert.ErrorIs(t, err, ErrInsufficient)

	// a memo adds a data output
	raw, err = c.CreateTransaction(ctx, TxArgs{To: to, Amount: "0.0001", Memo: "hello"})
	require.NoError(t, err)
	tx = decodeUTXO(t, raw)
	require.Len(t, tx.TxOut, 3)
	assert.Equal(t, int64(0), tx.TxOut[2].Value)
	assert.Equal(t, txscript.NullDataTy, txscript.GetScriptClass(tx.TxOut[2].PkScript))

	_, err = c.CreateTransaction(ctx, TxArgs{To: "ltc1qnotbitcoin", Amount: "0.0001"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestUTXOFee(t *testing.T) {
	c, _ := utxoCoin(t)
	ctx := context.Background()
	_, to := wif(t, &chaincfg.MainNetParams)

	fee, err := c.GetFee(ctx, TxArgs{})
	require.NoError(t, err)
	assert.Equal(t, "0.0000141", fee)

	fee, err = c.GetFee(ctx, TxArgs{To: to, Amount: "0.0006"})
	require.NoError(t, err)
	assert.Equal(t, "0.0000209", fee)

	fee, err = c.GetFee(ctx, TxArgs{To: to, Amount: "0.0001", Fee: "0.00005"})
	require.NoError(t, err)
	assert.Equal(t, "0.00005", fee)
}
