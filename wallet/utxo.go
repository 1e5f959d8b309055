package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/tarancss/mcw/lib/types"
)

// DustLimit is the smallest change output created when the coin sets no unspendable balance.
const DustLimit = 546

// ErrBadUTXOAddress is returned for addresses that do not belong to the network.
var ErrBadUTXOAddress = errors.New("wallet: address is not for this network")

// LitecoinParams are the Litecoin main network parameters.
var LitecoinParams = litecoin()

func litecoin() chaincfg.Params {
	p := chaincfg.MainNetParams
	p.Name = "litecoin"
	p.Net = wire.BitcoinNet(0xdbb6c0fb)
	p.DefaultPort = "9333"
	p.DNSSeeds = nil
	p.Bech32HRPSegwit = "ltc"
	p.PubKeyHashAddrID = 0x30
	p.ScriptHashAddrID = 0x32
	p.PrivateKeyID = 0xb0
	p.HDPrivateKeyID = [4]byte{0x01, 0x9d, 0x9c, 0xfe}
	p.HDPublicKeyID = [4]byte{0x01, 0x9d, 0xa4, 0x62}
	p.HDCoinType = 2
	return p
}

func init() {
	if err := chaincfg.Register(&LitecoinParams); err != nil {
		panic(err)
	}
}

// UTXO is the strategy of Bitcoin like chains: WIF keys, native segwit (P2WPKH) addresses and transactions funded
// from the unspent outputs reported by the explorer.
type UTXO struct {
	mu     sync.RWMutex
	params *chaincfg.Params
	key    *btcec.PrivateKey
	addr   btcutil.Address
	script []byte
}

// NewUTXO returns the strategy for the network.
func NewUTXO(params *chaincfg.Params) *UTXO {
	return &UTXO{params: params}
}

// Kind implements Strategy.
func (*UTXO) Kind() string { return "utxo" }

// Params returns the network parameters.
func (u *UTXO) Params() *chaincfg.Params { return u.params }

// SetPrivateKey implements KeyLoader for WIF or 32 byte hex keys.
func (u *UTXO) SetPrivateKey(key string) (string, error) {
	var priv *btcec.PrivateKey
	if wif, err := btcutil.DecodeWIF(key); err == nil {
		if !wif.IsForNet(u.params) {
			return "", fmt.Errorf("wallet: key is not for %s", u.params.Name)
		}
		priv = wif.PrivKey
	} else {
		b, herr := hex.DecodeString(key)
		if herr != nil {
			return "", fmt.Errorf("wallet: bad private key: not WIF (%v) nor hex: %w", err, herr)
		}
		if len(b) != 32 {
			return "", fmt.Errorf("wallet: bad private key: %d bytes, want 32", len(b))
		}
		priv, _ = btcec.PrivKeyFromBytes(b)
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), u.params)
	if err != nil {
		return "", err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	u.key, u.addr, u.script = priv, addr, script
	u.mu.Unlock()
	return addr.EncodeAddress(), nil
}

// ValidateAddress implements AddressValidator.
func (u *UTXO) ValidateAddress(addr string) error {
	a, err := btcutil.DecodeAddress(addr, u.params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadUTXOAddress, err)
	}
	if !a.IsForNet(u.params) {
		return fmt.Errorf("%w: %s", ErrBadUTXOAddress, addr)
	}
	return nil
}

// ScriptPubKey implements ScriptPubKeyProvider.
func (u *UTXO) ScriptPubKey() (string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.script == nil {
		return "", ErrNoPrivateKey
	}
	return hex.EncodeToString(u.script), nil
}

// vsize estimates the virtual size of a P2WPKH transaction.
func vsize(inputs, outputs int) int64 {
	return int64(11 + 68*inputs + 31*outputs)
}

// feeFor is the fee of a transaction with the given inputs and outputs: feePerByte times its size, or the flat "fee"
// of the schedule when no rate is set.
func feeFor(c *Coin, inputs, outputs int) *big.Int {
	rate := c.feeValue("feePerByte")
	if rate.Sign() == 0 {
		return c.feeValue("fee")
	}
	return rate.Mul(rate, big.NewInt(vsize(inputs, outputs)))
}

type coin struct {
	out   types.UTXO
	value int64
}

func spendable(us []types.UTXO) []coin {
	cs := make([]coin, 0, len(us))
	for _, u := range us {
		v, err := strconv.ParseInt(u.Value, 10, 64)
		if err != nil || v <= 0 {
			continue
		}
		cs = append(cs, coin{out: u, value: v})
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].value > cs[j].value })
	return cs
}

// selection picks the largest outputs until they cover amount plus fee. It returns the inputs, their total and the fee.
func selection(c *Coin, cs []coin, amt *big.Int, fixed *big.Int, outputs int) ([]coin, int64, int64, error) {
	var total int64
	for i := range cs {
		total += cs[i].value
		fee := fixed
		if fee == nil {
			fee = feeFor(c, i+1, outputs)
		}
		if !fee.IsInt64() {
			return nil, 0, 0, ErrInsufficient
		}
		need := new(big.Int).Add(amt, fee)
		if need.IsInt64() && total >= need.Int64() {
			return cs[:i+1], total, fee.Int64(), nil
		}
	}
	return nil, 0, 0, ErrInsufficient
}

// Fee implements FeeCalculator. With an amount the inputs needed are selected from the unspent outputs; otherwise a
// one input transaction is assumed.
func (u *UTXO) Fee(ctx context.Context, c *Coin, t Transfer) (*big.Int, error) {
	if t.Fee != nil {
		return new(big.Int).Set(t.Fee), nil
	}
	if t.Amount == nil || t.Amount.Sign() == 0 {
		return feeFor(c, 1, 2), nil
	}
	us, err := c.GetUnspentOutputs(ctx)
	if err != nil {
		return feeFor(c, 1, 2), nil
	}
	_, _, fee, err := selection(c, spendable(us), t.Amount, nil, 2)
	if err != nil {
		return feeFor(c, 1, 2), nil
	}
	return big.NewInt(fee), nil
}

// CreateTransaction implements TxCreator. Change below the dust limit is left to the miners and a memo becomes an
// OP_RETURN output.
func (u *UTXO) CreateTransaction(ctx context.Context, c *Coin, t Transfer) (string, error) {
	u.mu.RLock()
	key, own := u.key, u.script
	u.mu.RUnlock()
	if key == nil {
		return "", ErrNoPrivateKey
	}
	to, err := btcutil.DecodeAddress(t.To, u.params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadUTXOAddress, err)
	}
	toScript, err := txscript.PayToAddrScript(to)
	if err != nil {
		return "", err
	}
	if !t.Amount.IsInt64() || t.Amount.Sign() <= 0 {
		return "", invalid("amount", t.Amount.String())
	}

	us, err := c.GetUnspentOutputs(ctx)
	if err != nil {
		return "", err
	}
	outputs := 2
	if t.Memo != "" {
		outputs++
	}
	inputs, total, fee, err := selection(c, spendable(us), t.Amount, t.Fee, outputs)
	if err != nil {
		return "", err
	}

	dust := int64(DustLimit)
	if d, err := strconv.ParseInt(c.UnspendableBalance(), 10, 64); err == nil && d > 0 {
		dust = d
	}
	change := total - t.Amount.Int64() - fee

	msg := wire.NewMsgTx(2)
	prev := make(map[wire.OutPoint]*wire.TxOut, len(inputs))
	for _, in := range inputs {
		h, err := chainhash.NewHashFromStr(in.out.TxID)
		if err != nil {
			return "", fmt.Errorf("wallet: bad outpoint %s: %w", in.out.TxID, err)
		}
		op := wire.NewOutPoint(h, in.out.Vout)
		msg.AddTxIn(wire.NewTxIn(op, nil, nil))
		prev[*op] = wire.NewTxOut(in.value, own)
	}
	msg.AddTxOut(wire.NewTxOut(t.Amount.Int64(), toScript))
	if change >= dust {
		msg.AddTxOut(wire.NewTxOut(change, own))
	}
	if t.Memo != "" {
		script, err := txscript.NullDataScript([]byte(t.Memo))
		if err != nil {
			return "", &ValidationError{Field: "memo", Msg: "too long", Err: err}
		}
		msg.AddTxOut(wire.NewTxOut(0, script))
	}

	hashes := txscript.NewTxSigHashes(msg, txscript.NewMultiPrevOutFetcher(prev))
	for i, in := range msg.TxIn {
		p := prev[in.PreviousOutPoint]
		w, err := txscript.WitnessSignature(msg, hashes, i, p.Value, p.PkScript, txscript.SigHashAll, key, true)
		if err != nil {
			return "", fmt.Errorf("wallet: signing input %d: %w", i, err)
		}
		in.Witness = w
	}

	var buf bytes.Buffer
	if err = msg.Serialize(&buf); err != nil {
		return "", fmt.Errorf("wallet: encoding transaction: %w", err)
	}
	c.log.Debugw("transaction created", "txid", msg.TxHash().String(), "inputs", len(inputs), "fee", fee)
	return hex.EncodeToString(buf.Bytes()), nil
}
