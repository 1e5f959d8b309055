// Package ethnode implements an explorer backed directly by an ethereum node through ethcli. Besides balances and
// transaction lookups it is a block source the watcher can scan. A plain node keeps no per address history, so
// history and raw broadcast are not served.
package ethnode

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/tarancss/ethcli"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/types"
)

// ClassName is the registry name of the explorer.
const ClassName = "ETHNodeExplorer"

// Ethereum ERC20 token methodID (keccak-256 of the function name and arguments)
const (
	ERC20transfer256     = "a9059cbb" // transfer(address,uint256)
	ERC20transferFrom256 = "23b872dd" // transferFrom(address,address,uint256)
	ERC20transfer        = "6cb927d8" // transfer(address,uint)
	ERC20transferFrom    = "a978501e" // transferFrom(address,address,uint)
)

// ErrNoNode is returned when the node cannot be reached.
var ErrNoNode = errors.New("ethnode: cannot connect to ethereum node")

func init() {
	explorer.Register(ClassName, func(cfg config.ExplorerConfig, owner explorer.Owner,
		deps explorer.Deps) (explorer.Explorer, error) {
		return New(cfg, owner, deps)
	})
}

// Node implements a connection to an ethereum-type chain.
type Node struct {
	explorer.Base
	mu sync.Mutex
	c  *ethcli.EthCli
}

// New returns an explorer connected to cfg.BaseURL, using cfg.Secret for Basic Authentication if necessary.
// cfg.MaxBlocks indicates how many blocks are taken into account for uncle management.
func New(cfg config.ExplorerConfig, owner explorer.Owner, deps explorer.Deps) (*Node, error) {
	n := &Node{}
	n.Init(ClassName, cfg, owner, deps.Log)
	if n.c = ethcli.Init(cfg.BaseURL, cfg.Secret); n.c == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoNode, cfg.BaseURL)
	}
	return n, nil
}

// UpdateParams implements explorer.Explorer. A new node url reconnects the client.
func (n *Node) UpdateParams(cfg config.ExplorerConfig) {
	old := n.Config()
	n.Base.UpdateParams(cfg)
	if old.BaseURL == cfg.BaseURL && old.Secret == cfg.Secret {
		return
	}
	if c := ethcli.Init(cfg.BaseURL, cfg.Secret); c != nil {
		n.mu.Lock()
		prev := n.c
		n.c = c
		n.mu.Unlock()
		if prev != nil {
			prev.End()
		}
	} else {
		n.Log().Warnf("[%s] cannot connect to %s, keeping previous node", n.Owner().ID(), cfg.BaseURL)
	}
}

func (n *Node) cli() *ethcli.EthCli {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.c
}

// MaxBlocks returns how many blocks will be taken into account for uncle management.
func (n *Node) MaxBlocks() int {
	return n.Config().MaxBlocks
}

// AvgBlock returns the average time to mine a block in seconds.
func (n *Node) AvgBlock() int {
	return 15 //nolint:gomnd // ethereum block time
}

// Close ends a connection
func (n *Node) Close() {
	if c := n.cli(); c != nil {
		c.End()
	}
}

// GetInfo implements explorer.Explorer returning the ether balance of the address.
func (n *Node) GetInfo(_ context.Context, address string) (types.Info, error) {
	bal, tokBal := new(big.Int), new(big.Int)
	if err := n.cli().GetBalance(address, "", bal, tokBal); err != nil {
		return types.Info{}, fmt.Errorf("ethnode: balance of %s: %w", address, err)
	}
	return types.Info{Balance: bal.String()}, nil
}

// GetTokenBalance implements explorer.TokenBalanceGetter.
func (n *Node) GetTokenBalance(_ context.Context, address, contract string) (string, error) {
	bal, tokBal := new(big.Int), new(big.Int)
	if err := n.cli().GetBalance(address, contract, bal, tokBal); err != nil {
		return "", fmt.Errorf("ethnode: token balance of %s: %w", address, err)
	}
	return tokBal.String(), nil
}

// GetToken implements explorer.TokenInfoGetter returning the name, symbol and decimals of a valid ERC20 token.
func (n *Node) GetToken(_ context.Context, contract string) (t types.Token, err error) {
	c := n.cli()
	if t.Name, err = c.GetTokenName(contract); err != nil {
		return
	}
	if t.Symbol, err = c.GetTokenSymbol(contract); err != nil {
		return
	}
	var dec uint64
	if dec, err = c.GetTokenDecimals(contract); err != nil {
		return
	}
	t.Decimals = uint8(dec)
	t.Data = contract
	return
}

// hexToDec converts a 0x prefixed quantity to a decimal string, leaving other values untouched.
func hexToDec(s string) string {
	if !strings.HasPrefix(s, "0x") {
		return s
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return s
	}
	return v.String()
}

// GetTransaction implements explorer.Explorer returning the details of the transaction for the given hash. Token
// transfers carry their contract but keep the coin id as WalletID.
func (n *Node) GetTransaction(_ context.Context, address, hash string) (*types.Transaction, error) {
	var (
		blk         uint64
		ts          int32
		fee         uint64
		status      uint8
		token, data []byte
		to, from    string
		amount      string
		err         error
	)
	blk, ts, _, _, status, fee, token, data, to, from, amount, err = n.cli().GetTrx(hash)
	if err != nil {
		if errors.Is(err, ethcli.ErrNoBlock) {
			return nil, types.ErrNoTrx
		}
		return nil, fmt.Errorf("ethnode: tx %s: %w", hash, err)
	}

	owner := n.Owner()
	tx := &types.Transaction{
		WalletID:  owner.ID(),
		Ticker:    owner.Ticker(),
		Hash:      hash,
		Block:     blk,
		From:      from,
		To:        to,
		Value:     hexToDec(amount),
		Fee:       strconv.FormatUint(fee, 10),
		Incoming:  strings.EqualFold(to, address),
		Timestamp: int64(ts),
	}
	if len(token) > 0 {
		tx.Contract = "0x" + hex.EncodeToString(token)
	}
	if len(data) > 0 {
		tx.Data = "0x" + hex.EncodeToString(data)
	}
	switch status {
	case ethcli.TrxPending:
		tx.Status = types.TxPending
	case ethcli.TrxFailed:
		tx.Status = types.TxFailed
	default:
		tx.Status = types.TxConfirmed
	}
	return tx, nil
}

// CheckTransaction implements explorer.Explorer refreshing status, block and fee of a sent transaction.
func (n *Node) CheckTransaction(ctx context.Context, address string, tx types.Transaction) (types.Transaction, error) {
	fresh, err := n.GetTransaction(ctx, address, tx.Hash)
	if err != nil {
		return tx, err
	}
	tx.Status, tx.Block, tx.Fee, tx.Timestamp = fresh.Status, fresh.Block, fresh.Fee, fresh.Timestamp
	return tx, nil
}

// GetSocketTransaction implements explorer.SocketTransactionGetter.
func (n *Node) GetSocketTransaction(ctx context.Context, req explorer.SocketRequest) error {
	tx, err := n.GetTransaction(ctx, req.Address, req.Hash)
	if err != nil {
		return err
	}
	n.Owner().Notify(*tx)
	return nil
}

// GetBlock returns in response the block number requested. If full, it provides all the details of the transactions.
func (n *Node) GetBlock(block uint64, full bool, response interface{}) (err error) {
	m, ok := response.(*map[string]interface{})
	if !ok {
		return types.ErrBlockDecode
	}
	if err = n.cli().GetBlockByNumber(block, full, m); errors.Is(err, ethcli.ErrNoBlock) {
		err = types.ErrNoBlock
	}
	return
}

// DecodeBlock returns a struct with the values from the block data. It is used after a call to GetBlock.
func (n *Node) DecodeBlock(t interface{}) (b types.Block, err error) {
	m, ok := t.(map[string]interface{})
	if !ok {
		err = types.ErrBlockDecode
		return
	}
	if b.Hash, ok = m["hash"].(string); !ok {
		err = types.ErrNoHash
		return
	}
	if b.PHash, ok = m["parentHash"].(string); !ok {
		err = types.ErrNoParentHash
		return
	}
	if b.Number, ok = m["number"].(string); !ok {
		err = types.ErrNoBlockNumber
		return
	}
	if b.TS, ok = m["timestamp"].(string); !ok {
		err = types.ErrNoTS
		return
	}
	return
}

// isTokenCall reports whether the input of a transaction calls one of the ERC20 transfer methods.
func isTokenCall(input string) bool {
	if len(input) <= 10 {
		return false
	}
	switch input[2:10] {
	case ERC20transfer, ERC20transfer256, ERC20transferFrom, ERC20transferFrom256:
		return true
	}
	return false
}

// trimValue returns the 0x prefixed value in input[from:to] without left zeroes, keeping an even number of digits.
func trimValue(input string, from, to int) string {
	j := from
	for ; j < to && input[j] == '0'; j++ {
	}
	if (j-from)%2 == 1 {
		j--
	}
	return "0x" + input[j:to]
}

// decodeTx fills the transfer fields of a full transaction object. ok is false for contract creations, which are
// skipped.
func decodeTx(txObj map[string]interface{}, tx *types.Trans) (ok bool, err error) {
	if tx.Block, ok = txObj["blockNumber"].(string); !ok {
		return false, types.ErrNoBlockNumber
	}
	if tx.Hash, ok = txObj["hash"].(string); !ok {
		return false, types.ErrNoTrxHash
	}
	if tx.To, ok = txObj["to"].(string); !ok {
		return false, nil // contract creation, so we dont care about this transaction's details
	}
	input, ok := txObj["input"].(string)
	if !ok {
		return false, types.ErrNoTrxInput
	}

	if !isTokenCall(input) {
		// this is an ether transfer
		if tx.Value, ok = txObj["value"].(string); !ok {
			return false, types.ErrNoTrxValue
		}
		if tx.From, ok = txObj["from"].(string); !ok {
			return false, types.ErrNoTrxFrom
		}
		tx.Data = input
	} else {
		switch input[2:10] {
		case ERC20transfer, ERC20transfer256:
			if len(input) < 138 {
				return false, types.ErrTrxWrongLen
			}
			if tx.From, ok = txObj["from"].(string); !ok {
				return false, types.ErrNoTrxFrom
			}
			// To comes in "input" after 24 padded 0s
			tx.To = "0x" + input[10+24:74]
			tx.Value = trimValue(input, 74, 138)
		default:
			if len(input) < 202 {
				return false, types.ErrTrxWrongLen
			}
			// From comes in "input" after 24 padded 0s, then To after 24 padded 0s
			tx.From = "0x" + input[10+24:74]
			tx.To = "0x" + input[74+24:138]
			tx.Value = trimValue(input, 138, 202)
		}
		// Token it's the smart contract address that comes in "to"
		tx.Token, _ = txObj["to"].(string)
	}

	if tx.Gas, ok = txObj["gas"].(string); !ok {
		return false, types.ErrNoTrxGasUsed
	}
	price, ok := txObj["gasPrice"].(string)
	if !ok {
		return false, types.ErrNoTrxGasPrice
	}
	if tx.Price, err = strconv.ParseUint(price, 0, 64); err != nil {
		return false, err
	}
	// status should be got from the receipt
	tx.Status = uint8(types.TxPending)
	return true, nil
}

// DecodeTxs returns a slice of transactions from the block data. It is used after a call to GetBlock.
func (n *Node) DecodeTxs(t interface{}) (txs []types.Trans, err error) {
	m, ok := t.(map[string]interface{})
	if !ok {
		return nil, types.ErrNoTrx
	}
	txList, ok := m["transactions"].([]interface{})
	if !ok {
		return nil, types.ErrNoTrx
	}

	txs = make([]types.Trans, 0, len(txList))
	for _, item := range txList {
		switch v := item.(type) {
		case string:
			txs = append(txs, types.Trans{Hash: v}) // only transaction hashes
		case map[string]interface{}:
			var tx types.Trans
			if ok, err = decodeTx(v, &tx); err != nil {
				return nil, err
			}
			if ok {
				txs = append(txs, tx)
			}
		default:
			n.Log().Warnf("[%s] unknown transaction type %T in block", n.Config().BaseURL, item)
		}
	}
	return txs, nil
}
