// Package netwatch keeps the scanning state of one network: the last block scanned, a ring with the hashes of the
// most recent blocks and the addresses being watched.
package netwatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
)

// Status possible values, control whether a NetWatch is working or is/has to stop
const (
	WORK int = 0
	STOP int = 1
)

// ErrNoRing is returned by New when the ring size is not positive.
var ErrNoRing = errors.New("netwatch: maxBlocks must be positive")

// NetWatch contains the fields and data structures required to manage the scanning of a network or blockchain.
type NetWatch struct {
	l      sync.Mutex // guards every field below
	name   string
	coin   string
	status int
	Block  uint64          // last block parsed
	Bh     []string        // hashes of the last blocks, Bh[Bhi] being the hash of Block
	Bhi    int             // index to last block's hash in Bh
	Map    map[string]bool // watched addresses
}

// New returns the NetWatch of network name, whose transfers belong to coin. The state saved in the watcher table is
// restored if present, otherwise scanning starts at block 0. The addresses of the network saved in the addresses table
// are added to the map.
func New(ctx context.Context, name, coin string, maxBlocks int, db store.DB) (*NetWatch, error) {
	if maxBlocks <= 0 {
		return nil, ErrNoRing
	}
	n := &NetWatch{name: name, coin: coin, Bh: make([]string, maxBlocks), Map: make(map[string]bool)}

	r, err := db.Table(store.TableWatcher).Get(ctx, store.StringKey(name))
	if err != nil {
		return nil, fmt.Errorf("netwatch: loading %s: %w", name, err)
	}
	if r != nil {
		var s store.WatcherState
		if err = store.Decode(r, &s); err != nil {
			return nil, err
		}
		n.FromStore(s, maxBlocks)
	}

	addrs, err := db.Table(store.TableAddresses).GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("netwatch: loading addresses of %s: %w", name, err)
	}
	for _, r := range addrs {
		var a store.Address
		if err = store.Decode(r, &a); err != nil {
			return nil, err
		}
		if a.Net == name && a.Addr != "" {
			n.Map[norm(a.Addr)] = true
		}
	}
	return n, nil
}

// Name returns the network name.
func (n *NetWatch) Name() string { return n.name }

// Coin returns the id of the coin the transfers belong to.
func (n *NetWatch) Coin() string { return n.coin }

// norm lowercases hex addresses, which are case insensitive.
func norm(addr string) string {
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
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

// ScanTxs returns a socket event for each side of a transfer whose From or To address is watched. The events carry
// the resolved transaction so receivers need not ask an explorer for it.
func (n *NetWatch) ScanTxs(txs []types.Trans) []event.SocketTxEvent {
	n.l.Lock()
	defer n.l.Unlock()
	r := make([]event.SocketTxEvent, 0, 4)
	for _, tx := range txs {
		from, to := norm(tx.From), norm(tx.To)
		if n.Map[to] {
			r = append(r, n.toEvent(tx, to, true))
		}
		if n.Map[from] && from != to {
			r = append(r, n.toEvent(tx, from, false))
		}
	}
	return r
}

func (n *NetWatch) toEvent(tx types.Trans, addr string, incoming bool) event.SocketTxEvent {
	t := &types.Transaction{
		WalletID:  n.coin,
		Hash:      tx.Hash,
		From:      tx.From,
		To:        tx.To,
		Value:     hexToDec(tx.Value),
		Contract:  tx.Token,
		Data:      tx.Data,
		Incoming:  incoming,
		Status:    types.TxStatus(tx.Status),
		Timestamp: int64(tx.TS),
	}
	t.Block, _ = strconv.ParseUint(tx.Block, 0, 64)
	if tx.Fee > 0 {
		t.Fee = strconv.FormatUint(tx.Fee, 10)
	}
	se := event.SocketTxEvent{CoinID: n.coin, Address: addr, Hash: tx.Hash, Tx: t}
	if tx.Token != "" {
		se.Tokens = []string{tx.Token}
	}
	return se
}

// Chained checks if the supplied hash is the last block's hash. An empty ring accepts any hash.
func (n *NetWatch) Chained(hash string) bool {
	n.l.Lock()
	defer n.l.Unlock()
	return n.Bh[n.Bhi] == hash || n.Bh[n.Bhi] == ""
}

// UpdateChain moves to the next block, whose hash is given.
func (n *NetWatch) UpdateChain(hash string) {
	n.l.Lock()
	defer n.l.Unlock()
	n.Block++
	n.Bhi = (n.Bhi + 1) % len(n.Bh)
	n.Bh[n.Bhi] = hash
}

// Rewind forgets the last block so it is scanned again. It returns false when the ring holds no older hash, in which
// case the reorganisation is deeper than the blocks kept.
func (n *NetWatch) Rewind() bool {
	n.l.Lock()
	defer n.l.Unlock()
	prev := (n.Bhi - 1 + len(n.Bh)) % len(n.Bh)
	if n.Block == 0 || n.Bh[prev] == "" {
		return false
	}
	n.Bh[n.Bhi] = ""
	n.Bhi = prev
	n.Block--
	return true
}

// Add watches addr.
func (n *NetWatch) Add(addr string) {
	n.l.Lock()
	defer n.l.Unlock()
	n.Map[norm(addr)] = true
}

// Del stops watching addr, reporting whether it was watched.
func (n *NetWatch) Del(addr string) bool {
	n.l.Lock()
	defer n.l.Unlock()
	addr = norm(addr)
	ok := n.Map[addr]
	delete(n.Map, addr)
	return ok
}

// Len returns the number of watched addresses.
func (n *NetWatch) Len() int {
	n.l.Lock()
	defer n.l.Unlock()
	return len(n.Map)
}

// Next returns the number of the block to scan.
func (n *NetWatch) Next() uint64 {
	n.l.Lock()
	defer n.l.Unlock()
	return n.Block + 1
}

// ToStore returns a copy of the state to be saved to store
func (n *NetWatch) ToStore() store.WatcherState {
	n.l.Lock()
	defer n.l.Unlock()
	s := store.WatcherState{
		Block: n.Block,
		Bh:    append([]string(nil), n.Bh...),
		Bhi:   n.Bhi,
		Map:   make(map[string]bool, len(n.Map)),
	}
	for k, v := range n.Map {
		s.Map[k] = v
	}
	return s
}

// FromStore loads the NetWatch with the values read from store. A ring of a different size is rebuilt keeping only
// the last hash.
func (n *NetWatch) FromStore(s store.WatcherState, maxBlocks int) {
	n.l.Lock()
	defer n.l.Unlock()
	n.Block = s.Block
	n.Bh, n.Bhi = s.Bh, s.Bhi
	if len(s.Bh) != maxBlocks || s.Bhi < 0 || s.Bhi >= len(s.Bh) {
		n.Bh, n.Bhi = make([]string, maxBlocks), 0
		if s.Bhi >= 0 && s.Bhi < len(s.Bh) {
			n.Bh[0] = s.Bh[s.Bhi]
		}
	}
	n.Map = make(map[string]bool, len(s.Map))
	for k, v := range s.Map {
		if v {
			n.Map[norm(k)] = true
		}
	}
}

// Save writes the state to the watcher table.
func (n *NetWatch) Save(ctx context.Context, db store.DB) error {
	r, err := store.ToRecord(n.ToStore())
	if err != nil {
		return err
	}
	if err = db.Table(store.TableWatcher).Put(ctx, store.StringKey(n.name), r); err != nil {
		return fmt.Errorf("netwatch: saving %s: %w", n.name, err)
	}
	return nil
}

// Stop sets status to STOP
func (n *NetWatch) Stop() {
	n.l.Lock()
	n.status = STOP
	n.l.Unlock()
}

// Start sets status to WORK
func (n *NetWatch) Start() {
	n.l.Lock()
	n.status = WORK
	n.l.Unlock()
}

// Status returns the current NetWatch status
func (n *NetWatch) Status() int {
	n.l.Lock()
	defer n.l.Unlock()
	return n.status
}
