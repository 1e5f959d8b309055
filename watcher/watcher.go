// Package watcher implements the block watcher service. The watcher scans the blocks mined in a network and sends a
// socket transaction event when a watched address is involved in a transaction.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/metrics"
	"github.com/tarancss/mcw/lib/msg"
	"github.com/tarancss/mcw/lib/store"
	"github.com/tarancss/mcw/lib/types"
	"github.com/tarancss/mcw/watcher/netwatch"
)

// Errors returned
var (
	ErrBadRequest = errors.New("watcher: bad wallet request")
	ErrReorg      = errors.New("watcher: reorganisation deeper than the blocks kept")
	ErrNoNetwork  = errors.New("watcher: unknown network")
)

const defaultPace = time.Second

type network struct {
	cfg config.NetworkConfig
	src explorer.BlockSource
}

// Watcher implements the watcher service over a set of networks.
type Watcher struct {
	db   store.DB
	mb   msg.Broker
	bus  *event.Bus
	log  *zap.SugaredLogger
	pace time.Duration

	mu   sync.Mutex
	nets []network
	nw   map[string]*netwatch.NetWatch
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithBroker publishes the events found to b and consumes its wallet requests.
func WithBroker(b msg.Broker) Option { return func(w *Watcher) { w.mb = b } }

// WithBus emits the events found on bus.
func WithBus(bus *event.Bus) Option { return func(w *Watcher) { w.bus = bus } }

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option { return func(w *Watcher) { w.log = log } }

// WithPace sets the minimum time between two block requests, one second by default.
func WithPace(d time.Duration) Option { return func(w *Watcher) { w.pace = d } }

// New instantiates a new watcher service saving its state to db.
func New(db store.DB, opts ...Option) *Watcher {
	w := &Watcher{db: db, pace: defaultPace, nw: make(map[string]*netwatch.NetWatch)}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = zap.NewNop().Sugar()
	}
	w.log = w.log.Named("watcher")
	return w
}

// Add registers a network to be scanned from src. An empty CoinID defaults to the network name.
func (w *Watcher) Add(cfg config.NetworkConfig, src explorer.BlockSource) {
	if cfg.CoinID == "" {
		cfg.CoinID = cfg.Name
	}
	w.mu.Lock()
	w.nets = append(w.nets, network{cfg: cfg, src: src})
	w.mu.Unlock()
}

// NetWatch returns the state of the network, nil until Run loaded it.
func (w *Watcher) NetWatch(name string) *netwatch.NetWatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nw[name]
}

// Run starts a go routine for each network added. The scanning of each network is controlled by a NetWatch (see
// package watcher/netwatch) holding the watched addresses and the status of scanned blocks. When a broker is set, the
// wallet requests to watch addresses are consumed too. A network whose state cannot be loaded is skipped. The first
// scanning failure stops every network and is returned by Run.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	nets := append([]network(nil), w.nets...)
	w.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nets {
		n := n
		nw, err := netwatch.New(ctx, n.cfg.Name, n.cfg.CoinID, maxBlocks(n), w.db)
		if err != nil {
			w.log.Errorw("loading state", "net", n.cfg.Name, "err", err)
			continue
		}
		if nw.Len() == 0 {
			w.log.Infow("no watched addresses yet", "net", n.cfg.Name)
		}
		w.mu.Lock()
		w.nw[n.cfg.Name] = nw
		w.mu.Unlock()

		if w.mb != nil {
			reqs, errs, err := w.mb.GetRequests(n.cfg.CoinID)
			if err != nil {
				w.log.Errorw("cannot consume wallet requests", "net", n.cfg.Name, "err", err)
				continue
			}
			g.Go(func() error {
				w.manageRequests(gctx, nw, reqs, errs)
				return nil
			})
		}
		g.Go(func() error { return w.scan(gctx, nw, n.src) })
	}
	return g.Wait()
}

func maxBlocks(n network) int {
	if n.cfg.MaxBlocks > 0 {
		return n.cfg.MaxBlocks
	}
	return n.src.MaxBlocks()
}

// Stop asks every network to stop after the block being scanned.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, nw := range w.nw {
		nw.Stop()
	}
}

// sleep waits d or until ctx is done, reporting whether scanning can go on.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// scan walks the blocks of a network until it is stopped. A network without watched addresses waits without scanning.
// A block whose parent is not the last hash kept rewinds one block, so the new branch is scanned from the fork.
func (w *Watcher) scan(ctx context.Context, nw *netwatch.NetWatch, src explorer.BlockSource) (err error) {
	log := w.log.With("net", nw.Name())
	coin := nw.Coin()
	idle := time.Duration(src.AvgBlock()) * time.Second
	if idle < w.pace {
		idle = w.pace
	}
	log.Infow("watching", "block", nw.Next()-1)

	defer func() {
		if errSave := nw.Save(context.Background(), w.db); errSave != nil {
			log.Errorw("saving state", "err", errSave)
		}
		log.Infow("done", "block", nw.Next()-1, "err", err)
	}()

	for nw.Status() == netwatch.WORK {
		if nw.Len() == 0 {
			// wait until there is something to watch
			if !sleep(ctx, idle) {
				return nil
			}
			continue
		}
		if !sleep(ctx, w.pace) {
			return nil
		}

		next := nw.Next()
		var b map[string]interface{}
		if err = src.GetBlock(next, true, &b); err != nil {
			if errors.Is(err, types.ErrNoBlock) {
				// lets wait for a new block to be mined
				err = nil
				if !sleep(ctx, idle) {
					return nil
				}
				continue
			}
			nw.Stop()
			return fmt.Errorf("watcher: %s block %d: %w", nw.Name(), next, err)
		}

		var blk types.Block
		if blk, err = src.DecodeBlock(b); err != nil {
			return fmt.Errorf("watcher: %s block %d: %w", nw.Name(), next, err)
		}
		log.Debugw("parsing block", "block", next, "hash", blk.Hash, "parent", blk.PHash)

		if !nw.Chained(blk.PHash) {
			metrics.WatcherReorgs.WithLabelValues(coin).Inc()
			log.Warnw("block is not chained, rewinding", "block", next, "parent", blk.PHash)
			if !nw.Rewind() {
				nw.Stop()
				return fmt.Errorf("%w: %s block %d", ErrReorg, nw.Name(), next)
			}
			continue
		}

		if blk.Tx, err = src.DecodeTxs(b); err != nil {
			return fmt.Errorf("watcher: %s block %d txs: %w", nw.Name(), next, err)
		}
		nw.UpdateChain(blk.Hash)
		w.publish(log, coin, nw.ScanTxs(blk.Tx))
		metrics.WatcherBlock.WithLabelValues(coin).Set(float64(next))

		if err = nw.Save(ctx, w.db); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) publish(log *zap.SugaredLogger, coin string, evs []event.SocketTxEvent) {
	if len(evs) == 0 {
		return
	}
	metrics.WatcherTxs.WithLabelValues(coin).Add(float64(len(evs)))
	if w.bus != nil {
		for _, e := range evs {
			w.bus.Emit(e)
		}
	}
	if w.mb != nil {
		if err := w.mb.SendTxs(coin, evs); err != nil {
			log.Errorw("sending events", "n", len(evs), "err", err)
			return
		}
	}
	log.Infow("events sent", "n", len(evs))
}

// manageRequests applies the wallet requests received until ctx is done or the broker closes the channel.
func (w *Watcher) manageRequests(ctx context.Context, nw *netwatch.NetWatch, reqs <-chan msg.WalletReq,
	errs <-chan error) {
	log := w.log.With("net", nw.Name())
	log.Infow("listening to wallet requests")
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-reqs:
			if !ok {
				log.Infow("stop listening to wallet requests")
				return
			}
			if err := w.Handle(ctx, nw.Name(), req); err != nil {
				log.Warnw("wallet request", "req", req, "err", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warnw("broker error", "err", err)
		}
	}
}

// Handle applies a wallet request to the network: listened addresses are saved and watched, unlistened ones are
// removed. Requests about transactions are not supported.
func (w *Watcher) Handle(ctx context.Context, net string, req msg.WalletReq) error {
	nw := w.NetWatch(net)
	if nw == nil {
		return fmt.Errorf("%w %q", ErrNoNetwork, net)
	}
	if req.Coin != nw.Coin() || req.Obj == "" || (req.Act != msg.LISTEN && req.Act != msg.UNLISTEN) {
		return fmt.Errorf("%w: %+v", ErrBadRequest, req)
	}
	switch req.Type {
	case msg.ADDRESS:
	case msg.TX:
		return fmt.Errorf("%w: transactions: %w", ErrBadRequest, types.ErrUnsupported)
	default:
		return fmt.Errorf("%w: type %d", ErrBadRequest, req.Type)
	}

	t := w.db.Table(store.TableAddresses)
	key := store.CompositeKey(net, req.Obj)
	if req.Act == msg.UNLISTEN {
		if !nw.Del(req.Obj) {
			w.log.Debugw("address was not watched", "net", net, "addr", req.Obj)
		}
		return t.Delete(ctx, key)
	}

	r, err := store.ToRecord(store.Address{Net: net, Addr: req.Obj})
	if err != nil {
		return err
	}
	if err = t.Put(ctx, key, r); err != nil {
		return err
	}
	nw.Add(req.Obj)
	w.log.Infow("watching address", "net", net, "addr", req.Obj)
	return nil
}
