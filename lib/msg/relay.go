package msg

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/metrics"
)

const relayBuffer = 256

// RelayedKinds are the wallet topics a Relay forwards.
var RelayedKinds = []event.Kind{event.BalanceUpdated, event.HistoryUpdated, event.NewTransaction}

// Relay forwards the bus events of watched wallets to the broker, in the order they were emitted. Events are queued
// and dropped with a warning when the broker falls behind.
type Relay struct {
	b      Broker
	bus    *event.Bus
	log    *zap.SugaredLogger
	q      chan event.Event
	wg     sync.WaitGroup
	mu     sync.Mutex
	topics []event.Topic
	qmu    sync.Mutex
	closed bool
}

// NewRelay starts a relay from bus to b.
func NewRelay(b Broker, bus *event.Bus, log *zap.SugaredLogger) *Relay {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Relay{b: b, bus: bus, log: log.Named("relay"), q: make(chan event.Event, relayBuffer)}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Relay) run() {
	defer r.wg.Done()
	for e := range r.q {
		we, err := NewWalletEvent(e)
		if err == nil {
			err = r.b.SendWalletEvent(we)
		}
		if err != nil {
			r.log.Warnw("relaying event", "topic", e.Topic().String(), "err", err)
			continue
		}
		metrics.RelayedEvents.WithLabelValues("out", we.Kind).Inc()
	}
}

func (r *Relay) enqueue(e event.Event) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.q <- e:
	default:
		r.log.Warnw("relay queue full, event dropped", "topic", e.Topic().String())
	}
}

// Watch forwards the RelayedKinds events of the wallets.
func (r *Relay) Watch(walletIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range walletIDs {
		for _, k := range RelayedKinds {
			t := event.Topic{Kind: k, Scope: id}
			if err := routes.add(r.bus, t, r); err != nil {
				return err
			}
			r.topics = append(r.topics, t)
		}
	}
	return nil
}

// Close stops forwarding and waits for the queued events to be sent.
func (r *Relay) Close() {
	r.mu.Lock()
	for _, t := range r.topics {
		if err := routes.remove(r.bus, t, r); err != nil {
			r.log.Debugw("unsubscribing", "topic", t.String(), "err", err)
		}
	}
	r.topics = nil
	r.mu.Unlock()

	r.qmu.Lock()
	if !r.closed {
		r.closed = true
		close(r.q)
	}
	r.qmu.Unlock()
	r.wg.Wait()
}

// The bus tells handlers apart by their code only, so every relay of a bus shares one handler per topic and the
// handler fans the event out to the relays registered for it.
var routes = &router{}

type routeKey struct {
	bus   *event.Bus
	topic string
}

type route struct {
	handler event.Handler
	relays  []*Relay
}

type router struct {
	mu sync.Mutex
	m  sync.Map // routeKey -> *route, replaced on change
}

func (rt *router) add(bus *event.Bus, t event.Topic, r *Relay) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := routeKey{bus: bus, topic: t.String()}
	cur := &route{}
	if v, ok := rt.m.Load(key); ok {
		cur = v.(*route)
	}
	next := &route{handler: cur.handler, relays: append(append([]*Relay(nil), cur.relays...), r)}
	if next.handler == nil {
		next.handler = func(e event.Event) { rt.dispatch(key, e) }
		if err := bus.Subscribe(t, next.handler); err != nil {
			return err
		}
	}
	rt.m.Store(key, next)
	return nil
}

func (rt *router) remove(bus *event.Bus, t event.Topic, r *Relay) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := routeKey{bus: bus, topic: t.String()}
	v, ok := rt.m.Load(key)
	if !ok {
		return nil
	}
	cur := v.(*route)
	next := &route{handler: cur.handler}
	removed := false
	for _, x := range cur.relays {
		if x == r && !removed {
			removed = true
			continue
		}
		next.relays = append(next.relays, x)
	}
	if len(next.relays) > 0 {
		rt.m.Store(key, next)
		return nil
	}
	rt.m.Delete(key)
	return bus.Unsubscribe(t, cur.handler)
}

// dispatch runs under the bus lock and must not take rt.mu.
func (rt *router) dispatch(key routeKey, e event.Event) {
	v, ok := rt.m.Load(key)
	if !ok {
		return
	}
	for _, r := range v.(*route).relays {
		r.enqueue(e)
	}
}

// Consume emits the transactions the broker delivers for coin as socket events on the bus. It returns when ctx is
// done or the broker is closed.
func Consume(ctx context.Context, b Broker, coin string, bus *event.Bus, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	txs, errs, err := b.GetTxs(coin)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case se, ok := <-txs:
			if !ok {
				return nil
			}
			if se.CoinID == "" {
				se.CoinID = coin
			}
			log.Debugw("transaction event", "coin", coin, "hash", se.Hash, "confirmed", se.Confirmed)
			metrics.RelayedEvents.WithLabelValues("in", se.Topic().Kind.Name()).Inc()
			bus.Emit(se)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warnw("broker error", "coin", coin, "err", err)
		}
	}
}

// Listen asks the watcher of coin to watch addr.
func Listen(b Broker, coin, addr string) error {
	return b.SendRequest(coin, WalletReq{Coin: coin, Type: ADDRESS, Obj: addr, Act: LISTEN})
}

// Unlisten asks the watcher of coin to forget addr.
func Unlisten(b Broker, coin, addr string) error {
	return b.SendRequest(coin, WalletReq{Coin: coin, Type: ADDRESS, Obj: addr, Act: UNLISTEN})
}
