package msg

import (
	"sync"

	"github.com/tarancss/mcw/lib/event"
)

const localBuffer = 64

// Local is an in process broker, used when the wallet and the watcher run in the same binary or no broker is
// configured. Wallet events are kept on a channel read with WalletEvents.
type Local struct {
	mu     sync.Mutex
	closed bool
	reqs   map[string]chan WalletReq
	txs    map[string]chan event.SocketTxEvent
	events chan WalletEvent
	errs   chan error
}

// NewLocal returns an in process broker.
func NewLocal() *Local {
	return &Local{
		reqs:   make(map[string]chan WalletReq),
		txs:    make(map[string]chan event.SocketTxEvent),
		events: make(chan WalletEvent, localBuffer),
		errs:   make(chan error),
	}
}

// Setup implements Broker.
func (l *Local) Setup() error { return nil }

// Close closes every channel handed out.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, c := range l.reqs {
		close(c)
	}
	for _, c := range l.txs {
		close(c)
	}
	close(l.events)
	close(l.errs)
	return nil
}

func (l *Local) reqChan(coin string) chan WalletReq {
	c, ok := l.reqs[coin]
	if !ok {
		c = make(chan WalletReq, localBuffer)
		l.reqs[coin] = c
	}
	return c
}

func (l *Local) txChan(coin string) chan event.SocketTxEvent {
	c, ok := l.txs[coin]
	if !ok {
		c = make(chan event.SocketTxEvent, localBuffer)
		l.txs[coin] = c
	}
	return c
}

// SendRequest implements Broker.
func (l *Local) SendRequest(coin string, r WalletReq) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.reqChan(coin) <- r
	return nil
}

// GetRequests implements Broker.
func (l *Local) GetRequests(coin string) (<-chan WalletReq, <-chan error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil, ErrClosed
	}
	return l.reqChan(coin), l.errs, nil
}

// SendTxs implements Broker.
func (l *Local) SendTxs(coin string, txs []event.SocketTxEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	c := l.txChan(coin)
	for _, tx := range txs {
		c <- tx
	}
	return nil
}

// GetTxs implements Broker.
func (l *Local) GetTxs(coin string) (<-chan event.SocketTxEvent, <-chan error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil, ErrClosed
	}
	return l.txChan(coin), l.errs, nil
}

// SendWalletEvent implements Broker. Events are dropped when nobody drains WalletEvents.
func (l *Local) SendWalletEvent(e WalletEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.events <- e:
	default:
	}
	return nil
}

// WalletEvents returns the wallet events sent to the broker.
func (l *Local) WalletEvents() <-chan WalletEvent { return l.events }
