// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.SugaredLogger
}

// New connects to the broker at uri.
func New(uri string, log *zap.SugaredLogger) (*Amqp, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Amqp{log: log.Named("amqp")}
	var err error
	if r.conn, err = amqp.Dial(uri); err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	r.log.Infow("connected", "uri", uri)
	return r, nil
}

// Setup declares the exchanges of the broker: wr (wallet requests), ee (explorer events) and we (wallet events).
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	for _, ex := range []string{msg.Requests, msg.TxEvents, msg.WalletEvents} {
		if err = channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp: declaring %s: %w", ex, err)
		}
	}
	return nil
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Warnw("closing channel", "err", err)
		}
		r.ch = nil
	}
	return r.conn.Close()
}

// channel returns the shared publishing channel, opening it if needed.
func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		var err error
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, err
		}
	}
	return r.ch, nil
}

func (r *Amqp) publish(exchange, key string, headers amqp.Table, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ch, err := r.channel()
	if err != nil {
		return err
	}
	m := amqp.Publishing{Headers: headers, Body: body, ContentType: "application/json"}
	if err = ch.Publish(exchange, key, false, false, m); err != nil {
		return fmt.Errorf("amqp: publishing %s to %s: %w", key, exchange, err)
	}
	return nil
}

// SendTxs publishes transaction events to the "ee" exchange.
func (r *Amqp) SendTxs(coin string, txs []event.SocketTxEvent) error {
	for _, t := range txs {
		h := amqp.Table{"x-trans-name": coin + "." + t.Hash}
		if err := r.publish(msg.TxEvents, coin+".trans."+t.Hash, h, t); err != nil {
			return err
		}
	}
	return nil
}

// SendRequest publishes a new wallet request to the "wr" exchange.
func (r *Amqp) SendRequest(coin string, wr msg.WalletReq) error {
	h := amqp.Table{"x-wreq-name": coin + "." + wr.Obj}
	return r.publish(msg.Requests, coin+"."+strconv.Itoa(wr.Type)+"."+wr.Obj, h, wr)
}

// SendWalletEvent publishes a wallet event to the "we" exchange.
func (r *Amqp) SendWalletEvent(e msg.WalletEvent) error {
	return r.publish(msg.WalletEvents, e.RoutingKey(), amqp.Table{"x-topic": e.Topic}, e)
}

// consume declares the durable queue <exchange><coin>, binds it to the coin messages of exchange and returns its
// deliveries.
func (r *Amqp) consume(exchange, coin, consumer string) (<-chan amqp.Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	name := exchange + coin
	if _, err = ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err = ch.QueueBind(name, coin+".*.*", exchange, false, nil); err != nil {
		return nil, err
	}
	return ch.Consume(name, consumer+"-"+coin, false, false, false, false, nil)
}

// GetTxs consumes the transaction events of coin from the "ee" exchange. A message is acknowledged once received from
// the returned channel.
func (r *Amqp) GetTxs(coin string) (<-chan event.SocketTxEvent, <-chan error, error) {
	msgs, err := r.consume(msg.TxEvents, coin, "wallet")
	if err != nil {
		return nil, nil, err
	}
	eves := make(chan event.SocketTxEvent)
	errs := make(chan error)
	go func() {
		defer close(eves)
		defer close(errs)
		for m := range msgs {
			var tx event.SocketTxEvent
			if err := json.Unmarshal(m.Body, &tx); err != nil {
				_ = m.Nack(false, false)
				errs <- err
				continue
			}
			eves <- tx
			_ = m.Ack(false)
		}
	}()
	return eves, errs, nil
}

// GetRequests consumes the wallet requests of coin from the "wr" exchange. A message is acknowledged once received
// from the returned channel.
func (r *Amqp) GetRequests(coin string) (<-chan msg.WalletReq, <-chan error, error) {
	msgs, err := r.consume(msg.Requests, coin, "watcher")
	if err != nil {
		return nil, nil, err
	}
	reqs := make(chan msg.WalletReq)
	errs := make(chan error)
	go func() {
		defer close(reqs)
		defer close(errs)
		for m := range msgs {
			var req msg.WalletReq
			if err := json.Unmarshal(m.Body, &req); err != nil {
				_ = m.Nack(false, false)
				errs <- err
				continue
			}
			reqs <- req
			_ = m.Ack(false)
		}
	}()
	return reqs, errs, nil
}

var _ msg.Broker = (*Amqp)(nil)
