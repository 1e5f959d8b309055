// Package boot holds the start up steps shared by the wallet and watcher binaries.
package boot

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/explorer"
	"github.com/tarancss/mcw/lib/explorer/ethnode"
	"github.com/tarancss/mcw/lib/metrics"
	"github.com/tarancss/mcw/lib/msg"
	"github.com/tarancss/mcw/lib/msg/amqp"
	"github.com/tarancss/mcw/watcher"
)

// MetricsAddr is where the Prometheus metrics are served.
const MetricsAddr = ":9100"

// AMQP is the broker type for RabbitMQ.
const AMQP = "amqp"

var retryAfter = 10 * time.Second

// Broker opens the message broker of the configuration. Any type other than AMQP gives the in process broker.
func Broker(conf config.ServiceConfig, log *zap.SugaredLogger) (msg.Broker, error) {
	if conf.MbType != AMQP {
		log.Infow("using in process message broker", "mbtype", conf.MbType)
		return msg.NewLocal(), nil
	}
	mb, err := amqp.New(conf.MbConn, log)
	if err != nil {
		// wait for AMQP to be ready and try to reconnect
		log.Warnw("broker not ready, retrying", "after", retryAfter, "err", err)
		time.Sleep(retryAfter)
		if mb, err = amqp.New(conf.MbConn, log); err != nil {
			return nil, err
		}
	}
	if err = mb.Setup(); err != nil {
		_ = mb.Close()
		return nil, err
	}
	return mb, nil
}

// Metrics serves the metrics until ctx is done.
func Metrics(ctx context.Context, log *zap.SugaredLogger) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Errorw("registering metrics", "err", err)
		return
	}
	s := metrics.Server(MetricsAddr)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	go func() {
		log.Infow("serving metrics", "addr", MetricsAddr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server", "err", err)
		}
	}()
}

// Networks adds to w a node block source for each network. The returned func closes them.
func Networks(w *watcher.Watcher, nets []config.NetworkConfig, log *zap.SugaredLogger) (func(), error) {
	var srcs []explorer.BlockSource
	closeAll := func() {
		for _, s := range srcs {
			s.Close()
		}
	}
	for _, n := range nets {
		cfg := config.ExplorerConfig{ClassName: ethnode.ClassName, BaseURL: n.Node, Secret: n.Secret, MaxBlocks: n.MaxBlocks}
		src, err := ethnode.New(cfg, nil, explorer.Deps{Log: log})
		if err != nil {
			closeAll()
			return nil, err
		}
		w.Add(n, src)
		srcs = append(srcs, src)
		log.Infow("network loaded", "net", n.Name, "coin", n.CoinID)
	}
	return closeAll, nil
}

// OnSignal calls stop when the program is interrupted or receives a SIGTERM.
func OnSignal(log *zap.SugaredLogger, stop func()) {
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		s := <-sigchan
		log.Infow("program killed", "signal", s.String())
		stop()
	}()
}
