// Package metrics holds the Prometheus collectors of the services and the handler exposing them.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcw"

// Collectors of the services. They count whether registered or not.
var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "REST requests served, by route and status code.",
	}, []string{"route", "code"})

	APILatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_seconds",
		Help:      "REST request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	WatcherBlock = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "block",
		Help:      "Last block scanned, by coin.",
	}, []string{"coin"})

	WatcherTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "transactions_total",
		Help:      "Transactions of watched addresses found in blocks, by coin.",
	}, []string{"coin"})

	WatcherReorgs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "reorgs_total",
		Help:      "Chain reorganisations detected, by coin.",
	}, []string{"coin"})

	RelayedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "msg",
		Name:      "events_total",
		Help:      "Events exchanged with the message broker, by direction and kind.",
	}, []string{"direction", "kind"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{APIRequests, APILatency, WatcherBlock, WatcherTxs, WatcherReorgs, RelayedEvents}
}

// Register adds the collectors to r. Collectors already registered with r are skipped.
func Register(r prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Server returns the server exposing the default registry on addr under /metrics.
func Server(addr string) *http.Server {
	h := http.NewServeMux()
	h.Handle("/metrics", Handler(prometheus.DefaultGatherer))
	return &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
}

// Since observes the time elapsed from start for route.
func Since(route string, start time.Time) {
	APILatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
