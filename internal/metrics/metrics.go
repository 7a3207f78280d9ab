// Package metrics exposes Prometheus counters for the placement and retrieval
// engines, plus the optional HTTP listener that serves them during batch runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BoxesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_boxes_created_total",
		Help: "Boxes created because every existing box was full.",
	})
	SpilloverSplits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_spillover_splits_total",
		Help: "Placements split across containers by a capacity ceiling.",
	})
	Placements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_placements_total",
		Help: "Completed placement operations.",
	})
	CardsPulled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_cards_pulled_total",
		Help: "Units removed by fulfillment operations.",
	})
	PartialFulfillments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_partial_fulfillments_total",
		Help: "Fulfillments that collected less than requested.",
	})
	StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rack_store_conflicts_total",
		Help: "Store transactions retried after a concurrency conflict.",
	})
)

// NewServer returns an HTTP server exposing /health and /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
