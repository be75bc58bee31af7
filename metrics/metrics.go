// Package metrics holds the prometheus collectors of the prover, the ledger
// and the indexer. Every collector is registered in Registry, which the API
// exposes on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zknotes"

// Registry is the registry every collector of this package belongs to.
var Registry = prometheus.NewRegistry()

var (
	// ProofsGenerated counts proofs by circuit name.
	ProofsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prover",
		Name:      "proofs_total",
		Help:      "Proofs generated, by circuit.",
	}, []string{"circuit"})
	// ProveDuration observes proving time by circuit name.
	ProveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "prover",
		Name:      "prove_seconds",
		Help:      "Time spent generating a proof, by circuit.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"circuit"})
	// Verifications counts verifications by result (accepted or rejected).
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verifier",
		Name:      "verifications_total",
		Help:      "Proof verifications, by result.",
	}, []string{"result"})
	// LedgerTransactions counts accepted ledger transactions by kind.
	LedgerTransactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Ledger transactions accepted, by kind.",
	}, []string{"kind"})
	// IndexedLeaves is the number of leaves held by the indexer tree.
	IndexedLeaves = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "leaves",
		Help:      "Leaves in the indexed commitment tree.",
	})
	// LastIndexedLedger is the last ledger height the indexer processed.
	LastIndexedLedger = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "last_ledger",
		Help:      "Last ledger height processed by the indexer.",
	})
	// PollErrors counts failed poll cycles of the indexer.
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "poll_errors_total",
		Help:      "Failed ledger poll cycles.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ProofsGenerated,
		ProveDuration,
		Verifications,
		LedgerTransactions,
		IndexedLeaves,
		LastIndexedLedger,
		PollErrors,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
