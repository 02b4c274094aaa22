package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records counters for the event pipeline: ingress accepts,
// consumer outcomes, and outbound dispatch results.
type PipelineMetrics struct {
	accepted   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	processed  *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	claimed    prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_accepted_total",
		Help: "Events accepted at the ingress boundary.",
	}, []string{"source"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_duplicate_total",
		Help: "Events rejected as duplicates at the ingress boundary.",
	}, []string{"source"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "Consumer outcomes by terminal inbox status.",
	}, []string{"result"})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_dispatch_total",
		Help: "Outbound dispatch attempts by outcome.",
	}, []string{"outcome"})
	claimed := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_claim_batch_size",
		Help:    "Messages claimed per queue read.",
		Buckets: []float64{0, 1, 2, 4, 8, 16},
	})
	reg.MustRegister(accepted, duplicates, processed, dispatched, claimed)
	return &PipelineMetrics{
		accepted:   accepted,
		duplicates: duplicates,
		processed:  processed,
		dispatched: dispatched,
		claimed:    claimed,
	}
}

// IncAccepted counts an event accepted from the given source.
func (m *PipelineMetrics) IncAccepted(source string) {
	if m == nil || m.accepted == nil {
		return
	}
	m.accepted.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDuplicate counts an ingress duplicate from the given source.
func (m *PipelineMetrics) IncDuplicate(source string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncProcessed counts a consumer outcome (PROCESSED, IGNORED_STALE, FAILED, dropped).
func (m *PipelineMetrics) IncProcessed(result string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncDispatched counts an outbound dispatch outcome (ok, retry_after, dropped).
func (m *PipelineMetrics) IncDispatched(outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveClaimBatch records how many messages one queue read returned.
func (m *PipelineMetrics) ObserveClaimBatch(count int) {
	if m == nil || m.claimed == nil {
		return
	}
	m.claimed.Observe(float64(count))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
