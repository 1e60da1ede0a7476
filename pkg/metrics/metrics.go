// Package metrics exposes Prometheus instrumentation for the
// pipeline stages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	retrievalDocs     prometheus.Histogram
	retrievalLatency  prometheus.Histogram
	rerankDocs        prometheus.Histogram
	rerankLatency     prometheus.Histogram
	generationLatency prometheus.Histogram
	confidence        prometheus.Histogram
	retries           prometheus.Counter
	rejectedRequests  prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	requestDuration   prometheus.Histogram
}

// New registers pipeline metrics on the given registerer. Pass a fresh
// registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		retrievalDocs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_retrieval_documents",
			Help:    "Documents returned by one retrieval round.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		retrievalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_retrieval_duration_seconds",
			Help:    "Latency of one retrieval round.",
			Buckets: prometheus.DefBuckets,
		}),
		rerankDocs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_rerank_documents",
			Help:    "Documents surviving the reranker.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		rerankLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_rerank_duration_seconds",
			Help:    "Latency of one rerank call.",
			Buckets: prometheus.DefBuckets,
		}),
		generationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_generation_duration_seconds",
			Help:    "Latency of one generation call.",
			Buckets: prometheus.DefBuckets,
		}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_answer_confidence",
			Help:    "Validation confidence of generated answers.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "policyrag_query_rewrites_total",
			Help: "Query rewrites triggered by empty grading results.",
		}),
		rejectedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "policyrag_rejected_requests_total",
			Help: "Requests rejected by input guardrails.",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "policyrag_requests_total",
			Help: "Completed chat requests by outcome.",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyrag_request_duration_seconds",
			Help:    "End-to-end latency of one chat request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveRetrieval(docCount int, elapsed time.Duration) {
	m.retrievalDocs.Observe(float64(docCount))
	m.retrievalLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRerank(docCount int, elapsed time.Duration) {
	m.rerankDocs.Observe(float64(docCount))
	m.rerankLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveGeneration(confidence float64, elapsed time.Duration) {
	m.confidence.Observe(confidence)
	m.generationLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) CountRetry() {
	m.retries.Inc()
}

func (m *Metrics) CountRejected() {
	m.rejectedRequests.Inc()
}

func (m *Metrics) ObserveRequest(outcome string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}
