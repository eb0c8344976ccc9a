// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AnswersTotal counts answers by outcome (ok, degraded).
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_answers_total",
			Help: "Total answers produced by the RAG pipeline",
		},
		[]string{"status"},
	)

	// AnswerDuration tracks end-to-end answer latency.
	AnswerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_answer_duration_seconds",
			Help:    "RAG answer latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	// DocumentsRetrieved tracks how many documents each query retrieves.
	DocumentsRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_documents_retrieved",
			Help:    "Documents retrieved per query",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10, 20},
		},
	)

	// AnswerConfidence tracks the confidence distribution of answers.
	AnswerConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_answer_confidence",
			Help:    "Confidence of produced answers",
			Buckets: []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, .95, 1},
		},
	)

	// EmbeddingFailures counts embedding provider failures absorbed by the scorer.
	EmbeddingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_embedding_failures_total",
			Help: "Embedding provider failures",
		},
		[]string{"provider"},
	)

	// LLMCompletionDuration tracks LLM completion latency.
	LLMCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionsTotal tracks total conversation sessions created.
	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Total conversation sessions created",
		},
	)

	// MessagesTotal tracks total messages recorded in memory.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages recorded",
		},
		[]string{"role"},
	)

	// MessagesEvicted counts messages dropped by bounded history retention.
	MessagesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_messages_evicted_total",
			Help: "Messages evicted from session history",
		},
	)

	// CorpusDocuments tracks the number of documents in the corpus.
	CorpusDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corpus_documents",
			Help: "Documents currently held by the corpus store",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAnswer records metrics for a finished answer.
func RecordAnswer(status string, duration float64, documents int, confidence float64) {
	AnswersTotal.WithLabelValues(status).Inc()
	AnswerDuration.WithLabelValues(status).Observe(duration)
	DocumentsRetrieved.Observe(float64(documents))
	AnswerConfidence.Observe(confidence)
}

// RecordLLMCompletion records metrics for an LLM completion.
func RecordLLMCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCompletionDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
