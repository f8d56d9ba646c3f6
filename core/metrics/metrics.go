// Package metrics exposes process-wide Prometheus metrics for conversations,
// handoffs and response generation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/handoff"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "duet"

// Metrics holds all Prometheus metrics for the process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	ConversationsActive  prometheus.Gauge
	ConversationsTotal   *prometheus.CounterVec
	ConversationDuration prometheus.Histogram

	// Handoff metrics
	HandoffsTotal      *prometheus.CounterVec
	CarriedItems       prometheus.Histogram
	ChannelTagFailures prometheus.Counter

	// Generation metrics
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	GenerationAborts   prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every metric registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	conversationsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Number of running conversations",
		},
	)

	conversationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Total number of finished conversations",
		},
		[]string{"status"},
	)

	conversationDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_duration_seconds",
			Help:      "Conversation duration in seconds",
			Buckets:   []float64{5, 30, 60, 300, 600, 1800, 3600},
		},
	)

	handoffsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of persona activations and rejected transfers",
		},
		[]string{"from", "to", "outcome"},
	)

	carriedItems := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handoff_carried_items",
			Help:      "Items carried over from the previous persona per activation",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 12},
		},
	)

	channelTagFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_tag_failures_total",
			Help:      "Total number of failed room attribute updates",
		},
	)

	generationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of completed response generations",
		},
		[]string{"provider", "status"},
	)

	generationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Response generation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	generationAborts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_aborts_total",
			Help:      "Total number of superseded response generations",
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by tier",
		},
		[]string{"component", "tier"},
	)

	registry.MustRegister(
		conversationsActive,
		conversationsTotal,
		conversationDuration,
		handoffsTotal,
		carriedItems,
		channelTagFailures,
		generationsTotal,
		generationDuration,
		generationAborts,
		errorsTotal,
	)

	return &Metrics{
		registry:             registry,
		ConversationsActive:  conversationsActive,
		ConversationsTotal:   conversationsTotal,
		ConversationDuration: conversationDuration,
		HandoffsTotal:        handoffsTotal,
		CarriedItems:         carriedItems,
		ChannelTagFailures:   channelTagFailures,
		GenerationsTotal:     generationsTotal,
		GenerationDuration:   generationDuration,
		GenerationAborts:     generationAborts,
		ErrorsTotal:          errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHandoff implements handoff.Recorder.
func (m *Metrics) RecordHandoff(_ context.Context, rec handoff.Record) {
	if m == nil {
		return
	}
	from := rec.From
	if from == "" {
		from = "none"
	}
	m.HandoffsTotal.WithLabelValues(from, rec.To, string(rec.Outcome)).Inc()
	if rec.Outcome == handoff.OutcomeActivated {
		m.CarriedItems.Observe(float64(rec.Carried))
	}
	if rec.TagFailed {
		m.ChannelTagFailures.Inc()
	}
}

// RecordConversationStart records a conversation starting.
func (m *Metrics) RecordConversationStart() {
	if m == nil {
		return
	}
	m.ConversationsActive.Inc()
}

// RecordConversationEnd records a conversation ending. A nil error or a
// cancellation counts as a normal end.
func (m *Metrics) RecordConversationEnd(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil && !errors.Is(err, context.Canceled) {
		status = "error"
		m.RecordError("conversation", err)
	}
	m.ConversationsActive.Dec()
	m.ConversationsTotal.WithLabelValues(status).Inc()
	m.ConversationDuration.Observe(duration.Seconds())
}

// RecordGeneration records a finished generation. Aborted generations are
// counted separately and never as errors.
func (m *Metrics) RecordGeneration(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if errors.Is(err, coreerrors.ErrGenerationAbort) || errors.Is(err, context.Canceled) {
		m.GenerationAborts.Inc()
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
		m.RecordError("generation", err)
	}
	m.GenerationsTotal.WithLabelValues(provider, status).Inc()
	m.GenerationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordError counts err under its tier.
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, coreerrors.GetTier(err).String()).Inc()
}
