// Package metrics exposes Prometheus collectors for the QA pipeline.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess     = "success"
	outcomeError       = "error"
	outcomeRateLimited = "rate_limited"
)

type rateLimited interface {
	IsRateLimited() bool
}

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Document metrics
	DocumentsIngestedTotal    *prometheus.CounterVec
	DocumentIngestionDuration *prometheus.HistogramVec
	FragmentsPerDocument      prometheus.Histogram

	// Session metrics
	ActiveSessions prometheus.GaugeFunc

	// Model metrics
	ModelAnswersTotal   *prometheus.CounterVec
	ModelAnswerDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. activeSessions is sampled on every
// scrape so sessions removed by expiry are reflected without extra calls.
func New(reg prometheus.Registerer, namespace string, activeSessions func() int) *Metrics {
	factory := promauto.With(reg)
	if activeSessions == nil {
		activeSessions = func() int { return 0 }
	}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DocumentsIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "ingested_total",
				Help:      "Total number of uploaded documents by media type and outcome",
			},
			[]string{"media_type", "outcome"},
		),

		DocumentIngestionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "ingestion_duration_seconds",
				Help:      "Time spent extracting and indexing a document",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"media_type"},
		),

		FragmentsPerDocument: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "fragments",
				Help:      "Number of fragments produced per document",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		ActiveSessions: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Current number of open sessions",
			},
			func() float64 { return float64(activeSessions()) },
		),

		ModelAnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "models",
				Name:      "answers_total",
				Help:      "Total number of model answers by model and outcome (success, error, rate_limited)",
			},
			[]string{"model", "outcome"},
		),

		ModelAnswerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "models",
				Name:      "answer_duration_seconds",
				Help:      "Latency of model calls in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeSuccess
}

// DocumentIngested records the outcome of an upload.
func (m *Metrics) DocumentIngested(mediaType string, fragments int, err error, took time.Duration) {
	m.DocumentsIngestedTotal.WithLabelValues(mediaType, outcome(err)).Inc()
	m.DocumentIngestionDuration.WithLabelValues(mediaType).Observe(took.Seconds())
	if err == nil {
		m.FragmentsPerDocument.Observe(float64(fragments))
	}
}

// ModelAnswered records a single model call. Calls rejected by the provider's
// rate limiter get their own outcome.
func (m *Metrics) ModelAnswered(model string, err error, took time.Duration) {
	result := outcome(err)
	var rl rateLimited
	if errors.As(err, &rl) && rl.IsRateLimited() {
		result = outcomeRateLimited
	}
	m.ModelAnswersTotal.WithLabelValues(model, result).Inc()
	m.ModelAnswerDuration.WithLabelValues(model).Observe(took.Seconds())
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)

			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, route, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
