package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports request-level counters plus the domain counters the
// handlers bump directly.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	questionsTotal    prometheus.Counter
	contextLessTotal  prometheus.Counter
	documentsIngested prometheus.Counter
}

// NewMetrics registers the server metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clipmind",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clipmind",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"route", "method"},
		),
		questionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clipmind",
			Subsystem: "chat",
			Name:      "questions_total",
			Help:      "Questions answered",
		}),
		contextLessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clipmind",
			Subsystem: "chat",
			Name:      "context_less_answers_total",
			Help:      "Answers produced without transcript context",
		}),
		documentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clipmind",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents added to the indexes",
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.questionsTotal,
		m.contextLessTotal,
		m.documentsIngested,
	)
	return m
}

// middleware instruments every route.
func (m *Metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		route := c.Path()
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		m.requestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route, c.Request().Method).Observe(time.Since(start).Seconds())
		return err
	}
}
