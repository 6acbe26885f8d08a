// Package metrics exposes the collector's Prometheus instruments.
//
// Every Metrics value owns its registry, so tests can build as many as they
// like without duplicate-registration panics. Handler serves that registry in
// the exposition format; Middleware records per-route request counts and
// latency using the gorilla/mux path template as the path label.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes recorded in ReportsTotal.
const (
	ResultAccepted = "accepted"
	ResultDropped  = "dropped"
	ResultTooLarge = "too_large"
	ResultError    = "error"
)

// Metrics bundles the collector instruments and their registry.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// ReportsTotal counts POST /v1/msg outcomes by result.
	ReportsTotal *prometheus.CounterVec

	// DroppedTotal counts dropped reports by reason.
	DroppedTotal *prometheus.CounterVec

	// SkippedItemsTotal counts data items removed from admitted reports.
	SkippedItemsTotal *prometheus.CounterVec

	PayloadBytes  prometheus.Histogram
	StreamClients prometheus.Gauge
}

// New creates Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ReportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_reports_total",
			Help: "Reports received on /v1/msg by outcome",
		}, []string{"result"}),
		DroppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_reports_dropped_total",
			Help: "Reports discarded after decoding, by reason",
		}, []string{"reason"}),
		SkippedItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_data_items_skipped_total",
			Help: "Data items removed from admitted reports, by reason",
		}, []string{"reason"}),
		PayloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_payload_bytes",
			Help:    "Size of POST /v1/msg bodies that were read in full",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7),
		}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "collector_stream_clients",
			Help: "Connected /v1/stream WebSocket clients",
		}),
	}
}

// Registry returns the registry the instruments are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter tracks the status code written by the wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
