// Package server exposes project summaries over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/metrics"
	"github.com/roach88/mdstats/internal/summary"
)

// Summarizer computes project summaries; see summary.Service.
type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) (metrics.Summary, error)
}

// ReadyFunc reports whether the backing store is reachable.
type ReadyFunc func(ctx context.Context) error

// Config holds handler-specific configuration
type Config struct {
	// RequestTimeout bounds one summary request. Zero means no limit
	// beyond the client connection.
	RequestTimeout time.Duration
}

// Handler handles HTTP requests for mdstats
type Handler struct {
	summarizer Summarizer
	ready      ReadyFunc
	cfg        Config
	logger     *slog.Logger

	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHandler creates a new HTTP handler. Metrics are registered on reg.
func NewHandler(s Summarizer, ready ReadyFunc, cfg Config, logger *slog.Logger, reg *prometheus.Registry) *Handler {
	return &Handler{
		summarizer: s,
		ready:      ready,
		cfg:        cfg,
		logger:     logger,
		gatherer:   reg,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdstats",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mdstats",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/projects/summary", h.instrument("summary", h.SummaryHandler)).Methods("GET")
	r.HandleFunc("/ready", h.instrument("ready", h.ReadyHandler)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// SummaryHandler answers GET /projects/summary?query=F&query=G.
func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}

	req := summary.Request{
		Queries: r.URL.Query()["query"],
		Host:    r.Host,
	}
	sum, err := h.summarizer.Summarize(ctx, req)
	if err != nil {
		if summary.IsClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("summary request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, sum.IRObject())
}

// ReadyHandler answers GET /ready.
func (h *Handler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("not ready", "err", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		h.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		h.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ir.IRObject{"error": ir.IRString(msg)})
}

func writeJSON(w http.ResponseWriter, code int, body ir.IRObject) {
	data, err := ir.MarshalCanonical(body)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}
