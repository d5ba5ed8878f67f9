// Package metrics defines zeronote's Prometheus collectors. Collectors
// are registered on an injected prometheus.Registerer so tests can use a
// private registry; a nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "zeronote"

// Outcome label values shared by the recording helpers.
const (
	// ResultOK labels a successful operation.
	ResultOK = "ok"

	// ResultError labels a failure without a more specific error code.
	ResultError = "error"
)

// Metrics groups every collector the service records.
type Metrics struct {
	verifications   *prometheus.CounterVec
	keyFetches      *prometheus.CounterVec
	keyFetchLatency prometheus.Histogram
	exchanges       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInflight    prometheus.Gauge
}

// New creates the collectors and registers them on reg (the default
// registerer when nil). Collectors already present on reg are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Bearer token verifications by result code.",
		}, []string{"code"}),
		keyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetches_total",
			Help:      "Signing key set fetches by result.",
		}, []string{"result"}),
		keyFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "jwks_fetch_duration_seconds",
			Help:      "Latency of signing key set fetches.",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_exchanges_total",
			Help:      "Authorization code exchanges by result code.",
		}, []string{"code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
	}

	var err error
	m.verifications, err = register(reg, m.verifications)
	if err != nil {
		return nil, err
	}
	m.keyFetches, err = register(reg, m.keyFetches)
	if err != nil {
		return nil, err
	}
	m.keyFetchLatency, err = register(reg, m.keyFetchLatency)
	if err != nil {
		return nil, err
	}
	m.exchanges, err = register(reg, m.exchanges)
	if err != nil {
		return nil, err
	}
	m.httpRequests, err = register(reg, m.httpRequests)
	if err != nil {
		return nil, err
	}
	m.httpDuration, err = register(reg, m.httpDuration)
	if err != nil {
		return nil, err
	}
	m.httpInflight, err = register(reg, m.httpInflight)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. When an equal collector is already registered
// the existing one is returned so that counts accumulate in one place.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ===========================================================================
// Recording
// ===========================================================================

// Handler serves the metrics gathered by g in the Prometheus exposition
// format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveVerification records one verification; code is ResultOK or the
// error code of the rejection.
func (m *Metrics) ObserveVerification(code string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(code).Inc()
}

// ObserveKeyFetch records one signing key set fetch.
func (m *Metrics) ObserveKeyFetch(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.keyFetches.WithLabelValues(result).Inc()
	m.keyFetchLatency.Observe(d.Seconds())
}

// ObserveExchange records one authorization code exchange.
func (m *Metrics) ObserveExchange(code string) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(code).Inc()
}

// Instrument wraps next with request count, latency and in-flight
// instrumentation. Routes are labelled by their chi pattern so that path
// parameters do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.httpInflight.Dec()
			method := strings.ToUpper(r.Method)
			route := routePattern(r)
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

// ===========================================================================
// HTTP instrumentation internals
// ===========================================================================

// routePattern is the chi pattern that matched r, or "unmatched" for
// requests that fell through to the NotFound handler.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

// WriteHeader records the first status only; later calls are superfluous
// for net/http as well.
func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

// Write implies 200 when no status was written first.
func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
