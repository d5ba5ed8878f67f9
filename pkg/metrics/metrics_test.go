package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_RegistersOnInjectedRegistry verifies registration on a private
// registry.
func TestNew_RegistersOnInjectedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveVerification(ResultOK)
	m.ObserveVerification("AUTH_006")
	m.ObserveVerification("AUTH_006")
	m.ObserveKeyFetch(nil, 10*time.Millisecond)
	m.ObserveKeyFetch(errors.New("boom"), time.Millisecond)
	m.ObserveExchange("AUTH_012")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("AUTH_006")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyFetches.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("AUTH_012")))
}

// TestNew_TwiceOnSameRegistryShares verifies that a second New reuses the
// collectors.
func TestNew_TwiceOnSameRegistryShares(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.ObserveExchange(ResultOK)
	second.ObserveExchange(ResultOK)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.exchanges.WithLabelValues(ResultOK)))
}

// TestNilMetricsIsNoop verifies every recorder on a nil receiver.
func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerification(ResultOK)
		m.ObserveKeyFetch(nil, time.Second)
		m.ObserveExchange(ResultOK)
	})

	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Instrument(h))
}

// TestInstrument_LabelsByRoutePattern verifies that path parameters do not
// become label values.
func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/tasks/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInflight))
}

// TestHandler_Exposes verifies the exposition endpoint.
func TestHandler_Exposes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ObserveVerification(ResultOK)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `zeronote_token_verifications_total{code="ok"} 1`))
}
