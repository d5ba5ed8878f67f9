package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/lifecycle"
	"github.com/17ms/zeronote/pkg/metrics"
)

// routes collects the handlers the process serves.
type routes struct {
	Tasks    http.Handler
	Token    http.Handler
	Authn    func(http.Handler) http.Handler
	Health   func(ctx context.Context) error
	Info     func() lifecycle.Info
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

// newRouter mounts:
//
//	GET  /healthz  lifecycle and dependency health
//	GET  /metrics  Prometheus exposition
//	POST /token    authorization code exchange
//	     /api/*    task endpoints behind the authorization middleware
func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, rt.Metrics.Instrument)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apperr.WriteJSON(w, apperr.New(apperr.CodeNotFound, "Not found"))
	})

	r.Get("/healthz", healthHandler(rt.Health, rt.Info))
	if rt.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(rt.Gatherer))
	}
	r.Handle("/token", rt.Token)
	r.With(rt.Authn).Mount("/api", rt.Tasks)
	return r
}

// healthResponse is the /healthz body for a healthy process.
type healthResponse struct {
	Status  string          `json:"status"`
	Service *lifecycle.Info `json:"service,omitempty"`
}

// healthHandler answers 200 with the service info while check passes,
// and otherwise the check's rejection, typically 503.
func healthHandler(check func(ctx context.Context) error, info func() lifecycle.Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			apperr.WriteJSON(w, err)
			return
		}
		body := healthResponse{Status: "ok"}
		if info != nil {
			i := info()
			body.Service = &i
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
