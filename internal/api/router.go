package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hlsgrab/internal/metrics"
)

// New builds the debug HTTP handler served when a debug listen address is
// configured: liveness and Prometheus metrics for a running capture.
func New(met *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", met.Handler())

	return r
}
