package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ai-speech-pacing-service/internal/schema"
)

// Readiness reports whether the service accepts new streams.
type Readiness interface {
	Ready() bool
}

// NewRouter constructs the HTTP router for the service: health probes,
// Prometheus metrics and the event schemas.
func NewRouter(ready Readiness, validator *schema.Validator) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/v1/schema", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string][]string{"eventTypes": validator.EventTypes()})
		})
		r.Get("/{eventType}", func(w http.ResponseWriter, req *http.Request) {
			eventType := chi.URLParam(req, "eventType")
			s, ok := validator.Schema(eventType)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": fmt.Sprintf("%v: %q", schema.ErrUnknownEvent, eventType),
				})
				return
			}
			writeJSON(w, http.StatusOK, s)
		})
	})

	return otelhttp.NewHandler(r, "pacing-http",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
