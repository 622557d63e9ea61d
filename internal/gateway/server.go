package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if g.metrics != nil {
		r.Use(g.metrics.instrument)
	}

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metricsHandler())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		limiter := g.newLimiter()
		if limiter != nil {
			r.With(rateLimitMiddleware(limiter, g.logger)).Post("/v1/retrieve", g.handleRetrieve())
		} else {
			r.Post("/v1/retrieve", g.handleRetrieve())
		}
		r.Get("/v1/stream", g.handleStream(limiter))
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Get("/modules", g.handleListModules())
			r.Get("/memories", g.handleListMemories())
			r.Post("/memories", g.handleImportMemories())
			r.Get("/memories/{id}", g.handleGetMemory())
			r.Delete("/memories/{id}", g.handleDeleteMemory())
		})
	})

	return r
}

// newLimiter returns the limiter shared by the retrieve routes, or nil
// when limiting is off.
func (g *Gateway) newLimiter() *rateLimiter {
	if g.config.RateLimit.RequestsPerMin <= 0 {
		return nil
	}
	return newRateLimiter(g.config.RateLimit.RequestsPerMin, time.Minute)
}

func (g *Gateway) metricsHandler() http.Handler {
	gatherer := g.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
