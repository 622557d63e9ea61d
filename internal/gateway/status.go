package gateway

import (
	"net/http"
	"time"

	"github.com/vadash/openvault-sub001/internal/worker"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   float64       `json:"uptime_seconds"`
	Memories int           `json:"memories"`
	Reranker string        `json:"reranker"`
	Executor *worker.Stats `json:"executor,omitempty"`
	Cache    *CacheStatus  `json:"embedding_cache,omitempty"`
}

// CacheStatus reports query embedding cache counters.
type CacheStatus struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Reranker: g.rerankerState(),
		}
		if g.store != nil {
			resp.Memories = g.store.Len()
		}
		if g.executor != nil {
			stats := g.executor.Stats()
			resp.Executor = &stats
		}
		if g.cache != nil {
			resp.Cache = &CacheStatus{Entries: g.cache.Len(), Hits: g.cache.Hits(), Misses: g.cache.Misses()}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
