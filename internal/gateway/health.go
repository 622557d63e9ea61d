package gateway

import (
	"net/http"
)

// Reranker states reported by /health.
const (
	rerankerOK          = "ok"
	rerankerCoolingDown = "cooling_down"
	rerankerDisabled    = "disabled"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Memories int    `json:"memories"`
	Reranker string `json:"reranker"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when healthy, 503 while the reranker is cooling down.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Reranker: g.rerankerState(),
		}
		if g.store != nil {
			resp.Memories = g.store.Len()
		}

		status := http.StatusOK
		if resp.Reranker == rerankerCoolingDown {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func (g *Gateway) rerankerState() string {
	switch {
	case g.reranker == nil:
		return rerankerDisabled
	case g.reranker.Available():
		return rerankerOK
	default:
		return rerankerCoolingDown
	}
}
