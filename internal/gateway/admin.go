package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/memory"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleListModules lists every registered module.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// memoriesResponse lists stored memories.
type memoriesResponse struct {
	Count    int             `json:"count"`
	Missing  int             `json:"missing_embeddings"`
	Memories []*memory.Event `json:"memories"`
}

// handleListMemories returns every stored memory without embeddings.
func (g *Gateway) handleListMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireStore(w) {
			return
		}
		events, err := g.store.List(r.Context())
		if err != nil {
			g.logger.Error("gateway: listing memories failed", "error", err)
			writeError(w, http.StatusInternalServerError, "listing memories failed")
			return
		}
		resp := memoriesResponse{Count: len(events), Memories: withoutEmbeddings(events)}
		for _, ev := range events {
			if !ev.HasEmbedding() {
				resp.Missing++
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleGetMemory returns one memory by ID.
func (g *Gateway) handleGetMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireStore(w) {
			return
		}
		ev, err := g.store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, withoutEmbeddings([]*memory.Event{ev})[0])
	}
}

// importResponse reports how many memories were stored.
type importResponse struct {
	Imported int `json:"imported"`
}

// handleImportMemories stores a JSON array of events. Events keep their
// IDs when given, so re-importing replaces rather than duplicates.
func (g *Gateway) handleImportMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireStore(w) {
			return
		}
		var events []*memory.Event
		body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		if err := json.NewDecoder(body).Decode(&events); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		n := 0
		for _, ev := range events {
			if ev == nil {
				continue
			}
			ev.Normalize()
			if err := g.store.Put(r.Context(), ev); err != nil {
				g.logger.Error("gateway: storing memory failed", "id", ev.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "storing memories failed")
				return
			}
			n++
		}
		writeJSON(w, http.StatusCreated, importResponse{Imported: n})
	}
}

// handleDeleteMemory deletes a memory by its ID.
func (g *Gateway) handleDeleteMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.requireStore(w) {
			return
		}
		if err := g.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			g.storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) requireStore(w http.ResponseWriter) bool {
	if g.store == nil {
		writeError(w, http.StatusServiceUnavailable, "memory store not configured")
		return false
	}
	return true
}

func (g *Gateway) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	g.logger.Error("gateway: store error", "error", err)
	writeError(w, http.StatusInternalServerError, "store error")
}
