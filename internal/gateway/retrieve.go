package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/retrieval"
)

// RetrieveRequest is the body of POST /v1/retrieve. Memories, when present
// (even as an empty array), replace the configured store as the candidate
// set.
type RetrieveRequest struct {
	retrieval.Context
	Memories []*memory.Event `json:"memories,omitempty"`
}

// RetrieveResponse is the body returned by POST /v1/retrieve.
type RetrieveResponse struct {
	Memories   []*memory.Event `json:"memories"`
	Path       retrieval.Path  `json:"path"`
	Candidates int             `json:"candidates"`
	Stage1     int             `json:"stage1"`
	Explain    *Explain        `json:"explain,omitempty"`
}

// Explain carries the full ranking, returned with ?explain=true.
type Explain struct {
	Query  retrieval.QueryInfo `json:"query"`
	Scored []memory.Scored     `json:"scored"`
}

// handleRetrieve returns an http.HandlerFunc for POST /v1/retrieve.
func (g *Gateway) handleRetrieve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		explain := false
		if v := r.URL.Query().Get("explain"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "explain must be a boolean")
				return
			}
			explain = b
		}

		var req RetrieveRequest
		body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		resp, err := g.retrieve(r.Context(), req, explain)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, retrieval.ErrInvalidContext):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// errLoadCandidates and errRetrieval are the client-facing messages for
// internal failures. Details go to the log.
var (
	errLoadCandidates = errors.New("loading memories failed")
	errRetrieval      = errors.New("retrieval failed")
)

// retrieve runs one selection for req. Errors other than invalid-context
// ones are logged and replaced by a generic message.
func (g *Gateway) retrieve(ctx context.Context, req RetrieveRequest, explain bool) (RetrieveResponse, error) {
	candidates, err := g.candidates(ctx, req.Memories)
	if err != nil {
		g.logger.Error("gateway: loading candidates failed", "error", err)
		return RetrieveResponse{}, errLoadCandidates
	}

	res, err := g.retriever.Select(ctx, req.Context, candidates)
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidContext) {
			return RetrieveResponse{}, err
		}
		g.logger.Error("gateway: retrieval failed", "error", err)
		return RetrieveResponse{}, errRetrieval
	}

	resp := RetrieveResponse{
		Memories:   withoutEmbeddings(res.Memories),
		Path:       res.Path,
		Candidates: len(candidates),
		Stage1:     res.Stage1,
	}
	if explain {
		resp.Explain = &Explain{Query: res.Query, Scored: scoredWithoutEmbeddings(res.Scored)}
	}
	return resp, nil
}

// candidates returns the inline memories, normalized, or the store contents
// when the request carried none.
func (g *Gateway) candidates(ctx context.Context, inline []*memory.Event) ([]*memory.Event, error) {
	if inline != nil {
		out := make([]*memory.Event, 0, len(inline))
		for _, ev := range inline {
			if ev == nil {
				continue
			}
			ev.Normalize()
			out = append(out, ev)
		}
		return out, nil
	}
	if g.store == nil {
		return nil, nil
	}
	return g.store.List(ctx)
}

// withoutEmbeddings copies events and drops their vectors, which are large
// and of no use to API clients.
func withoutEmbeddings(events []*memory.Event) []*memory.Event {
	out := make([]*memory.Event, len(events))
	for i, ev := range events {
		cp := ev.Clone()
		cp.Embedding = nil
		out[i] = cp
	}
	return out
}

func scoredWithoutEmbeddings(scored []memory.Scored) []memory.Scored {
	out := make([]memory.Scored, len(scored))
	for i, s := range scored {
		out[i] = s
		if s.Memory != nil {
			cp := s.Memory.Clone()
			cp.Embedding = nil
			out[i].Memory = cp
		}
	}
	return out
}
