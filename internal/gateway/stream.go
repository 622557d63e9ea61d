package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/vadash/openvault-sub001/internal/retrieval"
)

// StreamRequest is one frame sent by a client on GET /v1/stream. Frames
// are answered in order, one StreamResponse each.
type StreamRequest struct {
	ID      string          `json:"id"`
	Explain bool            `json:"explain,omitempty"`
	Request RetrieveRequest `json:"request"`
}

// StreamResponse answers the StreamRequest with the same ID. Exactly one
// of Response and Error is set.
type StreamResponse struct {
	ID       string            `json:"id"`
	Response *RetrieveResponse `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
	// Invalid marks errors caused by the request itself.
	Invalid bool `json:"invalid,omitempty"`
}

// streamSet tracks open stream connections so Stop can close them;
// http.Server.Shutdown does not touch hijacked connections.
type streamSet struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func (s *streamSet) add(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[*websocket.Conn]struct{})
	}
	s.conns[c] = struct{}{}
}

func (s *streamSet) remove(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *streamSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *streamSet) closeAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// handleStream returns the handler for GET /v1/stream, a WebSocket that
// keeps one connection open across retrievals. rl may be nil.
func (g *Gateway) handleStream(rl *rateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		conn.SetReadLimit(g.config.MaxBodyBytes)

		g.streams.add(conn)
		if g.metrics != nil {
			g.metrics.streams.Inc()
		}
		defer func() {
			g.streams.remove(conn)
			if g.metrics != nil {
				g.metrics.streams.Dec()
			}
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		client := clientKey(r)
		g.logger.Debug("gateway: stream opened", "client", client)
		g.streamLoop(r.Context(), conn, client, rl)
		g.logger.Debug("gateway: stream closed", "client", client)
	}
}

func (g *Gateway) streamLoop(ctx context.Context, conn *websocket.Conn, client string, rl *rateLimiter) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			g.sendFrame(ctx, conn, StreamResponse{Error: "expected a text frame", Invalid: true})
			continue
		}

		var req StreamRequest
		if err := json.Unmarshal(data, &req); err != nil {
			g.sendFrame(ctx, conn, StreamResponse{Error: "invalid frame: " + err.Error(), Invalid: true})
			continue
		}
		if rl != nil {
			if ok, _ := rl.allow(client); !ok {
				g.logger.Warn("gateway: rate limited", "client", client, "path", "/v1/stream")
				g.sendFrame(ctx, conn, StreamResponse{ID: req.ID, Error: "rate limit exceeded"})
				continue
			}
		}

		resp, err := g.retrieve(ctx, req.Request, req.Explain)
		if err != nil {
			g.sendFrame(ctx, conn, StreamResponse{
				ID:      req.ID,
				Error:   err.Error(),
				Invalid: errors.Is(err, retrieval.ErrInvalidContext),
			})
			continue
		}
		g.sendFrame(ctx, conn, StreamResponse{ID: req.ID, Response: &resp})
	}
}

func (g *Gateway) sendFrame(ctx context.Context, conn *websocket.Conn, frame StreamResponse) {
	data, err := json.Marshal(frame)
	if err != nil {
		g.logger.Error("gateway: marshal frame failed", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Warn("gateway: write frame failed", "error", err)
	}
}
