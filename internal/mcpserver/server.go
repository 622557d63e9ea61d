// Package mcpserver exposes memory retrieval as a Model Context Protocol
// tool over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/retrieval"
)

// ToolName is the name of the retrieval tool.
const ToolName = "retrieve_memories"

// Defaults fill tool arguments the caller leaves out.
type Defaults struct {
	Stage1Budget int
	Stage2Budget int
	Smart        bool
}

// Options configures a Server.
type Options struct {
	Name     string
	Version  string
	Defaults Defaults
	Logger   *slog.Logger
}

// Server answers retrieve_memories calls from the memories in a store.
type Server struct {
	selector retrieval.Selector
	store    memory.Store
	defaults Defaults
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New creates a Server backed by selector and store.
func New(selector retrieval.Selector, store memory.Store, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "openvault"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		selector: selector,
		store:    store,
		defaults: opts.Defaults,
		logger:   opts.Logger.With("component", "mcpserver"),
	}
	s.mcp = server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false))
	s.mcp.AddTool(retrieveTool(), s.handleRetrieve)
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC on in and out until ctx is done or in closes.
// Diagnostics go to the logger since out carries the protocol.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(logWriter{s.logger}, "", 0))

	s.logger.Info("mcpserver: serving on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

func retrieveTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Return the stored memories most relevant to the query, ranked by importance, recency and similarity, within a token budget."),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("Recent user text the memories should relate to.")),
		mcp.WithNumber("chat_length",
			mcp.Description("Current conversation length in messages. Defaults to one past the newest memory.")),
		mcp.WithNumber("stage1_budget",
			mcp.Description("Token budget for the candidate pool.")),
		mcp.WithNumber("stage2_budget",
			mcp.Description("Token budget for the final selection.")),
		mcp.WithBoolean("smart",
			mcp.Description("Let an LLM pick from the candidate pool.")),
		mcp.WithString("pov",
			mcp.Description("Point-of-view character; secret memories they did not witness are hidden.")),
	)
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var candidates []*memory.Event
	if s.store != nil {
		candidates, err = s.store.List(ctx)
		if err != nil {
			s.logger.Error("mcpserver: listing memories failed", "error", err)
			return mcp.NewToolResultError("loading memories failed"), nil
		}
	}

	rc := retrieval.Context{
		RecentMessages: []string{query},
		UserText:       query,
		ChatLength:     req.GetInt("chat_length", retrieval.InferChatLength(candidates)),
		POV:            req.GetString("pov", ""),
		Stage1Budget:   req.GetInt("stage1_budget", s.defaults.Stage1Budget),
		Stage2Budget:   req.GetInt("stage2_budget", s.defaults.Stage2Budget),
		Smart:          req.GetBool("smart", s.defaults.Smart),
	}
	if rc.POV != "" {
		rc.ActiveCharacters = []string{rc.POV}
	}

	res, err := s.selector.Select(ctx, rc, candidates)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Debug("mcpserver: retrieved memories", "selected", len(res.Memories), "path", res.Path)
	if len(res.Memories) == 0 {
		return mcp.NewToolResultText("No relevant memories."), nil
	}
	return mcp.NewToolResultText(memory.FormatMemories(res.Memories)), nil
}

// logWriter adapts the stdio server's log.Logger output to slog.
type logWriter struct{ logger *slog.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Warn("mcpserver: transport error", "detail", string(p))
	return len(p), nil
}
