// Package main is the entry point for the openvault CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/mcpserver"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/retrieval"
	"github.com/vadash/openvault-sub001/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "openvault",
		Short:         "Token-budgeted memory retrieval for long-running conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Override the data directory")
	root.AddCommand(versionCmd(), serveCmd(), retrieveCmd(), mcpCmd(), importCmd(), configCmd())
	return root
}

// openApp builds the application from the persistent flags.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.Open(cmd.Context(), app.Options{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogOutput:  cmd.ErrOrStderr(),
	})
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.Logger.Error("shutdown error", "error", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "openvault %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured modules until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func retrieveCmd() *cobra.Command {
	var (
		query      string
		chatLength int
		stage1     int
		stage2     int
		smart      bool
		pov        string
		explain    bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Select the memories relevant to a query from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			events, err := a.Store.List(cmd.Context())
			if err != nil {
				return err
			}

			r := a.Config().Retrieval
			rc := retrieval.Context{
				RecentMessages: []string{query},
				UserText:       query,
				ChatLength:     chatLength,
				POV:            pov,
				Stage1Budget:   r.Stage1Budget,
				Stage2Budget:   r.Stage2Budget,
				Smart:          r.Smart,
			}
			if !cmd.Flags().Changed("chat-length") {
				rc.ChatLength = retrieval.InferChatLength(events)
			}
			if cmd.Flags().Changed("stage1-budget") {
				rc.Stage1Budget = stage1
			}
			if cmd.Flags().Changed("stage2-budget") {
				rc.Stage2Budget = stage2
			}
			if cmd.Flags().Changed("smart") {
				rc.Smart = smart
			}
			if pov != "" {
				rc.ActiveCharacters = []string{pov}
			}

			res, err := a.Selector().Select(cmd.Context(), rc, events)
			if err != nil {
				return err
			}
			if explain {
				return writeExplain(cmd.OutOrStdout(), res)
			}
			fmt.Fprint(cmd.OutOrStdout(), memory.FormatMemories(res.Memories))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Recent user text to match memories against")
	cmd.Flags().IntVar(&chatLength, "chat-length", 0, "Conversation length in messages (default: one past the newest memory)")
	cmd.Flags().IntVar(&stage1, "stage1-budget", 0, "Token budget for the candidate pool (default from config)")
	cmd.Flags().IntVar(&stage2, "stage2-budget", 0, "Token budget for the final selection (default from config)")
	cmd.Flags().BoolVar(&smart, "smart", false, "Let the configured LLM pick from the candidate pool")
	cmd.Flags().StringVar(&pov, "pov", "", "Point-of-view character")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the full ranking with score breakdowns as JSON")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

// explainOutput is printed by retrieve --explain.
type explainOutput struct {
	Path     retrieval.Path      `json:"path"`
	Stage1   int                 `json:"stage1"`
	Selected []string            `json:"selected"`
	Query    retrieval.QueryInfo `json:"query"`
	Scored   []explainEntry      `json:"scored"`
}

type explainEntry struct {
	ID        string           `json:"id"`
	Summary   string           `json:"summary"`
	Score     float64          `json:"score"`
	Breakdown memory.Breakdown `json:"breakdown"`
}

func writeExplain(w io.Writer, res retrieval.Result) error {
	out := explainOutput{
		Path:     res.Path,
		Stage1:   res.Stage1,
		Selected: make([]string, len(res.Memories)),
		Query:    res.Query,
		Scored:   make([]explainEntry, len(res.Scored)),
	}
	for i, ev := range res.Memories {
		out.Selected[i] = ev.ID
	}
	for i, s := range res.Scored {
		out.Scored[i] = explainEntry{ID: s.Memory.ID, Summary: s.Memory.Summary, Score: s.Score, Breakdown: s.Breakdown}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the retrieve_memories tool over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			r := a.Config().Retrieval
			srv := mcpserver.New(a.Selector(), a.Store, mcpserver.Options{
				Name:    "openvault",
				Version: version,
				Defaults: mcpserver.Defaults{
					Stage1Budget: r.Stage1Budget,
					Stage2Budget: r.Stage2Budget,
					Smart:        r.Smart,
				},
				Logger: a.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func importCmd() *cobra.Command {
	var embed bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store a JSON array of memory events (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			for _, ev := range events {
				if err := a.Store.Put(cmd.Context(), ev); err != nil {
					return fmt.Errorf("storing %s: %w", ev.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d memories (%d stored)\n", len(events), a.Store.Len())

			if !embed {
				return nil
			}
			res, err := a.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d memories (%d failed)\n", res.Attached, res.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&embed, "embed", false, "Embed imported memories with the configured provider")
	return cmd
}

// readEvents decodes a JSON array of events from path, or from stdin when
// path is "-". Null entries are skipped and the rest normalized.
func readEvents(stdin io.Reader, path string) ([]*memory.Event, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck // read-only
		r = f
	}

	var raw []*memory.Event
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	events := make([]*memory.Event, 0, len(raw))
	for _, ev := range raw {
		if ev == nil {
			continue
		}
		ev.Normalize()
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, errors.New("no memories in input")
	}
	return events, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("config", args[0]); err != nil {
					return err
				}
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			cfg := a.Config()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(cfg.Modules))
			for id := range cfg.Modules {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Memories in store: %d\n", a.Store.Len())
			return nil
		},
	})
	return cmd
}
