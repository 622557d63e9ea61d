// Package backfill attaches embeddings to stored memory events that do not
// have one yet, so they take part in vector scoring.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vadash/openvault-sub001/internal/cron"
	"github.com/vadash/openvault-sub001/internal/embedding"
	"github.com/vadash/openvault-sub001/internal/memory"
)

// Defaults for Options.
const (
	DefaultBatchSize = 32
	DefaultTimeout   = 30 * time.Second
	JobName          = "embedding-backfill"
)

// Options configures a Job.
type Options struct {
	Schedule  string
	BatchSize int
	// Timeout bounds each embedding call.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Result summarizes one run.
type Result struct {
	Attached int
	Failed   int
}

// Job embeds events missing an embedding, batch by batch, in sequence
// order. Each event is attempted at most once per run and an embedding is
// never overwritten.
type Job struct {
	store    memory.Store
	embedder embedding.Embedder
	opts     Options
	logger   *slog.Logger
}

// Compile-time interface check.
var _ cron.Job = (*Job)(nil)

// New creates a backfill job.
func New(store memory.Store, embedder embedding.Embedder, opts Options) *Job {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Job{
		store:    store,
		embedder: embedder,
		opts:     opts,
		logger:   opts.Logger.With("component", "backfill"),
	}
}

// Name implements cron.Job.
func (j *Job) Name() string { return JobName }

// Schedule implements cron.Job.
func (j *Job) Schedule() string { return j.opts.Schedule }

// Run implements cron.Job.
func (j *Job) Run(ctx context.Context) error {
	res, err := j.Backfill(ctx)
	if err != nil {
		return err
	}
	if res.Attached > 0 || res.Failed > 0 {
		j.logger.Info("backfill: run finished", "attached", res.Attached, "failed", res.Failed)
	}
	return nil
}

// Backfill embeds every event currently missing an embedding.
func (j *Job) Backfill(ctx context.Context) (Result, error) {
	var res Result
	if j.embedder == nil {
		return res, nil
	}

	tried := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// Events that failed stay missing, so widen the window past them.
		batch, err := j.store.MissingEmbeddings(ctx, j.opts.BatchSize+len(tried))
		if err != nil {
			return res, fmt.Errorf("backfill: list missing embeddings: %w", err)
		}

		progressed := false
		for _, ev := range batch {
			if tried[ev.ID] {
				continue
			}
			tried[ev.ID] = true
			progressed = true

			if j.embed(ctx, ev) {
				res.Attached++
			} else {
				res.Failed++
			}
		}
		if !progressed {
			return res, nil
		}
	}
}

func (j *Job) embed(ctx context.Context, ev *memory.Event) bool {
	ctx, cancel := context.WithTimeout(ctx, j.opts.Timeout)
	defer cancel()

	vec, err := embedding.EmbedDocument(ctx, j.embedder, ev.Summary)
	if err != nil || len(vec) == 0 {
		j.logger.Warn("backfill: embedding failed", "event", ev.ID, "error", err)
		return false
	}

	ok, err := j.store.AttachEmbedding(ctx, ev.ID, vec)
	if err != nil {
		j.logger.Warn("backfill: attach failed", "event", ev.ID, "error", err)
		return false
	}
	return ok
}
