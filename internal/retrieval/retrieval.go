// Package retrieval selects the memories to inject into the next
// generation request. It scores every candidate, slices the ranking against
// a stage-1 token budget, then narrows it to a stage-2 budget either by
// score or by asking an LLM reranker.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadash/openvault-sub001/internal/budget"
	"github.com/vadash/openvault-sub001/internal/embedding"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/querycontext"
	"github.com/vadash/openvault-sub001/internal/rerank"
	"github.com/vadash/openvault-sub001/internal/scoring"
	"github.com/vadash/openvault-sub001/internal/worker"
)

const tracerName = "github.com/vadash/openvault-sub001/internal/retrieval"

// Path records how a result was selected.
type Path string

// Selection paths.
const (
	PathStage1Empty   Path = "stage1-empty"
	PathSimple        Path = "simple"
	PathSmart         Path = "smart"
	PathSmartSkipped  Path = "smart-skipped"
	PathSmartFallback Path = "smart-fallback"
)

// Default timeouts for the optional providers.
const (
	DefaultEmbedTimeout  = 5 * time.Second
	DefaultRerankTimeout = 20 * time.Second
)

// Options configures an Orchestrator. Embedder and Reranker are optional;
// without them the vector signal contributes nothing and smart mode
// behaves like simple mode.
type Options struct {
	Constants scoring.Constants
	Settings  scoring.Settings
	Query     querycontext.Config

	CharsPerToken float64
	EmbedTimeout  time.Duration
	RerankTimeout time.Duration

	// POVFilter drops candidates the point-of-view character cannot see.
	POVFilter bool

	Embedder embedding.Embedder
	Reranker rerank.Reranker

	// Scorer ranks candidates. Nil scores inline.
	Scorer scoring.Scorer

	Logger  *slog.Logger
	Metrics prometheus.Registerer
	Tracer  trace.Tracer
}

// QueryInfo describes the query built for a call.
type QueryInfo struct {
	Text     string   `json:"text"`
	Tokens   []string `json:"tokens"`
	Entities []string `json:"entities"`
	Embedded bool     `json:"embedded"`
}

// Result is the outcome of Select.
type Result struct {
	// Memories are the selected events in score order. They are the
	// caller's own pointers.
	Memories []*memory.Event
	// Scored is every candidate with its score breakdown, best first.
	Scored []memory.Scored
	// Stage1 is the number of memories that passed the stage-1 budget.
	Stage1 int
	Path   Path
	Query  QueryInfo
}

// Selector runs one retrieval. Orchestrator implements it.
type Selector interface {
	Select(ctx context.Context, rc Context, candidates []*memory.Event) (Result, error)
}

// Orchestrator runs retrievals. It is safe for concurrent use when its
// Scorer is.
type Orchestrator struct {
	opts      Options
	scorer    scoring.Scorer
	estimator budget.TokenEstimator
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

var _ Selector = (*Orchestrator)(nil)

// New creates an Orchestrator, filling unset options with defaults.
func New(opts Options) *Orchestrator {
	if opts.Constants == (scoring.Constants{}) {
		opts.Constants = scoring.DefaultConstants()
	}
	if opts.Settings == (scoring.Settings{}) {
		opts.Settings = scoring.DefaultSettings()
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = DefaultRerankTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	scorer := opts.Scorer
	if scorer == nil {
		scorer = scoring.Inline{}
	}

	return &Orchestrator{
		opts:      opts,
		scorer:    scorer,
		estimator: budget.NewCharEstimator(opts.CharsPerToken),
		metrics:   NewMetrics(opts.Metrics),
		tracer:    opts.Tracer,
		logger:    opts.Logger.With("component", "retrieval"),
	}
}

// Select picks the memories to inject for rc from candidates. Only an
// invalid rc is an error; provider failures degrade the affected signal.
func (o *Orchestrator) Select(ctx context.Context, rc Context, candidates []*memory.Event) (Result, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "retrieval.select", trace.WithAttributes(
		attribute.Int("retrieval.candidates", len(candidates)),
		attribute.Bool("retrieval.smart", rc.Smart),
	))
	defer span.End()

	if err := rc.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	res := o.run(ctx, rc, candidates)
	o.metrics.observe(res, time.Since(start))
	span.SetAttributes(
		attribute.String("retrieval.path", string(res.Path)),
		attribute.Int("retrieval.stage1", res.Stage1),
		attribute.Int("retrieval.selected", len(res.Memories)),
	)
	o.logger.Debug("retrieval: selected memories",
		"candidates", len(candidates),
		"stage1", res.Stage1,
		"selected", len(res.Memories),
		"path", res.Path,
		"embedded", res.Query.Embedded,
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, rc Context, candidates []*memory.Event) Result {
	res := Result{Path: PathStage1Empty}

	if o.opts.POVFilter && rc.POV != "" {
		candidates = visibleTo(candidates, rc.POV)
	}
	if len(candidates) == 0 || rc.Stage1Budget == 0 || rc.Stage2Budget == 0 {
		return res
	}

	res.Query = o.buildQuery(rc)

	scored := o.score(ctx, scoring.Request{
		Memories:       candidates,
		QueryEmbedding: o.embed(ctx, res.Query.Text),
		ChatLength:     rc.ChatLength,
		QueryTokens:    res.Query.Tokens,
		Constants:      o.opts.Constants,
		Settings:       o.opts.Settings,
		Changed:        rc.MemoriesChanged,
	}, &res.Query)
	res.Scored = scored

	stage1 := budget.Fit(scored, rc.Stage1Budget, o.cost)
	res.Stage1 = len(stage1)
	if len(stage1) == 0 {
		return res
	}

	var final []memory.Scored
	if rc.Smart {
		final, res.Path = o.SelectSmart(ctx, stage1, rc.Stage2Budget)
	} else {
		final, res.Path = o.SelectSimple(stage1, rc.Stage2Budget), PathSimple
	}
	res.Memories = memory.Events(final)
	return res
}

// buildQuery extracts entities and builds the embedding text and the BM25
// tokens. The embedding itself is requested by embed.
func (o *Orchestrator) buildQuery(rc Context) QueryInfo {
	qc := querycontext.ExtractEntities(rc.RecentMessages, rc.ActiveCharacters, o.opts.Query)

	userText := rc.UserText
	if userText == "" && len(rc.RecentMessages) > 0 {
		userText = rc.RecentMessages[len(rc.RecentMessages)-1]
	}

	info := QueryInfo{
		Tokens:   querycontext.BuildBM25Tokens(userText, qc, o.opts.Query),
		Entities: qc.Entities,
	}
	if o.opts.Embedder != nil {
		chunk := embedding.OptimalChunkSize(o.opts.Embedder)
		info.Text = querycontext.BuildEmbeddingQuery(rc.RecentMessages, qc, chunk, o.opts.Query)
	}
	return info
}

// embed returns the query embedding, or nil when no embedder is configured
// or the call fails.
func (o *Orchestrator) embed(ctx context.Context, text string) []float32 {
	if o.opts.Embedder == nil || text == "" {
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "retrieval.embed")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
	defer cancel()

	vec, err := o.opts.Embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, embedding.ErrEmptyText) {
			o.metrics.embedFailures.Inc()
			o.logger.Warn("retrieval: embedding failed", "error", err)
		}
		return nil
	}
	span.SetAttributes(attribute.Int("embedding.dimensions", len(vec)))
	return vec
}

// score ranks candidates with the configured scorer, retrying inline when
// it fails.
func (o *Orchestrator) score(ctx context.Context, req scoring.Request, q *QueryInfo) []memory.Scored {
	q.Embedded = len(req.QueryEmbedding) > 0

	ctx, span := o.tracer.Start(ctx, "retrieval.score", trace.WithAttributes(
		attribute.Int("scoring.memories", len(req.Memories)),
		attribute.Bool("scoring.embedded", q.Embedded),
	))
	defer span.End()

	scored, err := o.scorer.Score(ctx, req)
	if err == nil {
		return scored
	}

	span.RecordError(err)
	o.metrics.scoringFallbacks.Inc()
	if errors.Is(err, worker.ErrBusy) {
		// Overlapping requests are expected; the later one scores inline.
		o.logger.Debug("retrieval: scorer busy, scoring inline")
	} else {
		o.logger.Warn("retrieval: scorer failed, scoring inline", "error", err)
	}
	return scoring.Run(req, scoring.TokenizeAll(req.Memories))
}

// SelectSimple slices stage1 against limit in score order.
func (o *Orchestrator) SelectSimple(stage1 []memory.Scored, limit int) []memory.Scored {
	return budget.Fit(stage1, limit, o.cost)
}

// SelectSmart asks the reranker to pick from stage1 as many memories as fit
// limit on average. It skips the call when everything already fits and
// falls back to SelectSimple whenever the reranker fails or its reply is
// unusable. A pick shorter than the simple selection is topped up from
// stage1 in score order. Selected memories keep their stage-1 order.
func (o *Orchestrator) SelectSmart(ctx context.Context, stage1 []memory.Scored, limit int) ([]memory.Scored, Path) {
	if o.opts.Reranker == nil {
		return o.SelectSimple(stage1, limit), PathSimple
	}

	target := len(stage1)
	if total := budget.Total(stage1, o.cost); total > 0 {
		avg := float64(total) / float64(len(stage1))
		target = int(math.Floor(float64(limit) / avg))
	}
	if len(stage1) <= target {
		return stage1, PathSmartSkipped
	}
	if target < 1 {
		return o.fallback(stage1, limit, "no_room", nil)
	}

	ctx, span := o.tracer.Start(ctx, "retrieval.rerank", trace.WithAttributes(
		attribute.Int("rerank.candidates", len(stage1)),
		attribute.Int("rerank.target", target),
	))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.opts.RerankTimeout)
	defer cancel()

	reply, err := o.opts.Reranker.Rerank(ctx, rerank.BuildPrompt(stage1, target))
	if err != nil {
		span.RecordError(err)
		return o.fallback(stage1, limit, "error", err)
	}

	picked, err := rerank.ParseSelection(reply, len(stage1))
	if err != nil {
		span.RecordError(err)
		reason := "unparsable"
		if errors.Is(err, rerank.ErrEmptySelection) {
			reason = "empty"
		}
		return o.fallback(stage1, limit, reason, err)
	}
	if len(picked) > target {
		picked = picked[:target]
	}
	// Smart mode never returns fewer memories than simple mode would.
	if want := len(o.SelectSimple(stage1, limit)); len(picked) < want {
		picked = o.topUp(stage1, picked, limit, want)
		if len(picked) < want {
			return o.fallback(stage1, limit, "short", nil)
		}
		span.SetAttributes(attribute.Bool("rerank.topped_up", true))
	}
	slices.Sort(picked)

	out := make([]memory.Scored, len(picked))
	for i, idx := range picked {
		out[i] = stage1[idx]
	}
	span.SetAttributes(attribute.Int("rerank.selected", len(out)))
	return out, PathSmart
}

// topUp adds unpicked stage-1 entries in score order while they fit the
// budget left after the picks, until want entries are held.
func (o *Orchestrator) topUp(stage1 []memory.Scored, picked []int, limit, want int) []int {
	chosen := make(map[int]bool, len(picked))
	used := 0
	for _, idx := range picked {
		chosen[idx] = true
		used += o.cost(stage1[idx])
	}
	for i, s := range stage1 {
		if len(picked) >= want {
			break
		}
		if chosen[i] {
			continue
		}
		if c := o.cost(s); used+c <= limit {
			picked = append(picked, i)
			used += c
		}
	}
	return picked
}

func (o *Orchestrator) fallback(stage1 []memory.Scored, limit int, reason string, err error) ([]memory.Scored, Path) {
	o.metrics.smartFallbacks.WithLabelValues(reason).Inc()
	if err != nil {
		o.logger.Warn("retrieval: smart selection failed, using simple", "reason", reason, "error", err)
	} else {
		o.logger.Debug("retrieval: smart selection skipped, using simple", "reason", reason)
	}
	return o.SelectSimple(stage1, limit), PathSmartFallback
}

func (o *Orchestrator) cost(s memory.Scored) int {
	return o.estimator.Estimate(s.Memory.Summary)
}

func visibleTo(events []*memory.Event, pov string) []*memory.Event {
	out := make([]*memory.Event, 0, len(events))
	for _, ev := range events {
		if ev.VisibleTo(pov) {
			out = append(out, ev)
		}
	}
	return out
}
