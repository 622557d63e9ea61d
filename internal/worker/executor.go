// Package worker runs memory scoring on a dedicated goroutine. The goroutine
// keeps its own copy of the memory set and tokenized summaries, so repeated
// calls with unchanged memories skip copying and re-tokenizing them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/scoring"
)

var (
	// ErrBusy is returned when Score is called while another call on the
	// same executor has not returned yet.
	ErrBusy = errors.New("worker: scoring request already in flight")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("worker: executor closed")
)

// Stats are cumulative executor counters.
type Stats struct {
	Calls     uint64 `json:"calls"`
	Refreshes uint64 `json:"refreshes"`
	Failures  uint64 `json:"failures"`
}

// Executor owns one scoring goroutine and its content cache.
// At most one Score call may be outstanding at a time.
type Executor struct {
	requests  chan Request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	inflight atomic.Bool

	// Client-side view of what the goroutine has cached. Only touched by
	// the caller holding inflight.
	primed      bool
	fingerprint uint64
	positions   map[*memory.Event]int

	calls     atomic.Uint64
	refreshes atomic.Uint64
	failures  atomic.Uint64
}

// Compile-time interface check.
var _ scoring.Scorer = (*Executor)(nil)

// New starts an executor. Call Close to stop its goroutine.
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		requests: make(chan Request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With("component", "worker"),
	}
	go e.loop()
	return e
}

// Score implements scoring.Scorer. The memory set is copied to the scoring
// goroutine when req.Changed is set or its content fingerprint differs from
// the last copy sent. Returned results point at req.Memories.
func (e *Executor) Score(ctx context.Context, req scoring.Request) ([]memory.Scored, error) {
	if !e.inflight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.inflight.Store(false)

	select {
	case <-e.quit:
		return nil, ErrClosed
	default:
	}
	e.calls.Add(1)

	msg := Request{
		Changed:        req.Changed,
		QueryEmbedding: slices.Clone(req.QueryEmbedding),
		ChatLength:     req.ChatLength,
		Limit:          req.Limit,
		Constants:      req.Constants,
		Settings:       req.Settings,
		QueryTokens:    slices.Clone(req.QueryTokens),
		reply:          make(chan Response, 1),
	}

	fp := Fingerprint(req.Memories)
	refresh := req.Changed || !e.primed || fp != e.fingerprint
	var positions map[*memory.Event]int
	if refresh {
		msg.Memories = make([]*memory.Event, len(req.Memories))
		positions = make(map[*memory.Event]int, len(req.Memories))
		for i, ev := range req.Memories {
			c := ev.Clone()
			msg.Memories[i] = c
			positions[c] = i
		}
	}

	select {
	case e.requests <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.quit:
		return nil, ErrClosed
	}

	if refresh {
		e.primed = true
		e.fingerprint = fp
		e.positions = positions
		e.refreshes.Add(1)
	}

	select {
	case resp := <-msg.reply:
		if !resp.Success {
			e.failures.Add(1)
			return nil, fmt.Errorf("worker: scoring failed: %s", resp.Error)
		}
		return e.remap(resp.Results, req.Memories)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrClosed
	}
}

// remap points results back at the caller's events.
func (e *Executor) remap(results []memory.Scored, originals []*memory.Event) ([]memory.Scored, error) {
	for i := range results {
		pos, ok := e.positions[results[i].Memory]
		if !ok || pos >= len(originals) {
			e.failures.Add(1)
			return nil, errors.New("worker: result does not match cached memory set")
		}
		results[i].Memory = originals[pos]
	}
	return results, nil
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Calls:     e.calls.Load(),
		Refreshes: e.refreshes.Load(),
		Failures:  e.failures.Load(),
	}
}

// Close stops the scoring goroutine and waits for it to exit.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
	return nil
}

func (e *Executor) loop() {
	defer close(e.done)

	var (
		cached []*memory.Event
		docs   [][]string
	)
	for {
		select {
		case <-e.quit:
			return
		case req := <-e.requests:
			if req.Memories != nil {
				cached = req.Memories
				docs = scoring.TokenizeAll(cached)
				e.logger.Debug("worker: cache refreshed", "memories", len(cached), "changed", req.Changed)
			}
			req.reply <- e.handle(req, cached, docs)
		}
	}
}

func (e *Executor) handle(req Request, cached []*memory.Event, docs [][]string) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("worker: scoring panicked", "panic", r)
			resp = Response{Error: fmt.Sprint(r)}
		}
	}()

	results := scoring.Run(scoring.Request{
		Memories:       cached,
		QueryEmbedding: req.QueryEmbedding,
		ChatLength:     req.ChatLength,
		QueryTokens:    req.QueryTokens,
		Constants:      req.Constants,
		Settings:       req.Settings,
		Limit:          req.Limit,
	}, docs)
	return Response{Success: true, Results: results}
}
