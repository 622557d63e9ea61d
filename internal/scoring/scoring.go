// Package scoring ranks memory events by a composite of recency decay,
// vector similarity and BM25 relevance. The two relevance bonuses share a
// single boost weight so together they never exceed it.
package scoring

import (
	"context"
	"math"
	"slices"

	"github.com/vadash/openvault-sub001/internal/lexical"
	"github.com/vadash/openvault-sub001/internal/memory"
)

// bm25Epsilon floors the batch maximum used to normalize BM25.
const bm25Epsilon = 1e-9

// Request is one scoring call.
type Request struct {
	Memories       []*memory.Event
	QueryEmbedding []float32
	ChatLength     int
	QueryTokens    []string
	Constants      Constants
	Settings       Settings

	// Limit truncates the ranked result. Zero keeps everything.
	Limit int

	// Changed tells caching scorers the memory set was edited since the
	// previous call. Inline scoring ignores it.
	Changed bool
}

// Scorer ranks a batch of memories.
type Scorer interface {
	Score(ctx context.Context, req Request) ([]memory.Scored, error)
}

// Inline scores on the calling goroutine.
type Inline struct{}

// Compile-time interface check.
var _ Scorer = Inline{}

// Score implements Scorer.
func (Inline) Score(ctx context.Context, req Request) ([]memory.Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Run(req, TokenizeAll(req.Memories)), nil
}

// ScoreMemories scores every memory and returns them sorted by descending
// score. Ties keep input order.
func ScoreMemories(
	memories []*memory.Event,
	queryEmbedding []float32,
	chatLength int,
	queryTokens []string,
	c Constants,
	s Settings,
) []memory.Scored {
	return Run(Request{
		Memories:       memories,
		QueryEmbedding: queryEmbedding,
		ChatLength:     chatLength,
		QueryTokens:    queryTokens,
		Constants:      c,
		Settings:       s,
	}, TokenizeAll(memories))
}

// Run scores req.Memories using pre-tokenized summaries. docs[i] must be the
// tokens of req.Memories[i].Summary.
func Run(req Request, docs [][]string) []memory.Scored {
	if len(req.Memories) == 0 {
		return nil
	}
	s := req.Settings.sanitized()

	corpus := lexical.NewCorpus(docs)
	raw := make([]float64, len(req.Memories))
	batchMax := 0.0
	if len(req.QueryTokens) > 0 {
		for i := range req.Memories {
			raw[i] = corpus.BM25(req.QueryTokens, docs[i])
			batchMax = max(batchMax, raw[i])
		}
	}

	out := make([]memory.Scored, len(req.Memories))
	for i, ev := range req.Memories {
		b := Forgetfulness(ev, req.ChatLength, req.Constants)

		if len(req.QueryEmbedding) > 0 && ev.HasEmbedding() {
			b.VectorSimilarity = lexical.CosineSimilarity(req.QueryEmbedding, ev.Embedding)
			b.VectorBonus = VectorBonus(b.VectorSimilarity, s)
		}

		b.BM25Raw = raw[i]
		b.BM25Normalized = raw[i] / max(batchMax, bm25Epsilon)
		b.BM25Bonus = LexicalBonus(b.BM25Normalized, s)

		b.Total = b.Base + b.FloorBonus + b.VectorBonus + b.BM25Bonus
		out[i] = memory.Scored{Memory: ev, Score: b.Total, Breakdown: b}
	}

	slices.SortStableFunc(out, func(a, b memory.Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out
}

// Forgetfulness computes the decayed base score of ev at chatLength,
// including the importance-5 floor. Relevance fields are left zero.
func Forgetfulness(ev *memory.Event, chatLength int, c Constants) memory.Breakdown {
	importance := memory.ClampImportance(ev.Importance)
	distance := max(0, chatLength-ev.LastMessageID())
	imp := float64(importance)

	lambda := c.BaseLambda / (imp * imp)
	base := imp * math.Exp(-lambda*float64(distance))

	b := memory.Breakdown{
		Importance:     importance,
		Distance:       distance,
		Lambda:         lambda,
		Base:           base,
		RecencyPenalty: imp - base,
	}
	if importance == memory.MaxImportance && base < c.Importance5Floor {
		b.FloorBonus = c.Importance5Floor - base
	}
	return b
}

// VectorBonus maps a cosine similarity onto [0, alpha·boost]. Similarities
// at or below the threshold earn nothing.
func VectorBonus(similarity float64, s Settings) float64 {
	s = s.sanitized()
	if similarity <= s.VectorSimilarityThreshold {
		return 0
	}
	norm := (similarity - s.VectorSimilarityThreshold) / (1 - s.VectorSimilarityThreshold)
	norm = min(norm, 1)
	return s.Alpha * s.CombinedBoostWeight * norm
}

// LexicalBonus maps a batch-normalized BM25 score onto [0, (1-alpha)·boost].
func LexicalBonus(normalized float64, s Settings) float64 {
	s = s.sanitized()
	normalized = min(max(normalized, 0), 1)
	return (1 - s.Alpha) * s.CombinedBoostWeight * normalized
}

// TokenizeAll tokenizes every memory summary.
func TokenizeAll(memories []*memory.Event) [][]string {
	docs := make([][]string, len(memories))
	for i, ev := range memories {
		docs[i] = lexical.Tokenize(ev.Summary)
	}
	return docs
}
