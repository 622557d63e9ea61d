package scoring_test

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/vadash/openvault-sub001/internal/lexical"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/scoring"
)

const eps = 1e-9

func event(id string, importance, lastMessage int, summary string) *memory.Event {
	ev := memory.NewEvent(summary, importance, lastMessage)
	ev.ID = id
	return ev
}

func ids(scored []memory.Scored) string {
	var s string
	for _, sc := range scored {
		s += sc.Memory.ID
	}
	return s
}

// ---------------------------------------------------------------------------
// Forgetfulness curve
// ---------------------------------------------------------------------------

func TestForgetfulness_ImportanceFiveFloor(t *testing.T) {
	t.Parallel()

	c := scoring.DefaultConstants()
	for _, distance := range []int{0, 10, 500, 100000} {
		ev := event("a", 5, 0, "x")
		b := scoring.Forgetfulness(ev, distance, c)
		if got := b.Base + b.FloorBonus; got < c.Importance5Floor {
			t.Errorf("distance %d: score %v below floor %v", distance, got, c.Importance5Floor)
		}
	}
}

func TestForgetfulness_CloserIsHigher(t *testing.T) {
	t.Parallel()

	c := scoring.DefaultConstants()
	for importance := 1; importance <= 4; importance++ {
		near := scoring.Forgetfulness(event("n", importance, 90, "x"), 100, c)
		far := scoring.Forgetfulness(event("f", importance, 40, "x"), 100, c)
		if near.Base <= far.Base {
			t.Errorf("importance %d: near %v <= far %v", importance, near.Base, far.Base)
		}
	}
}

func TestForgetfulness_NegativeDistanceClamped(t *testing.T) {
	t.Parallel()

	b := scoring.Forgetfulness(event("a", 3, 50, "x"), 10, scoring.DefaultConstants())
	if b.Distance != 0 || b.Base != 3 {
		t.Errorf("Distance = %d, Base = %v; want 0, 3", b.Distance, b.Base)
	}
}

func TestForgetfulness_HigherImportanceDecaysSlower(t *testing.T) {
	t.Parallel()

	c := scoring.DefaultConstants()
	low := scoring.Forgetfulness(event("l", 2, 0, "x"), 60, c)
	high := scoring.Forgetfulness(event("h", 4, 0, "x"), 60, c)

	lowRatio := low.Base / 2
	highRatio := high.Base / 4
	if highRatio <= lowRatio {
		t.Errorf("retention: importance 4 = %v, importance 2 = %v", highRatio, lowRatio)
	}
}

// ---------------------------------------------------------------------------
// Bonuses
// ---------------------------------------------------------------------------

func TestVectorBonus(t *testing.T) {
	t.Parallel()

	s := scoring.DefaultSettings()
	tests := []struct {
		sim  float64
		want float64
	}{
		{-1, 0},
		{0.2, 0},
		{0.5, 0},
		{0.75, 0.7 * 15 * 0.5},
		{1, 0.7 * 15},
	}
	for _, tt := range tests {
		if got := scoring.VectorBonus(tt.sim, s); math.Abs(got-tt.want) > eps {
			t.Errorf("VectorBonus(%v) = %v, want %v", tt.sim, got, tt.want)
		}
	}
}

func TestBonusCap_Randomized(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 42))
	for range 10000 {
		s := scoring.Settings{
			Alpha:                     rng.Float64(),
			CombinedBoostWeight:       rng.Float64() * 100,
			VectorSimilarityThreshold: rng.Float64() * 0.99,
		}
		sim := rng.Float64()*2 - 1
		norm := rng.Float64()

		v := scoring.VectorBonus(sim, s)
		l := scoring.LexicalBonus(norm, s)
		if v < 0 || l < 0 {
			t.Fatalf("negative bonus: vector %v lexical %v (%+v)", v, l, s)
		}
		if v+l > s.CombinedBoostWeight+eps {
			t.Fatalf("bonus %v + %v exceeds boost %v (%+v sim=%v norm=%v)",
				v, l, s.CombinedBoostWeight, s, sim, norm)
		}
	}
}

func TestBonusCap_OutOfRangeSettings(t *testing.T) {
	t.Parallel()

	s := scoring.Settings{Alpha: 3, CombinedBoostWeight: 10, VectorSimilarityThreshold: -1}
	v := scoring.VectorBonus(1, s)
	l := scoring.LexicalBonus(5, s)
	if v+l > 10+eps || v < 0 || l < 0 {
		t.Errorf("vector %v + lexical %v violates cap 10", v, l)
	}
}

// ---------------------------------------------------------------------------
// ScoreMemories
// ---------------------------------------------------------------------------

func TestScoreMemories_RecencyImportanceOrder(t *testing.T) {
	t.Parallel()

	a := event("A", 5, 100, "the bridge collapsed")
	b := event("B", 1, 100, "a merchant sold apples")
	c := event("C", 3, 50, "the storm flooded the valley")

	got := scoring.ScoreMemories(
		[]*memory.Event{a, b, c}, nil, 100, nil,
		scoring.DefaultConstants(), scoring.DefaultSettings(),
	)
	if ids(got) != "ACB" {
		t.Fatalf("order = %s, want ACB", ids(got))
	}
	if math.Abs(got[1].Score-3*math.Exp(-0.05/9*50)) > eps {
		t.Errorf("C score = %v", got[1].Score)
	}
}

func TestScoreMemories_BreakdownReconstructs(t *testing.T) {
	t.Parallel()

	mems := []*memory.Event{
		event("a", 5, 0, "Mara hid the silver key under the bridge"),
		event("b", 2, 30, "the silver coins were counted"),
		event("c", 4, 80, "dragon attacked the northern gate"),
	}
	mems[0].AttachEmbedding([]float32{1, 0, 0})
	mems[1].AttachEmbedding([]float32{0.8, 0.6, 0})
	mems[2].AttachEmbedding([]float32{0, 0, 1})

	got := scoring.ScoreMemories(
		mems, []float32{1, 0.1, 0}, 100,
		lexical.Tokenize("where is the silver key"),
		scoring.DefaultConstants(), scoring.DefaultSettings(),
	)
	for _, sc := range got {
		if math.Abs(sc.Breakdown.Reconstruct()-sc.Score) > eps {
			t.Errorf("%s: reconstruct %v != score %v", sc.Memory.ID, sc.Breakdown.Reconstruct(), sc.Score)
		}
		if sc.Breakdown.VectorBonus+sc.Breakdown.BM25Bonus > 15+eps {
			t.Errorf("%s: bonuses exceed boost weight", sc.Memory.ID)
		}
	}
	if got[0].Memory.ID != "a" {
		t.Errorf("top = %s, want a", got[0].Memory.ID)
	}
	if got[0].Breakdown.BM25Normalized != 1 {
		t.Errorf("best BM25 match normalized = %v, want 1", got[0].Breakdown.BM25Normalized)
	}
}

func TestScoreMemories_StableTies(t *testing.T) {
	t.Parallel()

	mems := []*memory.Event{
		event("x", 3, 10, "one"),
		event("y", 3, 10, "two"),
		event("z", 3, 10, "three"),
	}
	got := scoring.ScoreMemories(mems, nil, 10, nil, scoring.DefaultConstants(), scoring.DefaultSettings())
	if ids(got) != "xyz" {
		t.Errorf("tie order = %s, want xyz", ids(got))
	}
}

func TestScoreMemories_NoSignals(t *testing.T) {
	t.Parallel()

	ev := event("a", 3, 0, "x")
	ev.AttachEmbedding([]float32{1, 1})
	got := scoring.ScoreMemories([]*memory.Event{ev}, nil, 0, nil, scoring.DefaultConstants(), scoring.DefaultSettings())
	if got[0].Breakdown.VectorBonus != 0 || got[0].Breakdown.BM25Bonus != 0 {
		t.Errorf("expected zero bonuses, got %+v", got[0].Breakdown)
	}
}

func TestScoreMemories_Empty(t *testing.T) {
	t.Parallel()

	if got := scoring.ScoreMemories(nil, nil, 0, nil, scoring.DefaultConstants(), scoring.DefaultSettings()); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestInline_Limit(t *testing.T) {
	t.Parallel()

	mems := []*memory.Event{
		event("a", 1, 0, "x"),
		event("b", 5, 0, "x"),
		event("c", 3, 0, "x"),
	}
	got, err := scoring.Inline{}.Score(context.Background(), scoring.Request{
		Memories:   mems,
		ChatLength: 0,
		Constants:  scoring.DefaultConstants(),
		Settings:   scoring.DefaultSettings(),
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if ids(got) != "bc" {
		t.Errorf("got %s, want bc", ids(got))
	}
}

func TestInline_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (scoring.Inline{}).Score(ctx, scoring.Request{}); err == nil {
		t.Error("expected context error")
	}
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	if err := scoring.DefaultSettings().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	bad := scoring.Settings{Alpha: 1.5, CombinedBoostWeight: -1, VectorSimilarityThreshold: 1}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error")
	}
	if err := scoring.DefaultConstants().Validate(); err != nil {
		t.Errorf("default constants invalid: %v", err)
	}
}
