package memory

// Scored pairs an event with its composite score.
type Scored struct {
	Memory    *Event    `json:"memory"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown records every contribution to a composite score.
type Breakdown struct {
	Importance int     `json:"importance"`
	Distance   int     `json:"distance"`
	Lambda     float64 `json:"lambda"`
	Base       float64 `json:"base"`

	// RecencyPenalty is importance minus the decayed base.
	RecencyPenalty float64 `json:"recency_penalty"`
	// FloorBonus is what the importance-5 floor added on top of Base.
	FloorBonus float64 `json:"floor_bonus"`

	VectorSimilarity float64 `json:"vector_similarity"`
	VectorBonus      float64 `json:"vector_bonus"`

	BM25Raw        float64 `json:"bm25_raw"`
	BM25Normalized float64 `json:"bm25_normalized"`
	BM25Bonus      float64 `json:"bm25_bonus"`

	Total float64 `json:"total"`
}

// Reconstruct sums the components back into a score. It equals Total.
func (b Breakdown) Reconstruct() float64 {
	return float64(b.Importance) - b.RecencyPenalty + b.FloorBonus + b.VectorBonus + b.BM25Bonus
}

// Events strips scores from a scored list, keeping order.
func Events(scored []Scored) []*Event {
	if len(scored) == 0 {
		return nil
	}
	out := make([]*Event, len(scored))
	for i := range scored {
		out[i] = scored[i].Memory
	}
	return out
}
