package lexical

import "math"

// BM25 tuning parameters.
const (
	K1 = 1.2
	B  = 0.75
)

// Corpus holds batch-level statistics for BM25. Build it once per candidate
// batch with NewCorpus and reuse it for every document in that batch.
type Corpus struct {
	N         int
	DocFreq   map[string]int
	AvgDocLen float64
}

// NewCorpus computes document frequency per term and the average document
// length over docs.
func NewCorpus(docs [][]string) *Corpus {
	c := &Corpus{
		N:       len(docs),
		DocFreq: make(map[string]int),
	}
	if len(docs) == 0 {
		return c
	}

	total := 0
	for _, doc := range docs {
		total += len(doc)
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			c.DocFreq[term]++
		}
	}
	c.AvgDocLen = float64(total) / float64(len(docs))
	return c
}

// IDF returns ln((N - df + 0.5)/(df + 0.5) + 1).
func (c *Corpus) IDF(term string) float64 {
	df := float64(c.DocFreq[term])
	return math.Log((float64(c.N)-df+0.5)/(df+0.5) + 1)
}

// BM25 scores doc against query. Query terms may repeat; each occurrence
// contributes, which is how callers boost a term.
func (c *Corpus) BM25(query, doc []string) float64 {
	if c == nil || c.N == 0 || c.AvgDocLen == 0 || len(query) == 0 || len(doc) == 0 {
		return 0
	}

	tf := make(map[string]int, len(doc))
	for _, term := range doc {
		tf[term]++
	}

	docLen := float64(len(doc))
	norm := K1 * (1 - B + B*docLen/c.AvgDocLen)

	var score float64
	for _, term := range query {
		f := tf[term]
		if f == 0 {
			continue
		}
		ff := float64(f)
		score += c.IDF(term) * ff * (K1 + 1) / (ff + norm)
	}
	return score
}
