package querycontext

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/vadash/openvault-sub001/internal/lexical"
)

// DefaultChunkSize is the embedding input length used when the provider
// does not report one.
const DefaultChunkSize = 1000

// excerptShares is the share of each message kept in the embedding query,
// newest first. Messages past the end use the last share.
var excerptShares = []float64{1, 0.6, 0.3}

// BuildEmbeddingQuery builds the text to embed for a retrieval call. It
// takes the newest non-duplicate messages, keeping more of each the more
// recent it is, then appends the top entities as anchors. The result never
// exceeds chunkSize runes.
func BuildEmbeddingQuery(messages []string, qc Context, chunkSize int, cfg Config) string {
	cfg = cfg.withDefaults()
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var parts []string
	seen := make(map[string]struct{})
	for i := len(messages) - 1; i >= 0 && len(parts) < cfg.QueryMessages; i-- {
		msg := strings.TrimSpace(messages[i])
		if msg == "" {
			continue
		}
		key := strings.ToLower(msg)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		share := excerptShares[min(len(parts), len(excerptShares)-1)]
		parts = append(parts, excerpt(msg, share))
	}
	text := strings.Join(parts, "\n")

	var anchor string
	if len(qc.Entities) > 0 {
		anchor = "Entities: " + strings.Join(qc.Entities, ", ")
	}

	switch {
	case anchor == "":
		return truncateRunes(text, chunkSize)
	case text == "":
		return truncateRunes(anchor, chunkSize)
	}

	room := chunkSize - utf8.RuneCountInString(anchor) - 1
	if room <= 0 {
		return truncateRunes(text+"\n"+anchor, chunkSize)
	}
	return truncateRunes(text, room) + "\n" + anchor
}

// BuildBM25Tokens tokenizes userText and appends each entity's tokens
// ceil(weight·BoostFactor) times so entities weigh more in BM25.
func BuildBM25Tokens(userText string, qc Context, cfg Config) []string {
	cfg = cfg.withDefaults()

	tokens := lexical.Tokenize(userText)
	for _, ent := range qc.Entities {
		entTokens := lexical.Tokenize(ent)
		if len(entTokens) == 0 {
			continue
		}
		repeat := int(math.Ceil(qc.Weights[ent] * cfg.BoostFactor))
		for range repeat {
			tokens = append(tokens, entTokens...)
		}
	}
	return tokens
}

func excerpt(s string, share float64) string {
	if share >= 1 {
		return s
	}
	n := utf8.RuneCountInString(s)
	keep := int(math.Ceil(float64(n)*share - 1e-9))
	return strings.TrimSpace(truncateRunes(s, keep))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
