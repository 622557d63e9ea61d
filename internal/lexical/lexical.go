// Package lexical implements the text side of memory ranking: tokenization
// with stopword filtering, BM25 over a candidate batch, and cosine
// similarity between embedding vectors.
package lexical

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinTokenLength is the shortest token (in runes) that survives tokenization.
// Anything of this length or shorter is dropped.
const MinTokenLength = 2

var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// Tokenize lowercases text and splits it into word tokens. Tokens of two
// runes or fewer and stopwords are removed. Order and duplicates are kept.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= MinTokenLength {
			continue
		}
		if IsStopword(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
