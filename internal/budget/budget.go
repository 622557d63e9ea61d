// Package budget estimates token cost from text length and slices ranked
// lists against a token ceiling.
package budget

import "unicode/utf8"

// DefaultCharsPerToken is used when no ratio is configured.
const DefaultCharsPerToken = 4.0

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a characters-per-token ratio.
// Characters are counted as runes so non-Latin text is not overcounted.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, DefaultCharsPerToken is used.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for text, rounded up.
func (e *CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(float64(n)/e.CharsPerToken) + 1
}

// Fit walks items in order and keeps them while their cumulative cost stays
// within limit. It stops at the first item that does not fit; items are
// never partially included. A non-positive limit yields nil.
func Fit[T any](items []T, limit int, cost func(T) int) []T {
	if limit <= 0 || len(items) == 0 {
		return nil
	}
	used := 0
	for i, it := range items {
		c := cost(it)
		if used+c > limit {
			return items[:i:i]
		}
		used += c
	}
	return items[:len(items):len(items)]
}

// Total sums cost over items.
func Total[T any](items []T, cost func(T) int) int {
	total := 0
	for _, it := range items {
		total += cost(it)
	}
	return total
}
