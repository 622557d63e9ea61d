package budget_test

import (
	"slices"
	"testing"

	"github.com/vadash/openvault-sub001/internal/budget"
)

// Compile-time interface guard: CharEstimator must satisfy TokenEstimator.
var _ budget.TokenEstimator = (*budget.CharEstimator)(nil)

// ---------------------------------------------------------------------------
// CharEstimator
// ---------------------------------------------------------------------------

func TestNewCharEstimator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		charsPerToken float64
		wantRatio     float64
	}{
		{name: "valid_ratio", charsPerToken: 3.5, wantRatio: 3.5},
		{name: "zero_defaults", charsPerToken: 0, wantRatio: budget.DefaultCharsPerToken},
		{name: "negative_defaults", charsPerToken: -2, wantRatio: budget.DefaultCharsPerToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			est := budget.NewCharEstimator(tt.charsPerToken)
			if est.CharsPerToken != tt.wantRatio {
				t.Errorf("NewCharEstimator(%v).CharsPerToken = %v, want %v",
					tt.charsPerToken, est.CharsPerToken, tt.wantRatio)
			}
		})
	}
}

func TestCharEstimator_Estimate(t *testing.T) {
	t.Parallel()

	est := budget.NewCharEstimator(4)
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 2},
		{"abcdefgh", 3},
		{"дракон", 2}, // 6 runes, 12 bytes
	}
	for _, tt := range tests {
		if got := est.Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Fit
// ---------------------------------------------------------------------------

func TestFit(t *testing.T) {
	t.Parallel()

	identity := func(n int) int { return n }

	tests := []struct {
		name  string
		items []int
		limit int
		want  []int
	}{
		{"all fit", []int{1, 2, 3}, 10, []int{1, 2, 3}},
		{"exact fit", []int{2, 3, 5}, 10, []int{2, 3, 5}},
		{"stops at first overflow", []int{4, 7, 1}, 10, []int{4}},
		{"first too large", []int{11, 1}, 10, nil},
		{"zero limit", []int{1}, 0, nil},
		{"negative limit", []int{1}, -5, nil},
		{"empty", nil, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := budget.Fit(tt.items, tt.limit, identity)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Fit(%v, %d) = %v, want %v", tt.items, tt.limit, got, tt.want)
			}
		})
	}
}

func TestFit_ResultDoesNotAliasTail(t *testing.T) {
	t.Parallel()

	items := []int{1, 1, 5}
	got := budget.Fit(items, 2, func(n int) int { return n })
	got = append(got, 9)
	if items[2] != 5 {
		t.Error("append to result overwrote source slice")
	}
}

func TestTotal(t *testing.T) {
	t.Parallel()

	if got := budget.Total([]string{"ab", "cde"}, func(s string) int { return len(s) }); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
}
