package rerank

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnparsable is returned when no selection can be found in a reply.
	ErrUnparsable = errors.New("rerank: unparsable reply")

	// ErrEmptySelection is returned when the reply selects nothing usable,
	// including when every index is out of range.
	ErrEmptySelection = errors.New("rerank: empty selection")
)

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	selectedRe      = regexp.MustCompile(`(?is)selected\W*?\[([^\]]*)\]`)
	numberRe        = regexp.MustCompile(`-?\d+`)
)

// ParseSelection extracts the selected indices from a reranker reply and
// returns them 0-based, in reply order, without duplicates. Indices outside
// [1, count] are discarded. Near-JSON is repaired where possible: code
// fences, surrounding prose, trailing commas, single quotes and bare keys.
func ParseSelection(reply string, count int) ([]int, error) {
	raw, ok := extractSelection(reply)
	if !ok {
		return nil, ErrUnparsable
	}
	if len(raw) == 0 {
		return nil, ErrEmptySelection
	}

	seen := make(map[int]bool, len(raw))
	out := make([]int, 0, len(raw))
	for _, n := range raw {
		if n < 1 || n > count || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n-1)
	}
	if len(out) == 0 {
		return nil, ErrEmptySelection
	}
	return out, nil
}

// extractSelection returns the raw 1-based numbers of the reply. ok is
// false when no selection list was found at all.
func extractSelection(reply string) ([]int, bool) {
	text := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if doc, found := jsonObject(text); found {
		if res := gjson.Get(doc, "selected"); res.IsArray() {
			return numbers(res), true
		}
	}
	if strings.HasPrefix(text, "[") {
		if doc := repair(text); gjson.Valid(doc) {
			return numbers(gjson.Parse(doc)), true
		}
	}

	if m := selectedRe.FindStringSubmatch(text); m != nil {
		var out []int
		for _, s := range numberRe.FindAllString(m[1], -1) {
			if n, err := strconv.Atoi(s); err == nil {
				out = append(out, n)
			}
		}
		return out, true
	}
	return nil, false
}

// jsonObject cuts the outermost braces out of text and repairs them into
// valid JSON.
func jsonObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	doc := repair(text[start : end+1])
	if !gjson.Valid(doc) {
		return "", false
	}
	return doc, true
}

func repair(doc string) string {
	if gjson.Valid(doc) {
		return doc
	}
	if !strings.Contains(doc, `"`) {
		doc = strings.ReplaceAll(doc, "'", `"`)
	}
	doc = bareKeyRe.ReplaceAllString(doc, `$1"$2":`)
	return trailingCommaRe.ReplaceAllString(doc, "$1")
}

// numbers collects integer values from a JSON array, accepting numeric
// strings such as "3".
func numbers(arr gjson.Result) []int {
	var out []int
	for _, v := range arr.Array() {
		switch v.Type {
		case gjson.Number:
			out = append(out, int(v.Int()))
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}
