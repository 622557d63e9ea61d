// Package querycontext turns recent dialogue into retrieval queries. It
// extracts weighted entities from the newest messages and uses them to
// enrich both the embedding query and the BM25 token list.
package querycontext

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vadash/openvault-sub001/internal/lexical"
)

// Context is the entity view of the recent dialogue for one retrieval call.
type Context struct {
	// Entities are the top entities, heaviest first.
	Entities []string `json:"entities"`
	// Weights maps each entity in Entities to its cumulative weight.
	Weights map[string]float64 `json:"weights"`
}

var (
	// Latin proper nouns, accented ones included. RE2's \b is ASCII-only,
	// so the leading boundary is explicit and the trailing one is checked
	// in latinNames. An apostrophe after a single capital joins it to the
	// rest (O'Brien); a trailing possessive is left out.
	latinName = regexp.MustCompile(`(?:^|[^\p{L}\p{M}\p{N}])(\p{Lu}(?:['’]\p{Lu})?[\p{Ll}\p{M}]{2,}(?:-\p{Lu}?[\p{Ll}\p{M}]+)*)`)
	// Cyrillic proper nouns need an explicit non-letter boundary.
	cyrillicName = regexp.MustCompile(`(?:^|[^\p{L}])([А-ЯЁ][а-яё]{2,}(?:-[А-ЯЁа-яё]+)*)`)

	quotedSpans = []*regexp.Regexp{
		regexp.MustCompile(`"([^"\n]{3,50})"`),
		regexp.MustCompile(`“([^”\n]{3,50})”`),
		regexp.MustCompile(`«([^»\n]{3,50})»`),
		regexp.MustCompile(`„([^“\n]{3,50})“`),
	}
)

// sentenceOpeners are capitalized at the start of a sentence far more
// often than they name anything.
var sentenceOpeners = map[string]struct{}{
	"suddenly": {}, "yesterday": {}, "today": {}, "tomorrow": {}, "tonight": {},
	"however": {}, "meanwhile": {}, "afterwards": {}, "finally": {}, "later": {},
	"maybe": {}, "perhaps": {}, "actually": {}, "anyway": {}, "still": {},
	"okay": {}, "yes": {}, "well": {}, "sorry": {}, "thanks": {}, "please": {},
	"hello": {}, "hey": {}, "wait": {}, "look": {}, "listen": {}, "sure": {},
	"вдруг": {}, "вчера": {}, "сегодня": {}, "завтра": {}, "потом": {},
	"конечно": {}, "может": {}, "наверное": {}, "однако": {}, "привет": {},
}

// ignored reports whether a capitalized word should not become an entity.
func ignored(word string) bool {
	lower := strings.ToLower(word)
	if _, ok := sentenceOpeners[lower]; ok {
		return true
	}
	return lexical.IsStopword(lower)
}

// latinNames returns the Latin-script names in msg. A match directly
// followed by another letter or digit is part of a longer word and is
// dropped.
func latinNames(msg string) []string {
	var out []string
	for _, loc := range latinName.FindAllStringSubmatchIndex(msg, -1) {
		start, end := loc[2], loc[3]
		first, _ := utf8.DecodeRuneInString(msg[start:])
		if !unicode.Is(unicode.Latin, first) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(msg[end:]); end < len(msg) &&
			(unicode.IsLetter(next) || unicode.IsDigit(next) || unicode.Is(unicode.M, next)) {
			continue
		}
		out = append(out, msg[start:end])
	}
	return out
}

type candidate struct {
	display   string
	weight    float64
	messages  int
	firstSeen int
}

// ExtractEntities scans the newest cfg.Window messages (messages are in
// chronological order, oldest first) for proper nouns and quoted spans.
// Known character names are always included.
func ExtractEntities(messages []string, activeCharacters []string, cfg Config) Context {
	cfg = cfg.withDefaults()

	found := make(map[string]*candidate)
	order := 0
	add := func(display string, weight float64) *candidate {
		key := strings.ToLower(display)
		c, ok := found[key]
		if !ok {
			c = &candidate{display: display, firstSeen: order}
			order++
			found[key] = c
		}
		c.weight += weight
		return c
	}

	scanned := 0
	for i := len(messages) - 1; i >= 0 && scanned < cfg.Window; i-- {
		index := scanned
		scanned++

		weight := max(0, 1-float64(index)*cfg.DecayFactor)
		seen := make(map[*candidate]struct{})
		for _, ent := range entitiesIn(messages[i]) {
			c := add(ent, weight)
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				c.messages++
			}
		}
	}

	if scanned >= cfg.GenericMinMessages {
		limit := float64(scanned) * cfg.GenericRatio
		for key, c := range found {
			if float64(c.messages) > limit {
				delete(found, key)
			}
		}
	}

	for _, name := range activeCharacters {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		add(name, cfg.CharacterWeight)
	}

	ranked := make([]*candidate, 0, len(found))
	for _, c := range found {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(a, b *candidate) int {
		if a.weight != b.weight {
			return cmp.Compare(b.weight, a.weight)
		}
		return cmp.Compare(a.firstSeen, b.firstSeen)
	})
	if len(ranked) > cfg.TopEntities {
		ranked = ranked[:cfg.TopEntities]
	}

	qc := Context{
		Entities: make([]string, len(ranked)),
		Weights:  make(map[string]float64, len(ranked)),
	}
	for i, c := range ranked {
		qc.Entities[i] = c.display
		qc.Weights[c.display] = c.weight
	}
	return qc
}

// entitiesIn returns every entity occurrence in one message, in order of
// kind: Latin names, Cyrillic names, quoted spans.
func entitiesIn(msg string) []string {
	var out []string
	for _, m := range latinNames(msg) {
		if !ignored(m) {
			out = append(out, m)
		}
	}
	for _, m := range cyrillicName.FindAllStringSubmatch(msg, -1) {
		if !ignored(m[1]) {
			out = append(out, m[1])
		}
	}
	for _, re := range quotedSpans {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			if span := strings.TrimSpace(m[1]); span != "" {
				out = append(out, span)
			}
		}
	}
	return out
}
