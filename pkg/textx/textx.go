// Package textx holds the small text helpers shared by the heuristics:
// tokenizing, sentence splitting and token overlap.
package textx

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "will": {},
	"with": {}, "what": {}, "which": {}, "who": {}, "how": {}, "why": {}, "do": {}, "does": {},
	"can": {}, "i": {}, "you": {}, "we": {}, "they": {}, "he": {}, "she": {}, "them": {}, "their": {},
	"there": {}, "these": {}, "those": {}, "into": {}, "about": {}, "so": {}, "than": {}, "then": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "cannot": {}, "without": {}, "neither": {}, "nor": {},
}

// Words splits s into lowercase alphanumeric words. Apostrophes inside words are kept.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Tokens returns the content words of s: lowercase, stopwords and negations removed,
// deduplicated in order of first appearance.
func Tokens(s string) []string {
	words := Words(s)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len(w) < 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		if _, ok := negations[w]; ok {
			continue
		}
		if strings.HasSuffix(w, "n't") {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Negated reports whether s contains a negation word.
func Negated(s string) bool {
	for _, w := range Words(s) {
		if _, ok := negations[w]; ok {
			return true
		}
		if strings.HasSuffix(w, "n't") {
			return true
		}
	}
	return false
}

// Sentences splits s on sentence terminators and newlines, dropping empty pieces.
func Sentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n' || r == ';'
	})
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimLeft(p, "-*•0123456789) \t"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Set builds a lookup set from tokens.
func Set(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Coverage is the fraction of tokens present in set. Empty tokens cover nothing.
func Coverage(tokens []string, set map[string]struct{}) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var hit int
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(tokens))
}

// Jaccard is the Jaccard similarity of two token lists.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa, sb := Set(a), Set(b)
	var inter int
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}
