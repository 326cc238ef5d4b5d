// Package moderation provides content filtering for the shared chat room.
// It screens messages for prohibited terms and spam patterns before they are
// persisted and announced.
package moderation

import (
	"strings"
)

// FilterResult is the outcome of screening one piece of text.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_term" or "spam_pattern"
	Term    string // the matched term or pattern name
}

// defaultTerms is the built-in blocklist. Deployments extend it via
// NewFilterWithTerms.
var defaultTerms = []string{
	"idiota",
	"imbecil",
	"estupido",
	"vete a la mierda",
	"hijo de puta",
}

// leetMap folds common character substitutions back to letters so that
// obfuscated spellings still match the blocklist.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'+': 't',
}

// Filter screens text against a term blocklist and the spam patterns.
// A Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{} // single-word terms
	phrases []string            // multi-word terms, matched as substrings
}

// NewFilter creates a filter with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a filter with the given blocklist. Empty and
// whitespace-only terms are ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsRune(term, ' ') {
			f.phrases = append(f.phrases, term)
		} else {
			f.words[term] = struct{}{}
		}
	}
	return f
}

// Empty reports whether the filter has no terms at all.
func (f *Filter) Empty() bool {
	return len(f.words) == 0 && len(f.phrases) == 0
}

// Check screens text and returns a blocking result for the first blocklist
// or spam-pattern match. Clean text returns a zero-value result.
func (f *Filter) Check(text string) FilterResult {
	normalized := normalizeLeet(strings.ToLower(text))

	for _, word := range tokenize(normalized) {
		if _, ok := f.words[word]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_term", Term: word}
		}
	}
	for _, phrase := range f.phrases {
		if strings.Contains(normalized, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_term", Term: phrase}
		}
	}

	// Blocklist passed; run the spam pattern checks on the raw text so URL
	// and phone detection see the original characters.
	return f.checkSpamPatterns(text)
}

// Screen adapts Check to the relay's screener interface.
func (f *Filter) Screen(content string) (bool, string) {
	result := f.Check(content)
	return result.Blocked, result.Term
}

// normalizeLeet folds leetspeak substitutions back to plain letters.
func normalizeLeet(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if folded, ok := leetMap[r]; ok {
			b.WriteRune(folded)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenize splits normalized text into lowercase words, stripping
// punctuation at word boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == 'ñ' || r == 'á' || r == 'é' || r == 'í' || r == 'ó' || r == 'ú' || r == 'ü':
			return false
		}
		return true
	})
}
