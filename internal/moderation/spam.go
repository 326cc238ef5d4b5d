package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Flood thresholds. A run of identical characters at or above charRunLimit,
// or the same word repeated consecutively wordRunLimit times, reads as
// keyboard mashing rather than conversation.
const (
	charRunLimit = 5
	wordRunLimit = 3
)

// phonePattern matches common phone formats (+34 612 345 678,
// (555) 123-4567, 555.123.4567). It is anchored to whitespace so digit runs
// inside normal text like "bake at 180 degrees" stay clean. URLs are not
// screened: sharing recipe links is a normal use of the room.
var phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)

type spamCheck struct {
	name  string
	match func(string) bool
}

// spamChecks run in order; the first hit wins and its name becomes the
// reported term.
var spamChecks = []spamCheck{
	{name: "phone", match: phonePattern.MatchString},
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// hasCharFlood scans for a run of identical characters. RE2 has no
// backreferences, so a linear scan it is.
func hasCharFlood(text string) bool {
	run := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
			if run+1 >= charRunLimit {
				return true
			}
			continue
		}
		run = 0
		prev = r
	}
	return false
}

// hasWordFlood scans for the same word repeated back to back, ignoring case.
func hasWordFlood(text string) bool {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < wordRunLimit {
		return false
	}

	run := 1
	prev := strings.ToLower(words[0])
	for _, w := range words[1:] {
		lower := strings.ToLower(w)
		if lower == prev {
			run++
			if run >= wordRunLimit {
				return true
			}
			continue
		}
		run = 1
		prev = lower
	}
	return false
}

// checkSpamPatterns applies the spam checks to the raw text and reports the
// first match, or a non-blocking zero result.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{
				Blocked: true,
				Reason:  "spam_pattern",
				Term:    sc.name,
			}
		}
	}
	return FilterResult{}
}
