package classification

import (
	"strings"

	"triage_worker/core/domain"
)

// forwardedScopeRunes is how much of a forwarded body is searched for keywords.
const forwardedScopeRunes = 100

var forwardedSubjectMarkers = []string{"Fwd:", "轉寄:", "FW:"}

// IsForwarded reports whether the subject marks a forwarded message.
func IsForwarded(subject string) bool {
	for _, m := range forwardedSubjectMarkers {
		if strings.Contains(subject, m) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(subject), "forwarded")
}

// =============================================================================
// Keyword Matcher
// =============================================================================

// KeywordMatcher evaluates static keyword rules. Matching is case-sensitive.
type KeywordMatcher struct {
	rules []domain.KeywordRule
}

// NewKeywordMatcher creates a matcher; results follow rule order.
func NewKeywordMatcher(rules []domain.KeywordRule) *KeywordMatcher {
	return &KeywordMatcher{rules: rules}
}

// FindMatches returns the labels of every rule found in subject and body.
// A forwarded message is only searched in its subject and the start of its body.
func (m *KeywordMatcher) FindMatches(subject, body string, forwarded bool) []string {
	if forwarded {
		body = truncateRunes(body, forwardedScopeRunes)
	}
	text := subject + " " + body

	var found []string
	for _, rule := range m.rules {
		if len(rule.Terms) == 0 {
			continue
		}
		if containsAll(text, rule.Terms) {
			found = append(found, rule.Label())
		}
	}
	return found
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
