package domain

import "strings"

// KeywordRule is a single term or an AND-combination of terms.
type KeywordRule struct {
	Terms []string `json:"terms" mapstructure:"terms"`
}

// SingleKeyword builds a one-term rule.
func SingleKeyword(term string) KeywordRule {
	return KeywordRule{Terms: []string{term}}
}

// CombinationKeyword builds a rule requiring every term.
func CombinationKeyword(terms ...string) KeywordRule {
	return KeywordRule{Terms: terms}
}

// Label is the text reported when the rule matches, terms joined by " + ".
func (r KeywordRule) Label() string {
	return strings.Join(r.Terms, " + ")
}
