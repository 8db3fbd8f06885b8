package classification

import (
	"strings"

	"triage_worker/core/domain"
)

// =============================================================================
// Ignore Policy
// =============================================================================

// IgnorePolicy decides which messages are skipped entirely.
type IgnorePolicy struct {
	ignoredDomains DomainSet
	bodyPhrases    []string
	senderRules    []domain.SenderRule
}

// NewIgnorePolicy creates the policy from its three rule lists.
func NewIgnorePolicy(ignoredDomains, bodyPhrases []string, senderRules []domain.SenderRule) *IgnorePolicy {
	return &IgnorePolicy{
		ignoredDomains: NewDomainSet(ignoredDomains),
		bodyPhrases:    bodyPhrases,
		senderRules:    senderRules,
	}
}

// ShouldIgnore reports whether any ignore condition holds.
func (p *IgnorePolicy) ShouldIgnore(from, subject, body string) bool {
	_, ignored := p.Reason(from, subject, body)
	return ignored
}

// Reason names the first ignore condition that holds.
func (p *IgnorePolicy) Reason(from, subject, body string) (string, bool) {
	if p.ignoredDomains.ContainsSender(from) {
		return "ignored domain " + SenderDomain(from), true
	}
	for _, rule := range p.senderRules {
		if senderRuleMatches(rule, from, subject) {
			return "sender rule " + rule.Name, true
		}
	}
	for _, phrase := range p.bodyPhrases {
		if phrase != "" && strings.Contains(body, phrase) {
			return "body phrase " + phrase, true
		}
	}
	return "", false
}

func senderRuleMatches(rule domain.SenderRule, from, subject string) bool {
	if len(rule.SenderContains) == 0 || !containsAny(from, rule.SenderContains) {
		return false
	}
	if rule.SubjectPrefix != "" && !strings.HasPrefix(subject, rule.SubjectPrefix) {
		return false
	}
	if rule.SubjectSuffix != "" && !strings.HasSuffix(subject, rule.SubjectSuffix) {
		return false
	}
	if len(rule.SubjectContains) > 0 && !containsAny(subject, rule.SubjectContains) {
		return false
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
