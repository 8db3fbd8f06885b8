package classification

import (
	"triage_worker/core/domain"
	"triage_worker/pkg/logger"
)

// =============================================================================
// Notification Policy
// =============================================================================

// NotifyPolicy fuses keyword and AI signals into the notify decision.
type NotifyPolicy struct {
	ignore *IgnorePolicy
}

// NewNotifyPolicy creates the policy. The ignore policy is re-checked as a hard override.
func NewNotifyPolicy(ignore *IgnorePolicy) *NotifyPolicy {
	return &NotifyPolicy{ignore: ignore}
}

// ShouldNotify evaluates, in order: forced ignore, keyword hit, severity-gated AI hit, fallback.
func (p *NotifyPolicy) ShouldNotify(analysis *domain.MessageAnalysis, from, subject, body string) bool {
	if p.ignore != nil && p.ignore.ShouldIgnore(from, subject, body) {
		return false
	}

	promotional := analysis.IsPromotional()

	if analysis.HasKeywords() && !promotional {
		return true
	}

	if analysis.AIDetected && analysis.Result != nil {
		if analysis.Result.Severity.Escalated() {
			return true
		}
		logger.WithFields(map[string]any{
			"from":     from,
			"subject":  subject,
			"severity": analysis.Result.Severity,
		}).Info("AI flagged message suppressed by severity gate")
		return false
	}

	return (analysis.HasKeywords() || analysis.AIDetected) && !promotional
}
