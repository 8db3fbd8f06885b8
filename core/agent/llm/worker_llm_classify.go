package llm

import (
	"context"
	"strings"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
	"triage_worker/pkg/ratelimit"
	"triage_worker/pkg/resilience"
)

// Daily summary fallbacks
const (
	SummaryAIDisabled = "AI 未能生成分析摘要。"
	SummaryNoAPIKey   = "AI 分析摘要功能暫時不可用（API 金鑰未設置）。"
	SummaryHTTPError  = "AI 無法生成分析（API 錯誤）。"
	SummaryNoContent  = "AI 無法生成有效的分析摘要。"
	SummaryUnexpected = "生成AI分析時發生錯誤。"
)

// ErrorAlerter reports classifier boundary failures on the operational channel.
type ErrorAlerter interface {
	AlertClassifierError(ctx context.Context, message, raw string)
}

// Classifier is the rate-limited classifier client.
type Classifier struct {
	gen     out.TextGenerator
	limiter ratelimit.Limiter
	alerter ErrorAlerter
	enabled bool
}

var _ out.Classifier = (*Classifier)(nil)

// NewClassifier wires a generator behind the limiter. A nil alerter disables alerts.
func NewClassifier(gen out.TextGenerator, limiter ratelimit.Limiter, alerter ErrorAlerter, enabled bool) *Classifier {
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(ratelimit.DefaultRequestsPerWindow)
	}
	return &Classifier{gen: gen, limiter: limiter, alerter: alerter, enabled: enabled}
}

// Model returns the generator's model name.
func (c *Classifier) Model() string {
	return c.gen.Model()
}

// ClassifyMessage classifies one message. Any failure yields a nil result; boundary
// failures are alerted before returning.
func (c *Classifier) ClassifyMessage(ctx context.Context, subject, body, sender string) (*domain.ClassificationResult, error) {
	log := logger.WithContext(ctx).WithFields(map[string]any{"from": sender, "subject": subject})

	if !c.enabled {
		return nil, apperr.ClassifierUnavailable("AI analysis disabled")
	}
	if !c.gen.Available() {
		metrics.RecordClassifier("unavailable")
		log.Info("classifier API key not set, skipping AI analysis")
		return nil, apperr.ClassifierUnavailable("API key not set")
	}

	prompt := BuildClassifyPrompt(subject, body)
	c.throttle(ctx)

	log.Debug("sending classification request to %s", c.gen.Model())
	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		c.fail(ctx, log, err)
		return nil, err
	}

	result, err := ParseClassification(text)
	if err != nil {
		c.fail(ctx, log, err)
		return nil, err
	}

	if result.ProblemDetected && !result.ShouldNotify {
		log.Warn("classifier reported a problem without requesting notification")
	}

	metrics.RecordClassifier("ok")
	log.WithFields(map[string]any{
		"should_notify":    result.ShouldNotify,
		"sentiment":        result.PrimarySentiment,
		"emotion":          result.DetailedEmotion,
		"problem_detected": result.ProblemDetected,
		"severity":         result.Severity,
	}).Info("classification received")
	return result, nil
}

// SummarizeDaily asks for a short plain-text summary of the day's statistics.
func (c *Classifier) SummarizeDaily(ctx context.Context, stats *domain.DailyStatistics) string {
	if !c.enabled {
		return SummaryAIDisabled
	}
	if !c.gen.Available() {
		logger.Info("classifier API key not set, skipping daily summary")
		return SummaryNoAPIKey
	}

	c.throttle(ctx)
	text, err := c.gen.Generate(ctx, BuildSummaryPrompt(stats))
	if err != nil {
		log := logger.WithContext(ctx).WithField("operation", "daily_summary")
		switch {
		case apperr.HasCode(err, apperr.CodeClassifierHTTPError):
			c.fail(ctx, log, err)
			return SummaryHTTPError
		case apperr.HasCode(err, apperr.CodeClassifierParseError):
			log.WithError(err).Warn("daily summary response had no content")
			return SummaryNoContent
		default:
			c.fail(ctx, log, err)
			return SummaryUnexpected
		}
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		return SummaryNoContent
	}
	logger.Info("daily summary generated")
	return summary
}

func (c *Classifier) throttle(ctx context.Context) {
	if waited := c.limiter.Acquire(ctx); waited > 0 {
		metrics.RecordRateLimitWait(waited)
		logger.Debug("rate limiter held classifier call for %s", waited)
	}
}

// fail logs a boundary failure and raises the operational alert.
func (c *Classifier) fail(ctx context.Context, log *logger.Logger, err error) {
	log.WithError(err).Error("classifier call failed")

	if resilience.IsOpenError(err) {
		metrics.RecordClassifier("circuit_open")
		return
	}

	message, raw := err.Error(), ""
	if appErr := apperr.AsAppError(err); apperr.IsAppError(err) {
		message = appErr.Message
		raw, _ = appErr.Details["raw"].(string)
		switch appErr.Code {
		case apperr.CodeClassifierHTTPError:
			metrics.RecordClassifier("http_error")
		case apperr.CodeClassifierParseError:
			metrics.RecordClassifier("parse_error")
		default:
			metrics.RecordClassifier("error")
		}
	} else {
		metrics.RecordClassifier("error")
	}

	if c.alerter != nil {
		c.alerter.AlertClassifierError(ctx, message, raw)
	}
}
