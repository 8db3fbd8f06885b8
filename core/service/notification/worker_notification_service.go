package notification

import (
	"context"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

// Config for the notification service.
type Config struct {
	Enabled      bool
	ErrorChannel string // SLACK_LLM_ERROR_CHANNEL
	Location     *time.Location
}

// Service renders alerts and reports and hands them to the chat notifier.
type Service struct {
	notifier     out.Notifier
	enabled      bool
	errorChannel string
	loc          *time.Location
}

// NewService creates a new notification service.
func NewService(notifier out.Notifier, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		notifier:     notifier,
		enabled:      cfg.Enabled && notifier != nil,
		errorChannel: cfg.ErrorChannel,
		loc:          loc,
	}
}

// Enabled reports whether messages are actually delivered.
func (s *Service) Enabled() bool { return s.enabled }

// NotifyMessage sends the attention alert for one message. With delivery disabled it only logs.
func (s *Service) NotifyMessage(ctx context.Context, msg *domain.Message, body string, analysis *domain.MessageAnalysis, model string) error {
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"message_id": msg.ID,
		"from":       msg.From,
		"subject":    msg.Subject,
	})

	if !s.enabled {
		metrics.RecordNotification("disabled")
		log.Info("Slack 通知已停用，跳過通知發送")
		return nil
	}

	if err := s.notifier.Send(ctx, BuildAlert(msg, body, analysis, model, s.loc)); err != nil {
		metrics.RecordNotification("failed")
		return apperr.NotificationDelivery("alert", err)
	}

	metrics.RecordNotification("sent")
	if analysis.HasKeywords() {
		log.WithField("keywords", analysis.KeywordsFound).Info("發送通知成功 (關鍵字)")
	} else {
		log.Info("發送通知成功 (AI 檢測觸發)")
	}
	return nil
}

// SendReport delivers the daily report.
func (s *Service) SendReport(ctx context.Context, report *domain.DailyReport) error {
	if !s.enabled {
		metrics.RecordNotification("disabled")
		logger.WithContext(ctx).Info("Slack 通知已停用，跳過每日統計報告發送")
		return nil
	}

	if err := s.notifier.Send(ctx, BuildReport(report, s.loc)); err != nil {
		metrics.RecordNotification("failed")
		return apperr.NotificationDelivery("report", err)
	}

	metrics.RecordNotification("sent")
	logger.WithContext(ctx).Info("每日統計報告已成功發送到 Slack")
	return nil
}

// AlertClassifierError posts a classifier boundary failure to the error channel.
// Failures here are logged only.
func (s *Service) AlertClassifierError(ctx context.Context, message, raw string) {
	log := logger.WithContext(ctx).WithField("channel", s.errorChannel)
	if !s.enabled {
		log.Warn("LLM error alert suppressed: %s", message)
		return
	}
	if err := s.notifier.Send(ctx, BuildClassifierError(s.errorChannel, message, raw)); err != nil {
		metrics.RecordNotification("failed")
		log.WithError(err).Error("failed to deliver LLM error alert")
		return
	}
	metrics.RecordNotification("sent")
}
