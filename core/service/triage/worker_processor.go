package triage

import (
	"context"
	"fmt"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/core/service/analysis"
	"triage_worker/core/service/classification"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

// AlertSender delivers the attention alert for one message.
type AlertSender interface {
	NotifyMessage(ctx context.Context, msg *domain.Message, body string, analysis *domain.MessageAnalysis, model string) error
}

// Deps are the collaborators of the triage service.
type Deps struct {
	Mailbox    out.Mailbox
	Classifier out.Classifier // may be nil when AI is disabled
	Store      *analysis.Store
	Alerts     AlertSender
	Matcher    *classification.KeywordMatcher
	Ignore     *classification.IgnorePolicy
}

// Config for the triage service.
type Config struct {
	UseAI             bool
	Labels            domain.LabelSet
	ExcludedDomains   []string
	BatchLimit        int
	ReprocessPageSize int
	LookbackHours     int
	Location          *time.Location
}

// Service runs messages through ignore, extraction, keyword, classification,
// notify decision, labeling and delivery.
type Service struct {
	mailbox    out.Mailbox
	classifier out.Classifier
	store      *analysis.Store
	alerts     AlertSender
	matcher    *classification.KeywordMatcher
	ignore     *classification.IgnorePolicy
	policy     *classification.NotifyPolicy
	excluded   classification.DomainSet

	useAI    bool
	labels   domain.LabelSet
	limit    int
	pageSize int
	lookback time.Duration
	loc      *time.Location
	now      func() time.Time
}

var _ in.TriageService = (*Service)(nil)

// NewService creates a new triage service.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.ReprocessPageSize <= 0 {
		cfg.ReprocessPageSize = 100
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 24
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Service{
		mailbox:    deps.Mailbox,
		classifier: deps.Classifier,
		store:      deps.Store,
		alerts:     deps.Alerts,
		matcher:    deps.Matcher,
		ignore:     deps.Ignore,
		policy:     classification.NewNotifyPolicy(deps.Ignore),
		excluded:   classification.NewDomainSet(cfg.ExcludedDomains),
		useAI:      cfg.UseAI && deps.Classifier != nil,
		labels:     cfg.Labels,
		limit:      cfg.BatchLimit,
		pageSize:   cfg.ReprocessPageSize,
		lookback:   time.Duration(cfg.LookbackHours) * time.Hour,
		loc:        cfg.Location,
		now:        time.Now,
	}
}

// ProcessMessage processes one message, storing any analysis under today's date.
func (s *Service) ProcessMessage(ctx context.Context, msg *domain.Message) (bool, error) {
	return s.process(ctx, msg, s.store.Today())
}

func (s *Service) process(ctx context.Context, msg *domain.Message, day string) (bool, error) {
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"message_id": msg.ID,
		"from":       msg.From,
		"subject":    msg.Subject,
	})

	// 무시 대상: 라벨, 분석, 통계, 알림 모두 건너뜀
	if reason, ignored := s.ignore.Reason(msg.From, msg.Subject, msg.Body); ignored {
		metrics.RecordMessage(metrics.OutcomeIgnored)
		log.WithField("reason", reason).Info("完全忽略信件（不標籤、不通知、不統計）")
		return false, nil
	}

	log.Debug("開始分析郵件")
	excluded := s.excluded.ContainsSender(msg.From)
	forwarded := classification.IsForwarded(msg.Subject)
	body := classification.ExtractActualContent(msg.Body)

	result := &domain.MessageAnalysis{
		KeywordsFound: s.matcher.FindMatches(msg.Subject, body, forwarded),
	}
	if result.HasKeywords() {
		log.WithField("keywords", result.KeywordsFound).Info("在郵件中發現關鍵字")
	}

	if s.useAI {
		s.classify(ctx, log, msg, body, day, result)
	}
	s.logAnalysis(log, result, excluded, forwarded)

	notify := s.policy.ShouldNotify(result, msg.From, msg.Subject, body)

	if err := s.applyLabels(ctx, log, msg, result, excluded); err != nil {
		metrics.RecordMessage(metrics.OutcomeFailed)
		return false, err
	}

	if !notify {
		metrics.RecordMessage(metrics.OutcomeSkipped)
		log.Debug("郵件分析完成，未發現需通知的內容")
		return false, nil
	}

	if err := s.alerts.NotifyMessage(ctx, msg, body, result, s.model()); err != nil {
		// 라벨은 유지: 다음 실행에서 재알림하지 않음
		metrics.RecordMessage(metrics.OutcomeFailed)
		log.WithError(err).Error("發送通知到 Slack 失敗")
		return false, nil
	}

	metrics.RecordMessage(metrics.OutcomeNotified)
	return true, nil
}

// classify fills the AI part of the analysis. An absent result means no AI signal.
func (s *Service) classify(ctx context.Context, log *logger.Logger, msg *domain.Message, body, day string, a *domain.MessageAnalysis) {
	res, err := s.classifier.ClassifyMessage(ctx, msg.Subject, body, msg.From)
	if err != nil || res == nil {
		if err != nil && !apperr.HasCode(err, apperr.CodeClassifierUnavailable) {
			log.WithError(err).Warn("AI分析未返回結果，郵件將不被標記為AI建議注意")
		}
		return
	}

	if res.EnforceConsistency() {
		log.Warn("發現不一致判斷：problemDetected=true 但 shouldNotify=false，強制設置 shouldNotify=true")
	}
	a.Result = res
	a.AIDetected = res.ShouldNotify

	if err := s.store.Put(ctx, day, msg.ID, a); err != nil {
		log.WithError(err).Error("failed to store analysis")
	}
}

func (s *Service) applyLabels(ctx context.Context, log *logger.Logger, msg *domain.Message, a *domain.MessageAnalysis, excluded bool) error {
	if err := s.addLabel(ctx, msg, s.labels.Checked); err != nil {
		return err
	}

	if a.HasKeywords() {
		if err := s.addLabel(ctx, msg, s.labels.Keyword); err != nil {
			log.WithError(err).Warn("failed to add keyword label")
		}
	}

	if a.AIDetected {
		if excluded {
			log.Info("郵件被 AI 檢測為需注意，但來自排除網域，不添加標籤")
		} else if err := s.addLabel(ctx, msg, s.labels.AI); err != nil {
			log.WithError(err).Warn("failed to add AI label")
		}
	}
	return nil
}

func (s *Service) addLabel(ctx context.Context, msg *domain.Message, label string) error {
	if err := s.mailbox.AddLabel(ctx, msg.ID, label); err != nil {
		return fmt.Errorf("add label %q to %s: %w", label, msg.ID, err)
	}
	metrics.RecordLabel(label)
	return nil
}

func (s *Service) logAnalysis(log *logger.Logger, a *domain.MessageAnalysis, excluded, forwarded bool) {
	fields := map[string]any{
		"keywords":    a.KeywordsFound,
		"ai_detected": a.AIDetected,
		"excluded":    excluded,
		"forwarded":   forwarded,
	}
	if r := a.Result; r != nil {
		fields["sentiment"] = r.PrimarySentiment
		fields["emotion"] = r.DetailedEmotion
		fields["severity"] = r.Severity
		fields["should_notify"] = r.ShouldNotify
		fields["problem_detected"] = r.ProblemDetected
		fields["promotional"] = r.IsPromotional
		fields["summary"] = r.Summary
	}
	log.WithFields(fields).Info("郵件分析結果")
}

func (s *Service) model() string {
	if s.classifier == nil {
		return ""
	}
	return s.classifier.Model()
}
