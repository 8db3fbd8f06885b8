package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/core/service/analysis"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

const (
	queryDateLayout = "2006/01/02"
	summaryNoAI     = "AI 未能生成分析摘要。"
)

// Sender delivers the rendered report.
type Sender interface {
	SendReport(ctx context.Context, report *domain.DailyReport) error
}

// Service builds the daily statistics report.
type Service struct {
	mailbox    out.Mailbox
	store      *analysis.Store
	classifier out.Classifier
	sender     Sender
	archive    out.ReportArchive // optional
	labels     domain.LabelSet
	loc        *time.Location
	now        func() time.Time
}

var _ in.ReportService = (*Service)(nil)

func NewService(
	mailbox out.Mailbox,
	store *analysis.Store,
	classifier out.Classifier,
	sender Sender,
	archive out.ReportArchive,
	labels domain.LabelSet,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		mailbox:    mailbox,
		store:      store,
		classifier: classifier,
		sender:     sender,
		archive:    archive,
		labels:     labels,
		loc:        loc,
		now:        time.Now,
	}
}

// ReportWindow returns the days a report run covers, the lower bound for label counts
// and the range note. ok is false on weekends.
func ReportWindow(now time.Time) (days []time.Time, since time.Time, note string, ok bool) {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return nil, time.Time{}, "", false
	case time.Monday:
		sat, sun := now.AddDate(0, 0, -2), now.AddDate(0, 0, -1)
		return []time.Time{sat, sun, now}, sat, domain.DateRangeWeekend, true
	default:
		return []time.Time{now}, now, domain.DateRangeToday, true
	}
}

// GenerateDailyReport aggregates, summarizes and, unless dryRun, delivers the report.
// Weekends produce no report and a nil result.
func (s *Service) GenerateDailyReport(ctx context.Context, dryRun bool) (*domain.DailyReport, error) {
	start := time.Now()
	defer func() { metrics.RecordJob("report", time.Since(start)) }()

	now := s.now().In(s.loc)
	days, since, note, ok := ReportWindow(now)
	if !ok {
		logger.WithContext(ctx).Info("今天是週末 (%s)，不產生統計報告", now.Weekday())
		return nil, nil
	}

	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = s.store.Day(d)
	}

	stats, err := s.store.Aggregate(ctx, dates)
	if err != nil {
		return nil, err
	}
	stats.IncludedDates = dates
	stats.DateRange = note

	if err := s.countLabels(ctx, stats, since); err != nil {
		return nil, err
	}

	report := &domain.DailyReport{
		Date:    now,
		Stats:   stats,
		Summary: summaryNoAI,
	}
	if s.classifier != nil {
		report.Summary = s.classifier.SummarizeDaily(ctx, stats)
		report.Model = s.classifier.Model()
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"dates":    dates,
		"total":    stats.TotalEmails,
		"keyword":  stats.KeywordTriggeredEmails,
		"ai":       stats.AITriggeredEmails,
		"analyzed": stats.AIAnalyzedEmails,
		"positive": stats.Positive,
		"negative": stats.Negative,
		"neutral":  stats.Neutral,
		"problems": stats.ProblemDetected,
		"dry_run":  dryRun,
	}).Info("統計報告已產生")

	if dryRun {
		return report, nil
	}

	if s.archive != nil {
		if err := s.archive.SaveReport(ctx, report); err != nil {
			logger.WithContext(ctx).WithError(err).Warn("failed to archive daily report")
		}
	}
	if err := s.sender.SendReport(ctx, report); err != nil {
		logger.WithContext(ctx).WithError(err).Error("每日統計報告發送到 Slack 失敗")
	}
	return report, nil
}

// countLabels fills the label-based counters from mailbox searches.
func (s *Service) countLabels(ctx context.Context, stats *domain.DailyStatistics, since time.Time) error {
	after := since.In(s.loc).Format(queryDateLayout)
	targets := []struct {
		label string
		dst   *int
	}{
		{s.labels.Checked, &stats.TotalEmails},
		{s.labels.Keyword, &stats.KeywordTriggeredEmails},
		{s.labels.AI, &stats.AITriggeredEmails},
	}
	for _, t := range targets {
		n, err := s.mailbox.CountMessages(ctx, LabelQuery(t.label, after))
		if err != nil {
			return apperr.MailboxError("count "+t.label, err)
		}
		*t.dst = n
	}
	return nil
}

// LabelQuery counts messages carrying label received after the given yyyy/MM/dd date.
func LabelQuery(label, after string) string {
	return fmt.Sprintf("label:%s after:%s", strings.ReplaceAll(label, " ", "-"), after)
}

// Statistics aggregates stored analyses of explicit yyyy-MM-dd dates.
func (s *Service) Statistics(ctx context.Context, dates []string) (*domain.DailyStatistics, error) {
	for _, d := range dates {
		if _, err := time.Parse(analysis.DayLayout, d); err != nil {
			return nil, apperr.BadRequest(fmt.Sprintf("invalid date %q, want yyyy-MM-dd", d))
		}
	}
	if len(dates) == 0 {
		dates = []string{s.store.Today()}
	}
	stats, err := s.store.Aggregate(ctx, dates)
	if err != nil {
		return nil, err
	}
	stats.IncludedDates = dates
	return stats, nil
}
