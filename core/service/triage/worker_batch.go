package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"

	"github.com/google/uuid"
)

const queryDateLayout = "2006/01/02"

// labelTerm renders a label name for the search syntax, which uses hyphens for spaces.
func labelTerm(name string) string {
	return strings.ReplaceAll(name, " ", "-")
}

// BatchQuery selects unchecked inbox mail received within the lookback window.
func (s *Service) BatchQuery(now time.Time) string {
	after := now.Add(-s.lookback).In(s.loc).Format(queryDateLayout)
	return fmt.Sprintf("-label:%s in:inbox -in:sent after:%s", labelTerm(s.labels.Checked), after)
}

// DayQuery selects every inbox message received on day, regardless of labels.
func (s *Service) DayQuery(day time.Time) string {
	d := day.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	return fmt.Sprintf("in:inbox -in:sent after:%s before:%s",
		start.Format(queryDateLayout), start.AddDate(0, 0, 1).Format(queryDateLayout))
}

// RunBatch processes every recent message still lacking the checked label.
func (s *Service) RunBatch(ctx context.Context) (*domain.RunStatistics, error) {
	ctx = logger.WithRunID(ctx, uuid.NewString())
	log := logger.WithContext(ctx)
	start := time.Now()
	defer func() { metrics.RecordJob("batch", time.Since(start)) }()

	query := s.BatchQuery(s.now())
	log.Info("開始執行郵件檢查與通知功能 query=%q", query)

	threads, err := s.mailbox.SearchThreads(ctx, query, 0, s.limit)
	if err != nil {
		return nil, apperr.MailboxError("search", err)
	}

	stats := &domain.RunStatistics{TotalThreads: len(threads)}
	if len(threads) == 0 {
		log.Info("沒有找到新討論串需要分析")
		return stats, nil
	}
	log.Info("找到 %d 個討論串需要分析", len(threads))

	day := s.store.Today()
	for _, thread := range threads {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s.processThread(ctx, thread, day, false, stats)
	}

	log.WithFields(runFields(stats)).WithDuration(time.Since(start)).Info("執行完畢")
	return stats, nil
}

// ReprocessDay clears stored analyses and markers for day, then processes all of its messages.
func (s *Service) ReprocessDay(ctx context.Context, day time.Time) (*domain.RunStatistics, error) {
	ctx = logger.WithRunID(ctx, uuid.NewString())
	log := logger.WithContext(ctx)
	start := time.Now()
	defer func() { metrics.RecordJob("reprocess", time.Since(start)) }()

	storeDay := s.store.Day(day)
	cleared, err := s.store.Clear(ctx, storeDay)
	if err != nil {
		return nil, err
	}
	log.Info("已清除 %s 的 %d 筆情緒分析資料", storeDay, cleared)

	threads, err := s.searchAll(ctx, s.DayQuery(day))
	if err != nil {
		return nil, err
	}

	stats := &domain.RunStatistics{TotalThreads: len(threads)}
	if len(threads) == 0 {
		log.Info("%s 沒有郵件需要分析", storeDay)
		return stats, nil
	}
	log.Info("總共找到 %d 個討論串需要重新分析", len(threads))

	for _, thread := range threads {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s.clearThreadLabels(ctx, thread)
		s.processThread(ctx, thread, storeDay, true, stats)
	}

	log.WithFields(runFields(stats)).WithDuration(time.Since(start)).Info("重新分析完成")
	return stats, nil
}

// searchAll pages through query until a short page.
func (s *Service) searchAll(ctx context.Context, query string) ([]*domain.Thread, error) {
	var all []*domain.Thread
	for offset := 0; ; offset += s.pageSize {
		page, err := s.mailbox.SearchThreads(ctx, query, offset, s.pageSize)
		if err != nil {
			return nil, apperr.MailboxError("search", err)
		}
		all = append(all, page...)
		logger.WithContext(ctx).Debug("已獲取第 %d 頁郵件討論串，本頁有 %d 個", offset/s.pageSize+1, len(page))
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}

func (s *Service) clearThreadLabels(ctx context.Context, thread *domain.Thread) {
	for _, label := range s.labels.All() {
		if label == "" {
			continue
		}
		if err := s.mailbox.RemoveThreadLabel(ctx, thread.ID, label); err != nil {
			logger.WithContext(ctx).WithError(err).WithField("thread_id", thread.ID).
				Warn("移除標籤 %s 時出現警告（可忽略）", label)
		}
	}
}

// processThread runs each message of thread in order. A failing message never stops the others.
func (s *Service) processThread(ctx context.Context, thread *domain.Thread, day string, force bool, stats *domain.RunStatistics) {
	var processed, skipped int
	stats.TotalMessages += len(thread.Messages)

	for _, msg := range thread.Messages {
		if !force && msg.HasLabel(s.labels.Checked) {
			skipped++
			stats.AlreadyProcessed++
			continue
		}

		processed++
		stats.NewlyProcessed++
		sent, err := s.safeProcess(ctx, msg, day)
		if err != nil {
			stats.Failed++
			logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"message_id": msg.ID,
				"thread_id":  thread.ID,
			}).Error("message processing failed")
			continue
		}
		if sent {
			stats.NotificationsSent++
		}
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id": thread.ID,
		"processed": processed,
		"skipped":   skipped,
	}).Debug("討論串處理完成：%s", thread.Subject)
}

func (s *Service) safeProcess(ctx context.Context, msg *domain.Message, day string) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
			err = apperr.Internal(fmt.Sprintf("panic while processing %s: %v", msg.ID, r))
		}
	}()
	return s.process(ctx, msg, day)
}

func runFields(stats *domain.RunStatistics) map[string]any {
	return map[string]any{
		"total_threads":      stats.TotalThreads,
		"total_messages":     stats.TotalMessages,
		"already_processed":  stats.AlreadyProcessed,
		"newly_processed":    stats.NewlyProcessed,
		"notifications_sent": stats.NotificationsSent,
		"failed":             stats.Failed,
	}
}
