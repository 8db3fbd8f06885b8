// Package analysis persists per-message classification results and rebuilds daily statistics from them.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"

	"github.com/goccy/go-json"
)

// DayLayout is the date format used in keys and date lists.
const DayLayout = "2006-01-02"

const keyInfix = "_email_"

var keyDayPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_`)

// Key returns the storage key of one message analysis.
func Key(day, messageID string) string {
	return day + keyInfix + messageID
}

// RetentionDays is how many days of analyses, today included, survive eviction.
// The weekend keeps extra days so that Monday's rollup can still read Saturday and Sunday.
func RetentionDays(weekday time.Weekday) int {
	switch weekday {
	case time.Saturday:
		return 2
	case time.Sunday, time.Monday:
		return 3
	default:
		return 1
	}
}

// Store owns the lifecycle of stored message analyses.
type Store struct {
	kv  out.KVStore
	loc *time.Location
	now func() time.Time
}

var _ in.MaintenanceService = (*Store)(nil)

// NewStore creates a store over kv. Days are computed in loc.
func NewStore(kv out.KVStore, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{kv: kv, loc: loc, now: time.Now}
}

// Day formats t as a storage day in the store's location.
func (s *Store) Day(t time.Time) string {
	return t.In(s.loc).Format(DayLayout)
}

// Today returns the current storage day.
func (s *Store) Today() string {
	return s.Day(s.now())
}

// Put stores the analysis for one message, replacing any previous one.
// Analyses without a classification result are not stored.
func (s *Store) Put(ctx context.Context, day, messageID string, analysis *domain.MessageAnalysis) error {
	record := domain.NewAnalysisRecord(analysis)
	if record == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return apperr.StoreError("encode analysis", err)
	}
	if err := s.kv.Set(ctx, Key(day, messageID), string(data)); err != nil {
		return apperr.StoreError("put analysis", err)
	}
	return nil
}

// Aggregate sums the stored analyses of the given days.
// Corrupt records are skipped. Polarity totals are always derived from the emotion counts.
func (s *Store) Aggregate(ctx context.Context, dates []string) (*domain.DailyStatistics, error) {
	stats := domain.NewDailyStatistics()
	stats.IncludedDates = append([]string(nil), dates...)

	for _, day := range dates {
		entries, err := s.kv.List(ctx, day+keyInfix)
		if err != nil {
			return nil, apperr.StoreError("list analyses", err)
		}

		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			var record domain.AnalysisRecord
			if err := json.Unmarshal([]byte(entries[key]), &record); err != nil {
				logger.WithError(apperr.StorageDeserialize(key, err)).Warn("skipping unreadable analysis record")
				continue
			}
			stats.AIAnalyzedEmails++

			switch record.PrimarySentiment {
			case domain.SentimentPositive:
				stats.Positive++
			case domain.SentimentNegative:
				stats.Negative++
			default:
				stats.Neutral++
			}
			if record.DetailedEmotion.Valid() {
				stats.Emotions[record.DetailedEmotion]++
			}
			if record.ProblemDetected {
				stats.ProblemDetected++
			}
		}
	}

	before := fmt.Sprintf("positive=%d negative=%d neutral=%d", stats.Positive, stats.Negative, stats.Neutral)
	if stats.RecomputeTotals() {
		logger.WithFields(map[string]any{
			"dates":  strings.Join(dates, ","),
			"before": before,
			"after":  fmt.Sprintf("positive=%d negative=%d neutral=%d", stats.Positive, stats.Negative, stats.Neutral),
		}).Info("sentiment totals corrected from emotion counts")
	}

	return stats, nil
}

// Evict deletes analyses whose day is strictly before cutoffDay.
func (s *Store) Evict(ctx context.Context, cutoffDay string) (int, error) {
	entries, err := s.kv.List(ctx, "")
	if err != nil {
		return 0, apperr.StoreError("list analyses", err)
	}

	var stale []string
	for key := range entries {
		if !strings.Contains(key, keyInfix) {
			continue
		}
		m := keyDayPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if m[1] < cutoffDay {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	sort.Strings(stale)
	if err := s.kv.Delete(ctx, stale...); err != nil {
		return 0, apperr.StoreError("evict analyses", err)
	}
	metrics.AnalysisEvicted.Add(float64(len(stale)))
	return len(stale), nil
}

// EvictOldData applies the retention window for the current day.
func (s *Store) EvictOldData(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	keep := RetentionDays(now.Weekday())
	cutoff := s.Day(now.AddDate(0, 0, -(keep - 1)))

	n, err := s.Evict(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.WithFields(map[string]any{
		"cutoff":  cutoff,
		"keep":    keep,
		"evicted": n,
	}).Info("analysis retention applied")
	return n, nil
}

// Clear deletes every analysis stored for day.
func (s *Store) Clear(ctx context.Context, day string) (int, error) {
	entries, err := s.kv.List(ctx, day+keyInfix)
	if err != nil {
		return 0, apperr.StoreError("list analyses", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return 0, apperr.StoreError("clear analyses", err)
	}
	return len(keys), nil
}
