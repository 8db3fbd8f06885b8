package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/service/analysis"
	"triage_worker/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct{ data map[string]string }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memKV) Set(_ context.Context, key, value string) error { m.data[key] = value; return nil }
func (m *memKV) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
func (m *memKV) List(_ context.Context, prefix string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}
func (m *memKV) Close() error { return nil }

type countingMailbox struct {
	counts  map[string]int
	queries []string
	err     error
}

func (m *countingMailbox) SearchThreads(context.Context, string, int, int) ([]*domain.Thread, error) {
	return nil, nil
}
func (m *countingMailbox) CountMessages(_ context.Context, query string) (int, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return 0, m.err
	}
	return m.counts[query], nil
}
func (m *countingMailbox) AddLabel(context.Context, string, string) error         { return nil }
func (m *countingMailbox) RemoveThreadLabel(context.Context, string, string) error { return nil }

type stubClassifier struct{ seen *domain.DailyStatistics }

func (c *stubClassifier) ClassifyMessage(context.Context, string, string, string) (*domain.ClassificationResult, error) {
	return nil, nil
}
func (c *stubClassifier) SummarizeDaily(_ context.Context, stats *domain.DailyStatistics) string {
	c.seen = stats
	return "今日平穩"
}
func (c *stubClassifier) Model() string { return "gemini-test" }

type recordingSender struct{ reports []*domain.DailyReport }

func (s *recordingSender) SendReport(_ context.Context, r *domain.DailyReport) error {
	s.reports = append(s.reports, r)
	return nil
}

type memArchive struct{ saved []*domain.DailyReport }

func (a *memArchive) SaveReport(_ context.Context, r *domain.DailyReport) error {
	a.saved = append(a.saved, r)
	return nil
}
func (a *memArchive) GetReport(context.Context, time.Time) (*domain.DailyReport, error) {
	return nil, nil
}

var labels = domain.LabelSet{Checked: "監控已檢查", Keyword: "監控關鍵字", AI: "監控AI建議注意"}

func record(t *testing.T, emotion domain.Emotion, problem bool) string {
	t.Helper()
	data, err := json.Marshal(domain.AnalysisRecord{
		PrimarySentiment: emotion.Sentiment(),
		DetailedEmotion:  emotion,
		ProblemDetected:  problem,
		Severity:         domain.SeverityMedium,
	})
	require.NoError(t, err)
	return string(data)
}

type fixture struct {
	svc        *Service
	mailbox    *countingMailbox
	classifier *stubClassifier
	sender     *recordingSender
	archive    *memArchive
}

func newFixture(t *testing.T, now time.Time) *fixture {
	kv := &memKV{data: map[string]string{
		analysis.Key("2024-03-01", "fri"):  record(t, domain.EmotionAngry, true),
		analysis.Key("2024-03-02", "sat"):  record(t, domain.EmotionGrateful, false),
		analysis.Key("2024-03-03", "sun"):  record(t, domain.EmotionWorried, true),
		analysis.Key("2024-03-04", "mon1"): record(t, domain.EmotionInquiring, false),
		analysis.Key("2024-03-04", "mon2"): "{broken",
		analysis.Key("2024-03-05", "tue"):  record(t, domain.EmotionAngry, false),
	}}
	f := &fixture{
		mailbox:    &countingMailbox{counts: map[string]int{}},
		classifier: &stubClassifier{},
		sender:     &recordingSender{},
		archive:    &memArchive{},
	}
	f.svc = NewService(f.mailbox, analysis.NewStore(kv, time.UTC), f.classifier, f.sender, f.archive, labels, time.UTC)
	f.svc.now = func() time.Time { return now }
	return f
}

func TestReportWindow(t *testing.T) {
	mon := time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC)

	days, since, note, ok := ReportWindow(mon)
	require.True(t, ok)
	require.Len(t, days, 3)
	assert.Equal(t, time.Saturday, days[0].Weekday())
	assert.Equal(t, time.Sunday, days[1].Weekday())
	assert.Equal(t, days[0], since)
	assert.Equal(t, domain.DateRangeWeekend, note)

	days, since, note, ok = ReportWindow(mon.AddDate(0, 0, 2))
	require.True(t, ok)
	assert.Len(t, days, 1)
	assert.Equal(t, days[0], since)
	assert.Equal(t, domain.DateRangeToday, note)

	for _, d := range []int{5, 6} {
		_, _, _, ok = ReportWindow(mon.AddDate(0, 0, d))
		assert.False(t, ok)
	}
}

func TestGenerateDailyReport_MondayRollup(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC))
	f.mailbox.counts["label:監控已檢查 after:2024/03/02"] = 12
	f.mailbox.counts["label:監控關鍵字 after:2024/03/02"] = 2
	f.mailbox.counts["label:監控AI建議注意 after:2024/03/02"] = 1

	report, err := f.svc.GenerateDailyReport(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, report)

	s := report.Stats
	assert.Equal(t, []string{"2024-03-02", "2024-03-03", "2024-03-04"}, s.IncludedDates)
	assert.Equal(t, domain.DateRangeWeekend, s.DateRange)
	assert.Equal(t, 12, s.TotalEmails)
	assert.Equal(t, 2, s.KeywordTriggeredEmails)
	assert.Equal(t, 1, s.AITriggeredEmails)
	assert.Equal(t, 3, s.AIAnalyzedEmails)
	assert.Equal(t, 1, s.Positive)
	assert.Equal(t, 1, s.Negative)
	assert.Equal(t, 1, s.Neutral)
	assert.Equal(t, 1, s.ProblemDetected)

	assert.Equal(t, "今日平穩", report.Summary)
	assert.Equal(t, "gemini-test", report.Model)
	assert.Same(t, s, f.classifier.seen)
	assert.Len(t, f.sender.reports, 1)
	assert.Len(t, f.archive.saved, 1)
}

func TestGenerateDailyReport_Weekday(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC))

	report, err := f.svc.GenerateDailyReport(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-05"}, report.Stats.IncludedDates)
	assert.Equal(t, 1, report.Stats.Negative)
	assert.Contains(t, f.mailbox.queries, "label:監控已檢查 after:2024/03/05")
}

func TestGenerateDailyReport_WeekendSkipped(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC))

	report, err := f.svc.GenerateDailyReport(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, f.mailbox.queries)
	assert.Empty(t, f.sender.reports)
}

func TestGenerateDailyReport_DryRunDoesNotSend(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 17, 30, 0, 0, time.UTC))

	report, err := f.svc.GenerateDailyReport(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Empty(t, f.sender.reports)
	assert.Empty(t, f.archive.saved)
}

func TestGenerateDailyReport_MailboxError(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 17, 30, 0, 0, time.UTC))
	f.mailbox.err = errors.New("quota")

	_, err := f.svc.GenerateDailyReport(context.Background(), false)
	assert.True(t, apperr.HasCode(err, apperr.CodeMailboxError))
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 6, 17, 30, 0, 0, time.UTC))

	stats, err := f.svc.Statistics(context.Background(), []string{"2024-03-01", "2024-03-05"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Negative)
	assert.Equal(t, 2, stats.Emotions[domain.EmotionAngry])
	assert.Equal(t, 1, stats.ProblemDetected)

	_, err = f.svc.Statistics(context.Background(), []string{"03/05/2024"})
	assert.True(t, apperr.HasCode(err, apperr.CodeBadRequest))
}
