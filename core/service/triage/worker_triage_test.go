package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/service/analysis"
	"triage_worker/core/service/classification"
	"triage_worker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memKV) List(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memKV) Close() error { return nil }

type searchCall struct {
	query         string
	offset, limit int
}

type fakeMailbox struct {
	threads   []*domain.Thread
	searches  []searchCall
	added     []string // "<messageID>:<label>"
	removed   []string // "<threadID>:<label>"
	addErr    error
	searchErr error
}

func (f *fakeMailbox) SearchThreads(_ context.Context, query string, offset, limit int) ([]*domain.Thread, error) {
	f.searches = append(f.searches, searchCall{query, offset, limit})
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if offset >= len(f.threads) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.threads) {
		end = len(f.threads)
	}
	return f.threads[offset:end], nil
}

func (f *fakeMailbox) CountMessages(context.Context, string) (int, error) { return 0, nil }

func (f *fakeMailbox) AddLabel(_ context.Context, messageID, label string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, messageID+":"+label)
	for _, th := range f.threads {
		for _, m := range th.Messages {
			if m.ID == messageID && !m.HasLabel(label) {
				m.Labels = append(m.Labels, label)
			}
		}
	}
	return nil
}

func (f *fakeMailbox) RemoveThreadLabel(_ context.Context, threadID, label string) error {
	f.removed = append(f.removed, threadID+":"+label)
	for _, th := range f.threads {
		if th.ID != threadID {
			continue
		}
		for _, m := range th.Messages {
			kept := m.Labels[:0]
			for _, l := range m.Labels {
				if l != label {
					kept = append(kept, l)
				}
			}
			m.Labels = kept
		}
	}
	return nil
}

type fakeClassifier struct {
	result *domain.ClassificationResult
	err    error
	calls  int
}

func (c *fakeClassifier) ClassifyMessage(context.Context, string, string, string) (*domain.ClassificationResult, error) {
	c.calls++
	if c.result == nil {
		return nil, c.err
	}
	r := *c.result
	return &r, nil
}

func (c *fakeClassifier) SummarizeDaily(context.Context, *domain.DailyStatistics) string { return "" }
func (c *fakeClassifier) Model() string                                               { return "fake-model" }

type fakeAlerts struct {
	sent []*domain.MessageAnalysis
	err  error
}

func (a *fakeAlerts) NotifyMessage(_ context.Context, _ *domain.Message, _ string, analysis *domain.MessageAnalysis, _ string) error {
	if a.err != nil {
		return a.err
	}
	a.sent = append(a.sent, analysis)
	return nil
}

var testLabels = domain.LabelSet{
	Checked: "監控已檢查",
	Keyword: "監控關鍵字",
	AI:      "監控AI建議注意",
	Legacy:  []string{"監控已Slack"},
}

type harness struct {
	svc        *Service
	mailbox    *fakeMailbox
	classifier *fakeClassifier
	alerts     *fakeAlerts
	kv         *memKV
	store      *analysis.Store
}

func newHarness(useAI bool, threads ...*domain.Thread) *harness {
	h := &harness{
		mailbox:    &fakeMailbox{threads: threads},
		classifier: &fakeClassifier{err: apperr.ClassifierUnavailable("no key")},
		alerts:     &fakeAlerts{},
		kv:         newMemKV(),
	}
	h.store = analysis.NewStore(h.kv, time.UTC)

	rules := []domain.KeywordRule{
		domain.SingleKeyword("大量寄送失敗"),
		domain.SingleKeyword("大量異常"),
		domain.SingleKeyword("大量失敗"),
		domain.SingleKeyword("大量退信"),
		domain.CombinationKeyword("詐騙", "異常"),
	}
	ignore := classification.NewIgnorePolicy(
		[]string{"newsleopard.tw"},
		[]string{"申請寄件者身份驗證", "簡訊網域申請", "簡訊白名單申請"},
		[]domain.SenderRule{{
			Name:           "mailgun-domain-verified",
			SenderContains: []string{"support@mailgun.net"},
			SubjectPrefix:  "Good news -",
			SubjectSuffix:  "is now verified",
		}},
	)

	h.svc = NewService(Deps{
		Mailbox:    h.mailbox,
		Classifier: h.classifier,
		Store:      h.store,
		Alerts:     h.alerts,
		Matcher:    classification.NewKeywordMatcher(rules),
		Ignore:     ignore,
	}, Config{
		UseAI:           useAI,
		Labels:          testLabels,
		ExcludedDomains: []string{"newsleopard.com", "newsleopard.tw", "softech.com.tw", "calendly.com"},
		Location:        time.UTC,
	})
	return h
}

func thread(id string, msgs ...*domain.Message) *domain.Thread {
	for _, m := range msgs {
		m.ThreadID = id
	}
	return &domain.Thread{ID: id, Messages: msgs}
}

func message(id, from, subject, body string) *domain.Message {
	return &domain.Message{ID: id, From: from, Subject: subject, Body: body, Date: time.Now()}
}

// =============================================================================
// Processor
// =============================================================================

func TestProcessMessage_KeywordScenario(t *testing.T) {
	msg := message("m1", "a@client.com", "大量寄送失敗", "我們昨天收到大量退信")
	h := newHarness(false, thread("t1", msg))

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, h.alerts.sent, 1)
	assert.Equal(t, []string{"大量寄送失敗", "大量退信"}, h.alerts.sent[0].KeywordsFound)
	assert.Equal(t, []string{"m1:監控已檢查", "m1:監控關鍵字"}, h.mailbox.added)
	assert.Zero(t, h.classifier.calls)
}

func TestProcessMessage_IgnorePrecedence(t *testing.T) {
	tests := []struct {
		name string
		msg  *domain.Message
	}{
		{"ignored domain", message("m1", "ops@mail.newsleopard.tw", "大量異常", "大量退信")},
		{"body phrase", message("m2", "a@client.com", "大量異常", "請協助申請寄件者身份驗證")},
		{"mailgun verified", message("m3", "Mailgun <support@mailgun.net>", "Good news - example.com is now verified", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(true, thread("t", tt.msg))
			h.classifier.result = &domain.ClassificationResult{ShouldNotify: true, Severity: domain.SeverityUrgent}

			sent, err := h.svc.ProcessMessage(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.False(t, sent)
			assert.Empty(t, h.mailbox.added)
			assert.Empty(t, h.alerts.sent)
			assert.Empty(t, h.kv.data)
			assert.Zero(t, h.classifier.calls)
		})
	}
}

func TestProcessMessage_CoercesInconsistentResult(t *testing.T) {
	msg := message("m1", "a@client.com", "系統問題", "服務無法使用")
	h := newHarness(true, thread("t1", msg))
	h.classifier.result = &domain.ClassificationResult{
		ShouldNotify:     false,
		ProblemDetected:  true,
		PrimarySentiment: domain.SentimentNegative,
		DetailedEmotion:  domain.EmotionWorried,
		Severity:         domain.SeverityHigh,
	}

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, h.alerts.sent, 1)
	assert.True(t, h.alerts.sent[0].AIDetected)
	assert.True(t, h.alerts.sent[0].Result.ShouldNotify)

	stored, ok, err := h.kv.Get(context.Background(), analysis.Key(h.store.Today(), "m1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, stored, `"shouldNotify":true`)
	assert.Contains(t, h.mailbox.added, "m1:監控AI建議注意")
}

func TestProcessMessage_SeverityGate(t *testing.T) {
	tests := []struct {
		severity domain.Severity
		notify   bool
	}{
		{domain.SeverityLow, false},
		{domain.SeverityMedium, false},
		{domain.SeverityHigh, true},
		{domain.SeverityUrgent, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			msg := message("m1", "a@client.com", "hello", "我對服務非常不滿")
			h := newHarness(true, thread("t1", msg))
			h.classifier.result = &domain.ClassificationResult{
				ShouldNotify: true,
				Severity:     tt.severity,
			}

			sent, err := h.svc.ProcessMessage(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, tt.notify, sent)
			// 라벨은 심각도와 무관
			assert.Contains(t, h.mailbox.added, "m1:監控AI建議注意")
		})
	}
}

func TestProcessMessage_PromotionalKeywordSuppressed(t *testing.T) {
	msg := message("m1", "promo@vendor.com", "研討會邀請", "大量異常處理講座")
	h := newHarness(true, thread("t1", msg))
	h.classifier.result = &domain.ClassificationResult{IsPromotional: true, Severity: domain.SeverityLow}

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, []string{"m1:監控已檢查", "m1:監控關鍵字"}, h.mailbox.added)
}

func TestProcessMessage_ExcludedDomainSkipsAILabelOnly(t *testing.T) {
	msg := message("m1", "pm@softech.com.tw", "內部回報", "客戶抱怨連線中斷")
	h := newHarness(true, thread("t1", msg))
	h.classifier.result = &domain.ClassificationResult{ShouldNotify: true, Severity: domain.SeverityUrgent}

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"m1:監控已檢查"}, h.mailbox.added)
}

func TestProcessMessage_DeliveryFailureKeepsLabels(t *testing.T) {
	msg := message("m1", "a@client.com", "大量退信", "")
	h := newHarness(false, thread("t1", msg))
	h.alerts.err = apperr.NotificationDelivery("alert", errors.New("503"))

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.True(t, msg.HasLabel("監控已檢查"))
	assert.True(t, msg.HasLabel("監控關鍵字"))
}

func TestProcessMessage_ClassifierFailureMeansNoAISignal(t *testing.T) {
	msg := message("m1", "a@client.com", "question", "how do I export?")
	h := newHarness(true, thread("t1", msg))
	h.classifier.err = apperr.ClassifierHTTPError(500, "boom")

	sent, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, []string{"m1:監控已檢查"}, h.mailbox.added)
	assert.Empty(t, h.kv.data)
}

// =============================================================================
// Batch
// =============================================================================

func TestBatchQuery(t *testing.T) {
	h := newHarness(false)
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "-label:監控已檢查 in:inbox -in:sent after:2024/03/05", h.svc.BatchQuery(now))
	assert.Equal(t, "in:inbox -in:sent after:2024/03/06 before:2024/03/07", h.svc.DayQuery(now))
}

func TestRunBatch_Idempotent(t *testing.T) {
	h := newHarness(false,
		thread("t1",
			message("m1", "a@client.com", "大量寄送失敗", "我們昨天收到大量退信"),
			message("m2", "b@client.com", "Re: 大量寄送失敗", "已處理"),
		),
		thread("t2", message("m3", "c@client.com", "hello", "thanks")),
	)

	first, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.RunStatistics{
		TotalThreads: 2, TotalMessages: 3, NewlyProcessed: 3, NotificationsSent: 2,
	}, first)
	require.Len(t, h.mailbox.searches, 1)
	assert.Equal(t, 50, h.mailbox.searches[0].limit)
	assert.Zero(t, h.mailbox.searches[0].offset)

	labelsAfterFirst := len(h.mailbox.added)
	alertsAfterFirst := len(h.alerts.sent)

	second, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.AlreadyProcessed)
	assert.Zero(t, second.NewlyProcessed)
	assert.Len(t, h.mailbox.added, labelsAfterFirst)
	assert.Len(t, h.alerts.sent, alertsAfterFirst)
}

func TestRunBatch_IsolatesFailingMessage(t *testing.T) {
	h := newHarness(false,
		thread("t1",
			message("m1", "a@client.com", "大量退信", ""),
			message("m2", "b@client.com", "大量異常", ""),
		),
	)
	h.mailbox.addErr = errors.New("label quota")

	stats, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 2, stats.NewlyProcessed)
	assert.Empty(t, h.alerts.sent)
}

func TestRunBatch_SearchError(t *testing.T) {
	h := newHarness(false)
	h.mailbox.searchErr = errors.New("401")

	_, err := h.svc.RunBatch(context.Background())
	assert.True(t, apperr.HasCode(err, apperr.CodeMailboxError))
}

func TestReprocessDay(t *testing.T) {
	day := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

	var threads []*domain.Thread
	for i := 0; i < 3; i++ {
		m := message("m"+string(rune('a'+i)), "a@client.com", "hello", "body")
		m.Labels = []string{"監控已檢查"}
		threads = append(threads, thread("t"+string(rune('a'+i)), m))
	}
	h := newHarness(false, threads...)
	h.svc.pageSize = 2

	require.NoError(t, h.kv.Set(context.Background(), analysis.Key("2024-03-06", "old"), `{}`))
	require.NoError(t, h.kv.Set(context.Background(), analysis.Key("2024-03-05", "keep"), `{}`))

	stats, err := h.svc.ReprocessDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalThreads)
	assert.Equal(t, 3, stats.NewlyProcessed)
	assert.Zero(t, stats.AlreadyProcessed)

	// 두 번째 페이지가 짧아서 종료
	require.Len(t, h.mailbox.searches, 2)
	assert.Equal(t, searchCall{"in:inbox -in:sent after:2024/03/06 before:2024/03/07", 0, 2}, h.mailbox.searches[0])
	assert.Equal(t, 2, h.mailbox.searches[1].offset)

	assert.Contains(t, h.mailbox.removed, "ta:監控已檢查")
	assert.Contains(t, h.mailbox.removed, "tc:監控已Slack")
	assert.Len(t, h.mailbox.removed, 3*len(testLabels.All()))

	_, ok, _ := h.kv.Get(context.Background(), analysis.Key("2024-03-06", "old"))
	assert.False(t, ok)
	_, ok, _ = h.kv.Get(context.Background(), analysis.Key("2024-03-05", "keep"))
	assert.True(t, ok)
}
