package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	sent []*out.ChatMessage
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg *out.ChatMessage) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func testMessage() *domain.Message {
	return &domain.Message{
		ID:      "18c2f0a1b2",
		From:    "Client <a@client.com>",
		Subject: "大量寄送失敗",
		Date:    time.Date(2024, 3, 6, 1, 2, 3, 0, time.UTC),
	}
}

func TestAlertHeader(t *testing.T) {
	tests := []struct {
		name     string
		analysis *domain.MessageAnalysis
		header   string
		signal   string
	}{
		{
			name:     "keyword and ai",
			analysis: &domain.MessageAnalysis{KeywordsFound: []string{"大量退信", "詐騙 + 異常"}, AIDetected: true},
			header:   HeaderKeywordAndAI,
			signal:   "*發現關鍵字：* 大量退信, 詐騙 + 異常\n*AI 分析：* AI 也檢測到需注意內容",
		},
		{
			name:     "keyword only",
			analysis: &domain.MessageAnalysis{KeywordsFound: []string{"大量退信"}},
			header:   HeaderKeywordOnly,
			signal:   "*發現關鍵字：* 大量退信",
		},
		{
			name:     "ai only",
			analysis: &domain.MessageAnalysis{AIDetected: true},
			header:   HeaderAIOnly,
			signal:   "*AI 判定需要注意的郵件*",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.header, alertHeader(tt.analysis))
			assert.Equal(t, tt.signal, signalText(tt.analysis))
		})
	}
}

func TestBuildAlert_KeywordOnly(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	body := strings.Repeat("退", 350)
	msg := BuildAlert(testMessage(), body, &domain.MessageAnalysis{KeywordsFound: []string{"大量寄送失敗"}}, "gemini-2.0-flash", loc)

	require.Len(t, msg.Blocks, 5)
	assert.Equal(t, out.BlockHeader, msg.Blocks[0].Type)
	assert.Equal(t, HeaderKeywordOnly, msg.Blocks[0].Text.Text)

	fields := msg.Blocks[2].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "*主旨：*\n大量寄送失敗", fields[0].Text)
	assert.Equal(t, "*寄件者：*\nClient <a@client.com>", fields[1].Text)
	assert.Equal(t, "*時間：*\n2024/03/06 09:02:03", fields[2].Text)

	assert.Equal(t, "*郵件摘要：*\n"+strings.Repeat("退", 300)+"...", msg.Blocks[3].Text.Text)

	actions := msg.Blocks[4]
	assert.Equal(t, out.BlockActions, actions.Type)
	btn, ok := actions.Elements[0].(*out.Button)
	require.True(t, ok)
	assert.Equal(t, "查看完整郵件", btn.Text.Text)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#inbox/18c2f0a1b2", btn.URL)
}

func TestBuildAlert_WithClassification(t *testing.T) {
	analysis := &domain.MessageAnalysis{
		AIDetected: true,
		Result: &domain.ClassificationResult{
			ShouldNotify:     true,
			PrimarySentiment: domain.SentimentNegative,
			DetailedEmotion:  domain.EmotionAngry,
			ProblemDetected:  true,
			Severity:         domain.SeverityUrgent,
			Summary:          "客戶反映大量退信",
		},
	}
	msg := BuildAlert(testMessage(), "body", analysis, "gemini-2.0-flash", nil)

	require.Len(t, msg.Blocks, 8)
	assert.Equal(t, out.BlockDivider, msg.Blocks[4].Type)

	ctxText, ok := msg.Blocks[5].Elements[0].(*out.TextObject)
	require.True(t, ok)
	assert.Equal(t, "*使用模型：* gemini-2.0-flash", ctxText.Text)

	ai := msg.Blocks[6].Text.Text
	assert.Contains(t, ai, "> *情緒：* 😠 負面")
	assert.Contains(t, ai, "> *詳細情緒：* 😡 憤怒")
	assert.Contains(t, ai, "> *問題檢測：* ⚠️ 是")
	assert.Contains(t, ai, "> *摘要：* 客戶反映大量退信")
}

func reportFixture(dateRange string) *domain.DailyReport {
	stats := domain.NewDailyStatistics()
	stats.DateRange = dateRange
	stats.TotalEmails = 8
	stats.AIAnalyzedEmails = 6
	stats.KeywordTriggeredEmails = 2
	stats.AITriggeredEmails = 1
	stats.ProblemDetected = 1
	stats.Emotions[domain.EmotionGrateful] = 2
	stats.Emotions[domain.EmotionAngry] = 3
	stats.Emotions[domain.EmotionInquiring] = 1
	stats.RecomputeTotals()

	return &domain.DailyReport{
		Date:    time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
		Stats:   stats,
		Summary: "今日負面情緒偏高。",
		Model:   "gemini-2.0-flash",
	}
}

func TestBuildReport(t *testing.T) {
	msg := BuildReport(reportFixture(domain.DateRangeToday), time.UTC)

	require.Len(t, msg.Blocks, 10)
	assert.Equal(t, "📊 郵件監控統計報告 (2024/03/04)", msg.Blocks[0].Text.Text)
	assert.Equal(t, "📧 *基本統計數據：*", msg.Blocks[1].Text.Text)

	counts := msg.Blocks[2].Text.Text
	assert.Contains(t, counts, "• 檢查郵件總數: 8")
	assert.Contains(t, counts, "• 實際進行AI分析的郵件數: 6 (75%)")
	assert.Contains(t, counts, "• AI檢測到問題的郵件數: 1 (13%)")

	assert.Contains(t, msg.Blocks[4].Text.Text, "• 正面情緒: 2 (25%)")
	assert.Contains(t, msg.Blocks[4].Text.Text, "  - 🙏 感謝: 2")
	assert.Contains(t, msg.Blocks[5].Text.Text, "• 負面情緒: 3 (38%)")
	assert.Contains(t, msg.Blocks[5].Text.Text, "  - 😤 沮喪: 0")
	assert.Contains(t, msg.Blocks[6].Text.Text, "  - 🔍 詢問: 1")

	modelLine, ok := msg.Blocks[8].Elements[0].(*out.TextObject)
	require.True(t, ok)
	assert.Equal(t, "🤖 *AI 生成的分析報告*\n(由 gemini-2.0-flash 模型生成)", modelLine.Text)
	assert.Equal(t, "今日負面情緒偏高。", msg.Blocks[9].Text.Text)
}

func TestBuildReport_MondayRange(t *testing.T) {
	msg := BuildReport(reportFixture(domain.DateRangeWeekend), time.UTC)
	assert.Equal(t, "📧 *基本統計數據：*\n(資料範圍：週六至今日)", msg.Blocks[1].Text.Text)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(3, 0))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 67, percent(2, 3))
	assert.Equal(t, 100, percent(4, 4))
}

func TestService_NotifyMessage(t *testing.T) {
	analysis := &domain.MessageAnalysis{KeywordsFound: []string{"大量退信"}}

	t.Run("delivers", func(t *testing.T) {
		n := &fakeNotifier{}
		svc := NewService(n, Config{Enabled: true})
		require.NoError(t, svc.NotifyMessage(context.Background(), testMessage(), "body", analysis, "m"))
		require.Len(t, n.sent, 1)
		assert.Empty(t, n.sent[0].Channel)
	})

	t.Run("disabled only logs", func(t *testing.T) {
		n := &fakeNotifier{}
		svc := NewService(n, Config{Enabled: false})
		require.NoError(t, svc.NotifyMessage(context.Background(), testMessage(), "body", analysis, "m"))
		assert.Empty(t, n.sent)
		assert.False(t, svc.Enabled())
	})

	t.Run("delivery failure is typed", func(t *testing.T) {
		n := &fakeNotifier{err: errors.New("webhook 500")}
		svc := NewService(n, Config{Enabled: true})
		err := svc.NotifyMessage(context.Background(), testMessage(), "body", analysis, "m")
		assert.True(t, apperr.HasCode(err, apperr.CodeNotificationDelivery))
	})
}

func TestService_AlertClassifierError(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, Config{Enabled: true, ErrorChannel: "#llm-errors"})

	svc.AlertClassifierError(context.Background(), "狀態碼: 500", `{"error":"boom"}`)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "#llm-errors", n.sent[0].Channel)
	assert.Equal(t, "🚨 *LLM API 發生錯誤*\n*錯誤訊息:* 狀態碼: 500\n*原始回應:*\n```{\"error\":\"boom\"}```", n.sent[0].Text)
	assert.Empty(t, n.sent[0].Blocks)
}

func TestService_SendReportFailure(t *testing.T) {
	svc := NewService(&fakeNotifier{err: errors.New("down")}, Config{Enabled: true})
	err := svc.SendReport(context.Background(), reportFixture(domain.DateRangeToday))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotificationDelivery))
}
