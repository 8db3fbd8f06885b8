package notification

import (
	"fmt"
	"math"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

const (
	timeLayout       = "2006/01/02 15:04:05"
	dateLayout       = "2006/01/02"
	summaryMaxRunes  = 300
	mailLinkTemplate = "https://mail.google.com/mail/u/0/#inbox/%s"
)

// Alert headers by signal
const (
	HeaderKeywordAndAI = "⚠️ 關鍵字+AI 雙重警示郵件"
	HeaderKeywordOnly  = "📨 關鍵字比對 注意郵件"
	HeaderAIOnly       = "🤖 AI 判定建議注意郵件"
)

// MessageLink returns the web mail link for a message id.
func MessageLink(messageID string) string {
	return fmt.Sprintf(mailLinkTemplate, messageID)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func alertHeader(a *domain.MessageAnalysis) string {
	switch {
	case a.HasKeywords() && a.AIDetected:
		return HeaderKeywordAndAI
	case a.HasKeywords():
		return HeaderKeywordOnly
	default:
		return HeaderAIOnly
	}
}

func signalText(a *domain.MessageAnalysis) string {
	if !a.HasKeywords() {
		return "*AI 判定需要注意的郵件*"
	}
	text := "*發現關鍵字：* " + strings.Join(a.KeywordsFound, ", ")
	if a.AIDetected {
		text += "\n*AI 分析：* AI 也檢測到需注意內容"
	}
	return text
}

func aiResultText(r *domain.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("*🤖 AI評估結果：*\n")
	fmt.Fprintf(&b, "> *情緒：* %s %s", r.PrimarySentiment.Icon(), r.PrimarySentiment.DisplayName())
	if r.DetailedEmotion != "" {
		fmt.Fprintf(&b, "\n> *詳細情緒：* %s %s", r.DetailedEmotion.Icon(), r.DetailedEmotion.DisplayName())
	}
	problem := "✅ 否"
	if r.ProblemDetected {
		problem = "⚠️ 是"
	}
	fmt.Fprintf(&b, "\n> *問題檢測：* %s", problem)
	fmt.Fprintf(&b, "\n> *摘要：* %s", r.Summary)
	return b.String()
}

// BuildAlert renders the attention alert for one message. body is the extracted content.
func BuildAlert(msg *domain.Message, body string, analysis *domain.MessageAnalysis, model string, loc *time.Location) *out.ChatMessage {
	if loc == nil {
		loc = time.UTC
	}
	blocks := []out.Block{
		{Type: out.BlockHeader, Text: out.PlainText(alertHeader(analysis))},
		{Type: out.BlockSection, Text: out.Markdown(signalText(analysis))},
		{Type: out.BlockSection, Fields: []*out.TextObject{
			out.Markdown("*主旨：*\n" + msg.Subject),
			out.Markdown("*寄件者：*\n" + msg.From),
			out.Markdown("*時間：*\n" + msg.Date.In(loc).Format(timeLayout)),
		}},
		{Type: out.BlockSection, Text: out.Markdown("*郵件摘要：*\n" + truncate(body, summaryMaxRunes))},
	}

	if analysis.Result != nil {
		blocks = append(blocks,
			out.Block{Type: out.BlockDivider},
			out.Block{Type: out.BlockContext, Elements: []any{out.Markdown("*使用模型：* " + model)}},
			out.Block{Type: out.BlockSection, Text: out.Markdown(aiResultText(analysis.Result))},
		)
	}

	blocks = append(blocks, out.Block{Type: out.BlockActions, Elements: []any{
		&out.Button{Type: "button", Text: out.PlainText("查看完整郵件"), URL: MessageLink(msg.ID)},
	}})

	return &out.ChatMessage{Text: alertHeader(analysis) + ": " + msg.Subject, Blocks: blocks}
}

func emotionLines(title string, total, all int, emotions []domain.Emotion, counts map[domain.Emotion]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "• %s: %d (%d%%)", title, total, percent(total, all))
	for _, e := range emotions {
		fmt.Fprintf(&b, "\n  - %s %s: %d", e.Icon(), e.DisplayName(), counts[e])
	}
	return b.String()
}

// BuildReport renders the daily statistics report.
func BuildReport(report *domain.DailyReport, loc *time.Location) *out.ChatMessage {
	if loc == nil {
		loc = time.UTC
	}
	s := report.Stats
	title := fmt.Sprintf("📊 郵件監控統計報告 (%s)", report.Date.In(loc).Format(dateLayout))

	scope := "📧 *基本統計數據：*"
	if s.DateRange != "" && s.DateRange != domain.DateRangeToday {
		scope += "\n(資料範圍：" + s.DateRange + ")"
	}

	counts := fmt.Sprintf(
		"• 檢查郵件總數: %d\n• 實際進行AI分析的郵件數: %d (%d%%)\n• 觸發關鍵字的郵件數: %d\n• AI建議注意的郵件數: %d\n• AI檢測到問題的郵件數: %d (%d%%)",
		s.TotalEmails,
		s.AIAnalyzedEmails, percent(s.AIAnalyzedEmails, s.TotalEmails),
		s.KeywordTriggeredEmails,
		s.AITriggeredEmails,
		s.ProblemDetected, percent(s.ProblemDetected, s.TotalEmails),
	)

	blocks := []out.Block{
		{Type: out.BlockHeader, Text: out.PlainText(title)},
		{Type: out.BlockSection, Text: out.Markdown(scope)},
		{Type: out.BlockSection, Text: out.Markdown(counts)},
		{Type: out.BlockContext, Elements: []any{out.Markdown(
			"*指標說明*\n• 檢查郵件總數：所有被標記為已檢查的郵件\n• 實際進行AI分析的郵件數：成功執行情緒分析的郵件",
		)}},
		{Type: out.BlockSection, Text: out.Markdown("*情緒分析分布:*\n" +
			emotionLines("正面情緒", s.Positive, s.TotalEmails, domain.PositiveEmotions, s.Emotions))},
		{Type: out.BlockSection, Text: out.Markdown(
			emotionLines("負面情緒", s.Negative, s.TotalEmails, domain.NegativeEmotions, s.Emotions))},
		{Type: out.BlockSection, Text: out.Markdown(
			emotionLines("中性情緒", s.Neutral, s.TotalEmails, domain.NeutralEmotions, s.Emotions))},
		{Type: out.BlockDivider},
		{Type: out.BlockContext, Elements: []any{out.Markdown(
			fmt.Sprintf("🤖 *AI 生成的分析報告*\n(由 %s 模型生成)", report.Model),
		)}},
		{Type: out.BlockSection, Text: out.Markdown(report.Summary)},
	}

	return &out.ChatMessage{Text: title, Blocks: blocks}
}

// BuildClassifierError renders the operational alert for a classifier failure.
func BuildClassifierError(channel, message, raw string) *out.ChatMessage {
	return &out.ChatMessage{
		Channel: channel,
		Text:    fmt.Sprintf("🚨 *LLM API 發生錯誤*\n*錯誤訊息:* %s\n*原始回應:*\n```%s```", message, raw),
	}
}
