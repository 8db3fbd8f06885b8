package llm

import (
	"fmt"
	"strings"

	"triage_worker/core/domain"
)

// maxContentRunes bounds subject plus body sent for classification.
const maxContentRunes = 1000

// truncateBody cuts s to maxLen runes and appends "..." when it was cut.
func truncateBody(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// classifyPromptTemplate takes the message content as its only argument.
const classifyPromptTemplate = `你是一個專門分析客戶郵件問題的AI專家。請分析以下電子郵件，判斷情緒類型、嚴重程度，以及是否需要通知管理員。

詳細情緒類型：

正面情緒：
- delighted (欣喜): 強烈喜悅或興奮
- grateful (感謝): 表達感激或謝意
- impressed (印象深刻): 對服務或產品表示讚賞
- satisfied (滿意): 一般程度的滿意或認可
- hopeful (充滿希望): 對未來結果表示樂觀

負面情緒：
- angry (憤怒): 強烈不滿或憤怒
- frustrated (沮喪): 挫折感或不便
- disappointed (失望): 期望未被滿足
- worried (擔憂): 擔心或焦慮
- confused (困惑): 不理解或混淆

中性情緒：
- factual (事實陳述): 純粹傳達資訊或事實
- inquiring (詢問): 主要在詢問資訊
- informative (提供信息): 提供資訊或回饋

滿足以下任一條件時 shouldNotify 為 true：
1. 表達極度正面或負面的情緒（如強烈感謝、極大讚賞、強烈不滿或憤怒）
2. 反映服務可能有嚴重系統性問題，例如：
   - 大量郵件寄送失敗或退信
   - 系統大量異常或錯誤
   - 與詐騙相關的安全問題
   - 服務持續當機或無法使用
   - 影響大量用戶或客戶的問題
一般業務流程中的小問題、單一客戶的個別問題，或可由一般客服流程解決的問題不需通知。
若 problemDetected 為 true，shouldNotify 必須為 true。

isPromotional 判斷：電子報、行銷活動、產品推廣、優惠通知、研討會邀請等群發內容為 true。

severity 判斷：
- low: 無需處理或僅供參考
- medium: 需要一般客服處理
- high: 影響多位客戶或需盡快處理
- urgent: 服務中斷、大規模失敗或安全事件，需立即處理

電子郵件內容：
"""
%s
"""

請只回傳一個JSON物件，格式如下：
{
  "shouldNotify": true/false,
  "primarySentiment": "positive"/"negative"/"neutral",
  "detailedEmotion": "delighted"/"grateful"/"impressed"/"satisfied"/"hopeful"/"angry"/"frustrated"/"disappointed"/"worried"/"confused"/"factual"/"inquiring"/"informative",
  "problemDetected": true/false,
  "isPromotional": true/false,
  "severity": "low"/"medium"/"high"/"urgent",
  "summary": "簡短摘要說明分析結果與原因，最多50字"
}
`

// BuildClassifyPrompt builds the classification prompt for one message.
func BuildClassifyPrompt(subject, body string) string {
	content := truncateBody(subject+"\n\n"+body, maxContentRunes)
	return fmt.Sprintf(classifyPromptTemplate, content)
}

// BuildSummaryPrompt builds the daily summary prompt from aggregate counters.
func BuildSummaryPrompt(stats *domain.DailyStatistics) string {
	var b strings.Builder
	b.WriteString("請為以下郵件監控數據生成一個簡短的每日摘要報告。注意：你的回答將在Slack消息中被明確標記為「AI生成內容」。\n\n")
	b.WriteString("統計數據：\n")
	fmt.Fprintf(&b, "- 檢查郵件總數: %d\n", stats.TotalEmails)
	fmt.Fprintf(&b, "- 觸發關鍵字郵件數: %d\n", stats.KeywordTriggeredEmails)
	fmt.Fprintf(&b, "- AI 建議注意郵件數: %d\n\n", stats.AITriggeredEmails)
	b.WriteString("詳細情緒分布：\n")

	groups := []struct {
		name     string
		total    int
		emotions []domain.Emotion
	}{
		{"正面情緒", stats.Positive, domain.PositiveEmotions},
		{"負面情緒", stats.Negative, domain.NegativeEmotions},
		{"中性情緒", stats.Neutral, domain.NeutralEmotions},
	}
	for _, g := range groups {
		fmt.Fprintf(&b, "- %s(%d封)：\n", g.name, g.total)
		for _, e := range g.emotions {
			fmt.Fprintf(&b, "  - %s: %d封\n", e.DisplayName(), stats.Emotions[e])
		}
	}
	fmt.Fprintf(&b, "\n- 檢測到問題的郵件: %d封\n\n", stats.ProblemDetected)
	b.WriteString("請提供簡短的分析和見解，重點關注任何異常或趨勢。整體保持在100字以內。回傳純文字，不要使用JSON格式。\n")
	return b.String()
}
