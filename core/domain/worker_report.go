package domain

import "time"

// RunStatistics counts one batch invocation. Never persisted.
type RunStatistics struct {
	TotalThreads      int `json:"totalThreads"`
	TotalMessages     int `json:"totalMessages"`
	AlreadyProcessed  int `json:"alreadyProcessed"`
	NewlyProcessed    int `json:"newlyProcessed"`
	NotificationsSent int `json:"notificationsSent"`
	Failed            int `json:"failed"`
}

// Date range notes shown in the report
const (
	DateRangeToday   = "今日"
	DateRangeWeekend = "週六至今日"
)

// DailyStatistics joins label counters with the emotion distribution of stored analyses.
type DailyStatistics struct {
	IncludedDates []string `json:"includedDates"`
	DateRange     string   `json:"dateRange"`

	TotalEmails            int `json:"totalEmails"`
	KeywordTriggeredEmails int `json:"keywordTriggeredEmails"`
	AITriggeredEmails      int `json:"aiTriggeredEmails"`
	AIAnalyzedEmails       int `json:"aiAnalyzedEmails"`
	ProblemDetected        int `json:"problemDetected"`

	Positive int             `json:"positive"`
	Negative int             `json:"negative"`
	Neutral  int             `json:"neutral"`
	Emotions map[Emotion]int `json:"emotions"`
}

// NewDailyStatistics returns statistics with every emotion counter present at zero.
func NewDailyStatistics() *DailyStatistics {
	emotions := make(map[Emotion]int, 13)
	for _, e := range AllEmotions() {
		emotions[e] = 0
	}
	return &DailyStatistics{Emotions: emotions}
}

// RecomputeTotals derives the polarity totals from their emotion subcategories.
// It reports whether any total was corrected.
func (s *DailyStatistics) RecomputeTotals() bool {
	sum := func(group []Emotion) int {
		n := 0
		for _, e := range group {
			n += s.Emotions[e]
		}
		return n
	}

	pos, neg, neu := sum(PositiveEmotions), sum(NegativeEmotions), sum(NeutralEmotions)
	changed := pos != s.Positive || neg != s.Negative || neu != s.Neutral
	s.Positive, s.Negative, s.Neutral = pos, neg, neu
	return changed
}

// DailyReport is what the report job publishes.
type DailyReport struct {
	Date    time.Time        `json:"date"`
	Stats   *DailyStatistics `json:"stats"`
	Summary string           `json:"summary"`
	Model   string           `json:"model"`
}
