package domain

import "strings"

// Sentiment is the coarse polarity assigned by the classifier.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is one of the three polarities.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Emotion is the detailed emotion, a closed set of 13 values.
type Emotion string

const (
	// === Positive ===
	EmotionDelighted Emotion = "delighted"
	EmotionGrateful  Emotion = "grateful"
	EmotionImpressed Emotion = "impressed"
	EmotionSatisfied Emotion = "satisfied"
	EmotionHopeful   Emotion = "hopeful"

	// === Negative ===
	EmotionAngry        Emotion = "angry"
	EmotionFrustrated   Emotion = "frustrated"
	EmotionDisappointed Emotion = "disappointed"
	EmotionWorried      Emotion = "worried"
	EmotionConfused     Emotion = "confused"

	// === Neutral ===
	EmotionFactual     Emotion = "factual"
	EmotionInquiring   Emotion = "inquiring"
	EmotionInformative Emotion = "informative"
)

var (
	PositiveEmotions = []Emotion{EmotionDelighted, EmotionGrateful, EmotionImpressed, EmotionSatisfied, EmotionHopeful}
	NegativeEmotions = []Emotion{EmotionAngry, EmotionFrustrated, EmotionDisappointed, EmotionWorried, EmotionConfused}
	NeutralEmotions  = []Emotion{EmotionFactual, EmotionInquiring, EmotionInformative}
)

// AllEmotions lists every emotion, positive first.
func AllEmotions() []Emotion {
	all := make([]Emotion, 0, len(PositiveEmotions)+len(NegativeEmotions)+len(NeutralEmotions))
	all = append(all, PositiveEmotions...)
	all = append(all, NegativeEmotions...)
	return append(all, NeutralEmotions...)
}

// Sentiment returns the polarity group the emotion belongs to, or "" if unknown.
func (e Emotion) Sentiment() Sentiment {
	for _, group := range []struct {
		s        Sentiment
		emotions []Emotion
	}{
		{SentimentPositive, PositiveEmotions},
		{SentimentNegative, NegativeEmotions},
		{SentimentNeutral, NeutralEmotions},
	} {
		for _, x := range group.emotions {
			if x == e {
				return group.s
			}
		}
	}
	return ""
}

// Valid reports whether e is one of the 13 known emotions.
func (e Emotion) Valid() bool {
	return e.Sentiment() != ""
}

// Severity grades how urgently a message needs a human.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityUrgent Severity = "urgent"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityUrgent:
		return true
	}
	return false
}

// Escalated is true for severities that pass the AI-only notification gate.
func (s Severity) Escalated() bool {
	return s == SeverityHigh || s == SeverityUrgent
}

// ClassificationResult is the classifier's verdict for one message.
type ClassificationResult struct {
	ShouldNotify     bool      `json:"shouldNotify"`
	PrimarySentiment Sentiment `json:"primarySentiment"`
	DetailedEmotion  Emotion   `json:"detailedEmotion"`
	ProblemDetected  bool      `json:"problemDetected"`
	IsPromotional    bool      `json:"isPromotional"`
	Severity         Severity  `json:"severity"`
	Summary          string    `json:"summary"`
}

// Normalize lowercases the enums and fills defaults.
// Unknown severity becomes medium; a missing sentiment is derived from the emotion.
func (r *ClassificationResult) Normalize() {
	r.PrimarySentiment = Sentiment(strings.ToLower(strings.TrimSpace(string(r.PrimarySentiment))))
	r.DetailedEmotion = Emotion(strings.ToLower(strings.TrimSpace(string(r.DetailedEmotion))))
	r.Severity = Severity(strings.ToLower(strings.TrimSpace(string(r.Severity))))

	if !r.Severity.Valid() {
		r.Severity = SeverityMedium
	}
	if r.PrimarySentiment == "" {
		r.PrimarySentiment = r.DetailedEmotion.Sentiment()
	}
}

// EnforceConsistency makes a detected problem always request attention.
// Returns true when the result had to be changed.
func (r *ClassificationResult) EnforceConsistency() bool {
	if r.ProblemDetected && !r.ShouldNotify {
		r.ShouldNotify = true
		return true
	}
	return false
}

// MessageAnalysis is the per-message outcome of keyword and AI checks.
type MessageAnalysis struct {
	KeywordsFound []string              `json:"keywordsFound"`
	AIDetected    bool                  `json:"aiDetected"`
	Result        *ClassificationResult `json:"classificationResult,omitempty"`
}

// HasKeywords reports whether any keyword rule matched.
func (a *MessageAnalysis) HasKeywords() bool {
	return len(a.KeywordsFound) > 0
}

// IsPromotional reports the classifier's promotional flag, false without a result.
func (a *MessageAnalysis) IsPromotional() bool {
	return a.Result != nil && a.Result.IsPromotional
}

// AnalysisRecord is the flat form persisted per message: the result fields plus the signals.
type AnalysisRecord struct {
	ShouldNotify     bool      `json:"shouldNotify"`
	PrimarySentiment Sentiment `json:"primarySentiment"`
	DetailedEmotion  Emotion   `json:"detailedEmotion"`
	ProblemDetected  bool      `json:"problemDetected"`
	IsPromotional    bool      `json:"isPromotional"`
	Severity         Severity  `json:"severity"`
	Summary          string    `json:"summary"`
	KeywordsFound    []string  `json:"keywordsFound"`
	AIDetected       bool      `json:"aiDetected"`
}

// NewAnalysisRecord flattens an analysis with a result. It returns nil without one.
func NewAnalysisRecord(a *MessageAnalysis) *AnalysisRecord {
	if a == nil || a.Result == nil {
		return nil
	}
	keywords := a.KeywordsFound
	if keywords == nil {
		keywords = []string{}
	}
	r := a.Result
	return &AnalysisRecord{
		ShouldNotify:     r.ShouldNotify,
		PrimarySentiment: r.PrimarySentiment,
		DetailedEmotion:  r.DetailedEmotion,
		ProblemDetected:  r.ProblemDetected,
		IsPromotional:    r.IsPromotional,
		Severity:         r.Severity,
		Summary:          r.Summary,
		KeywordsFound:    keywords,
		AIDetected:       a.AIDetected,
	}
}

var emotionDisplay = map[Emotion][2]string{
	EmotionDelighted:    {"😄", "欣喜"},
	EmotionGrateful:     {"🙏", "感謝"},
	EmotionImpressed:    {"🤩", "印象深刻"},
	EmotionSatisfied:    {"😌", "滿意"},
	EmotionHopeful:      {"🤞", "充滿希望"},
	EmotionAngry:        {"😡", "憤怒"},
	EmotionFrustrated:   {"😤", "沮喪"},
	EmotionDisappointed: {"😞", "失望"},
	EmotionWorried:      {"😟", "擔憂"},
	EmotionConfused:     {"😕", "困惑"},
	EmotionFactual:      {"📝", "事實陳述"},
	EmotionInquiring:    {"🔍", "詢問"},
	EmotionInformative:  {"ℹ️", "提供信息"},
}

// DisplayName is the Chinese name shown in reports, or the raw value if unknown.
func (e Emotion) DisplayName() string {
	if d, ok := emotionDisplay[e]; ok {
		return d[1]
	}
	return string(e)
}

// Icon is the emoji shown next to the emotion.
func (e Emotion) Icon() string {
	if d, ok := emotionDisplay[e]; ok {
		return d[0]
	}
	return "❓"
}

// DisplayName is the Chinese name of the polarity.
func (s Sentiment) DisplayName() string {
	switch s {
	case SentimentPositive:
		return "正面"
	case SentimentNegative:
		return "負面"
	case SentimentNeutral:
		return "中性"
	}
	return "未知"
}

// Icon is the emoji shown next to the polarity.
func (s Sentiment) Icon() string {
	switch s {
	case SentimentPositive:
		return "😊"
	case SentimentNegative:
		return "😠"
	case SentimentNeutral:
		return "😐"
	}
	return "❓"
}
