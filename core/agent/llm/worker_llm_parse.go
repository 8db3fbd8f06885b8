package llm

import (
	"errors"
	"strings"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"

	"github.com/goccy/go-json"
)

var errNoJSONObject = errors.New("no JSON object in response text")

// rawClassification accepts the older "sentiment" field next to "primarySentiment".
type rawClassification struct {
	ShouldNotify     bool   `json:"shouldNotify"`
	PrimarySentiment string `json:"primarySentiment"`
	Sentiment        string `json:"sentiment"`
	DetailedEmotion  string `json:"detailedEmotion"`
	ProblemDetected  bool   `json:"problemDetected"`
	IsPromotional    bool   `json:"isPromotional"`
	Severity         string `json:"severity"`
	Summary          string `json:"summary"`
}

// extractJSONObject returns the text from the first '{' to the last '}'.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseClassification decodes the model text into a normalized result.
func ParseClassification(text string) (*domain.ClassificationResult, error) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return nil, apperr.ClassifierParseError("無法從回應中提取 JSON", text, errNoJSONObject)
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, apperr.ClassifierParseError("解析 JSON 時出錯", text, err)
	}

	sentiment := raw.PrimarySentiment
	if sentiment == "" {
		sentiment = raw.Sentiment
	}

	result := &domain.ClassificationResult{
		ShouldNotify:     raw.ShouldNotify,
		PrimarySentiment: domain.Sentiment(sentiment),
		DetailedEmotion:  domain.Emotion(raw.DetailedEmotion),
		ProblemDetected:  raw.ProblemDetected,
		IsPromotional:    raw.IsPromotional,
		Severity:         domain.Severity(raw.Severity),
		Summary:          strings.TrimSpace(raw.Summary),
	}
	result.Normalize()
	return result, nil
}
