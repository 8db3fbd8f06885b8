package out

import (
	"context"

	"triage_worker/core/domain"
)

// Classifier is the outbound port to the sentiment and problem classifier.
type Classifier interface {
	// ClassifyMessage returns nil with an error when no classification is available.
	// Boundary failures have already been reported on the error channel.
	ClassifyMessage(ctx context.Context, subject, body, sender string) (*domain.ClassificationResult, error)

	// SummarizeDaily never fails; a fixed fallback text replaces the summary on error.
	SummarizeDaily(ctx context.Context, stats *domain.DailyStatistics) string

	// Model names the model behind the classifier, for attribution in messages.
	Model() string
}

// TextGenerator produces free text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Available() bool
	Model() string
}
