package mongodb

import (
	"strings"
	"testing"
	"time"

	"triage_worker/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestReportDocument_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC)
	a := &ReportAdapter{retention: time.Hour, now: func() time.Time { return now }}

	tests := []struct {
		name       string
		summary    string
		compressed bool
	}{
		{"small", "平穩", false},
		{"large", strings.Repeat("負面情緒集中於退信問題。", 100), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &domain.DailyReport{
				Date: now,
				Stats: &domain.DailyStatistics{
					IncludedDates: []string{"2024-03-02", "2024-03-03", "2024-03-04"},
					DateRange:     domain.DateRangeWeekend,
					TotalEmails:   12,
					Negative:      2,
					Emotions:      map[domain.Emotion]int{domain.EmotionAngry: 2},
				},
				Summary: tt.summary,
				Model:   "gemini-test",
			}

			doc, err := a.toDocument(report)
			require.NoError(t, err)
			assert.Equal(t, "2024-03-04", doc.Day)
			assert.Equal(t, tt.compressed, doc.IsCompressed)
			assert.Equal(t, now.Add(time.Hour), doc.ExpiresAt)
			if tt.compressed {
				assert.Less(t, doc.CompressedSize, doc.OriginalSize)
			}

			got, err := fromDocument(doc)
			require.NoError(t, err)
			assert.Equal(t, report.Summary, got.Summary)
			assert.Equal(t, report.Model, got.Model)
			assert.Equal(t, report.Stats, got.Stats)
			assert.True(t, report.Date.Equal(got.Date))
		})
	}
}

func TestPrefixFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, prefixFilter(""))
	assert.Equal(t, bson.M{"_id": bson.M{"$regex": `^2024-03-04_email\.`}}, prefixFilter("2024-03-04_email."))
}
