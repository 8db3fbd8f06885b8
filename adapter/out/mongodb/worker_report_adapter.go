package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Report Archive
// =============================================================================

const (
	collectionReports = "daily_reports"

	// Compression threshold for report content
	reportCompressionThreshold = 512 // 512 bytes

	reportDayLayout = "2006-01-02"
	defaultTimeout  = 10 * time.Second
)

// DefaultReportRetention is how long archived reports are kept before the TTL index removes them.
const DefaultReportRetention = 90 * 24 * time.Hour

// ReportAdapter implements out.ReportArchive using MongoDB.
type ReportAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
	now        func() time.Time
}

var _ out.ReportArchive = (*ReportAdapter)(nil)

// NewReportAdapter creates a new MongoDB report archive.
func NewReportAdapter(db *mongo.Database, retention time.Duration) *ReportAdapter {
	if retention <= 0 {
		retention = DefaultReportRetention
	}
	return &ReportAdapter{
		collection: db.Collection(collectionReports),
		retention:  retention,
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

// reportDocument is keyed by report day, so a rerun on the same day replaces the earlier report.
type reportDocument struct {
	Day   string `bson:"_id"`
	Model string `bson:"model"`

	// Content (potentially compressed JSON)
	Content      []byte `bson:"content"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// =============================================================================
// Operations
// =============================================================================

// SaveReport upserts the report of its day.
func (a *ReportAdapter) SaveReport(ctx context.Context, report *domain.DailyReport) error {
	doc, err := a.toDocument(report)
	if err != nil {
		return fmt.Errorf("failed to convert report to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"_id": doc.Day}, doc, opts); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport returns the archived report of day, or nil when none exists.
func (a *ReportAdapter) GetReport(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	var doc reportDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": day.Format(reportDayLayout)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return fromDocument(&doc)
}

// =============================================================================
// Conversion
// =============================================================================

func (a *ReportAdapter) toDocument(report *domain.DailyReport) (*reportDocument, error) {
	content, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	originalSize := int64(len(content))
	compressedSize := originalSize
	isCompressed := false

	// Compress if content is large enough
	if originalSize > reportCompressionThreshold {
		compressed, err := compressReport(content)
		if err != nil {
			return nil, fmt.Errorf("failed to compress content: %w", err)
		}
		content = compressed
		isCompressed = true
		compressedSize = int64(len(compressed))
	}

	now := a.now()
	return &reportDocument{
		Day:            report.Date.Format(reportDayLayout),
		Model:          report.Model,
		Content:        content,
		IsCompressed:   isCompressed,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.retention),
	}, nil
}

func fromDocument(doc *reportDocument) (*domain.DailyReport, error) {
	content := doc.Content
	if doc.IsCompressed {
		decompressed, err := decompressReport(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress content: %w", err)
		}
		content = decompressed
	}

	var report domain.DailyReport
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return &report, nil
}

func compressReport(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressReport(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
