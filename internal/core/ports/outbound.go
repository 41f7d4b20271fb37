package ports

import (
	"context"
	"time"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// ObjectStore stages source documents and classification results.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string, limit int) ([]domain.ObjectInfo, error)
}

// ClassificationModel sends a content payload to the generative model and
// returns its raw text reply.
type ClassificationModel interface {
	Generate(ctx context.Context, payload domain.ContentPayload) (string, error)
}

// TableDecoder turns spreadsheet bytes into rows.
type TableDecoder interface {
	Decode(data []byte, filename string) ([]domain.Sheet, error)
}

// DocumentInspector adds format-specific metadata to a result.
type DocumentInspector interface {
	Inspect(doc domain.Document) (map[string]string, error)
}

// ResultStore persists classification results.
type ResultStore interface {
	Save(ctx context.Context, result domain.ClassificationResult) error
	ListRecent(ctx context.Context, limit int) ([]domain.ClassificationResult, error)
}

// BatchQueue publishes and consumes batch requests for asynchronous execution.
type BatchQueue interface {
	PublishBatch(ctx context.Context, req domain.BatchRequest) error
	SubscribeBatches(ctx context.Context, handler func(context.Context, domain.BatchRequest) error) error
}

// PipelineMetrics observes per-document processing and adaptation quality.
type PipelineMetrics interface {
	StartDocument()
	FinishDocument(label domain.Label, duration time.Duration, failed bool)
	ObserveAdaptation(docType domain.DocumentType, outcome domain.AdaptationOutcome)
	ObserveResultStoreFailure()
}
