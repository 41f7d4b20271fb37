package ports

import (
	"context"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// BatchExecutor is the inbound contract for every batch action.
type BatchExecutor interface {
	Execute(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error)
}

// DocumentClassifier classifies raw files that are already decoded.
type DocumentClassifier interface {
	ClassifyDocuments(ctx context.Context, docs []domain.Document) []domain.ClassificationResult
}

// ResultReader is the inbound read model for persisted classification results.
type ResultReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ClassificationResult, error)
}

// BatchEnqueuer hands batch requests to background workers.
type BatchEnqueuer interface {
	Enqueue(ctx context.Context, req domain.BatchRequest) error
}
