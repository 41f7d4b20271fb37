package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

const resultsPrefix = "results/"

type storedResult struct {
	domain.ClassificationResult
	RecordedAt time.Time `json:"recorded_at"`
}

// ResultRepository writes one JSON object per result into the results bucket.
type ResultRepository struct {
	store  ports.ObjectStore
	bucket string
	now    func() time.Time
}

func NewResultRepository(store ports.ObjectStore, bucket string) *ResultRepository {
	return &ResultRepository{store: store, bucket: bucket, now: time.Now}
}

func (r *ResultRepository) Save(ctx context.Context, res domain.ClassificationResult) error {
	now := r.now().UTC()
	body, err := json.Marshal(storedResult{ClassificationResult: res, RecordedAt: now})
	if err != nil {
		return fmt.Errorf("marshal classification result: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s_%s.json", resultsPrefix, now.Format("2006/01/02"), now.Format("150405.000000000"), uuid.NewString()[:8])
	if err := r.store.Put(ctx, r.bucket, key, body, "application/json"); err != nil {
		return fmt.Errorf("store classification result: %w", err)
	}
	return nil
}

// ListRecent reads result objects newest first. Keys sort by time, so the
// tail of the listing holds the most recent entries.
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]domain.ClassificationResult, error) {
	objects, err := r.store.List(ctx, r.bucket, resultsPrefix, 0)
	if err != nil {
		return nil, fmt.Errorf("list classification results: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}

	results := make([]domain.ClassificationResult, 0, len(objects))
	for _, obj := range objects {
		body, err := r.store.Get(ctx, r.bucket, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("read classification result %s: %w", obj.Key, err)
		}
		var stored storedResult
		if err := json.Unmarshal(body, &stored); err != nil {
			return nil, fmt.Errorf("decode classification result %s: %w", obj.Key, err)
		}
		results = append(results, stored.ClassificationResult)
	}
	return results, nil
}
