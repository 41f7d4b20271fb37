package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

type storedObject struct {
	data        []byte
	contentType string
}

type storeFake struct {
	mu      sync.Mutex
	objects map[string]storedObject
	putErr  error
	getErr  error
	listErr error
	failKey string
}

func newStoreFake() *storeFake {
	return &storeFake{objects: map[string]storedObject{}}
}

func (f *storeFake) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = storedObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (f *storeFake) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.failKey != "" && strings.Contains(key, f.failKey) {
		return nil, fmt.Errorf("get %s: access denied", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get object", errors.New(key))
	}
	return obj.data, nil
}

func (f *storeFake) List(_ context.Context, bucket, prefix string, limit int) ([]domain.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ObjectInfo
	for full, obj := range f.objects {
		key := strings.TrimPrefix(full, bucket+"/")
		if key == full || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, domain.ObjectInfo{Key: key, Size: int64(len(obj.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// modelFake replies with reply unless the payload mentions failOn.
type modelFake struct {
	mu       sync.Mutex
	reply    string
	failOn   string
	payloads []domain.ContentPayload
}

func (f *modelFake) Generate(_ context.Context, payload domain.ContentPayload) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()

	for _, part := range payload {
		if f.failOn == "" {
			break
		}
		if strings.Contains(part.Text, f.failOn) || bytes.Contains(part.Data, []byte(f.failOn)) {
			return "", errors.New("model unavailable")
		}
	}
	return f.reply, nil
}

type resultsFake struct {
	mu    sync.Mutex
	saved []domain.ClassificationResult
	err   error
}

func (f *resultsFake) Save(_ context.Context, res domain.ClassificationResult) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, res)
	return nil
}

func (f *resultsFake) ListRecent(_ context.Context, limit int) ([]domain.ClassificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) > limit {
		return f.saved[:limit], nil
	}
	return f.saved, nil
}

type queueFake struct {
	published []domain.BatchRequest
	err       error
}

func (f *queueFake) PublishBatch(_ context.Context, req domain.BatchRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeBatches(context.Context, func(context.Context, domain.BatchRequest) error) error {
	return errors.New("not implemented")
}

type metricsFake struct {
	mu              sync.Mutex
	started         int
	finished        int
	failed          int
	adaptations     map[domain.AdaptationOutcome]int
	resultStoreFail int
}

func (f *metricsFake) StartDocument() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *metricsFake) FinishDocument(_ domain.Label, _ time.Duration, failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
	if failed {
		f.failed++
	}
}

func (f *metricsFake) ObserveAdaptation(_ domain.DocumentType, outcome domain.AdaptationOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adaptations == nil {
		f.adaptations = map[domain.AdaptationOutcome]int{}
	}
	f.adaptations[outcome]++
}

func (f *metricsFake) ObserveResultStoreFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultStoreFail++
}

func encoded(name, content string) domain.EncodedFile {
	return domain.EncodedFile{Filename: name, Content: base64.StdEncoding.EncodeToString([]byte(content))}
}

func TestExecuteClassifyUploadsKeepsInputOrder(t *testing.T) {
	store := newStoreFake()
	model := &modelFake{reply: `{"classification": "Loss Run"}`}
	results := &resultsFake{}
	uc := NewClassifyUseCase(Dependencies{Store: store, Model: model, Results: results}, Options{
		UploadsBucket: "uploads",
		Concurrency:   3,
	})

	files := make([]domain.EncodedFile, 0, 8)
	for i := range 8 {
		files = append(files, encoded(fmt.Sprintf("file-%d.csv", i), "date,amount\n"))
	}

	resp, err := uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionClassifyUploads, Files: files})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.TotalFiles != 8 || len(resp.Classifications) != 8 {
		t.Fatalf("expected 8 results, got total=%d len=%d", resp.TotalFiles, len(resp.Classifications))
	}
	for i, res := range resp.Classifications {
		if res.Filename != files[i].Filename {
			t.Fatalf("result %d out of order: %s", i, res.Filename)
		}
		if res.Classification != domain.LabelLossRun {
			t.Fatalf("result %d: expected Loss Run, got %q (%s)", i, res.Classification, res.Error)
		}
	}
	if len(results.saved) != 8 {
		t.Fatalf("expected 8 persisted results, got %d", len(results.saved))
	}
}

func TestExecuteIsolatesSingleDocumentFailure(t *testing.T) {
	store := newStoreFake()
	model := &modelFake{reply: `{"classification": "Mod sheet"}`, failOn: "POISON"}
	metrics := &metricsFake{}
	uc := NewClassifyUseCase(Dependencies{Store: store, Model: model, Metrics: metrics}, Options{UploadsBucket: "uploads"})

	files := []domain.EncodedFile{
		encoded("a.txt", "experience mod"),
		encoded("b.txt", "POISON"),
		encoded("c.txt", "rating worksheet"),
		encoded("d.txt", "more"),
	}
	resp, err := uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionClassifyUploads, Files: files})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.Classifications) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(resp.Classifications))
	}
	for i, res := range resp.Classifications {
		if i == 1 {
			if res.Classification != domain.LabelUnknown || !strings.Contains(res.Error, "model unavailable") {
				t.Fatalf("expected failed result for b.txt, got %+v", res)
			}
			continue
		}
		if res.Classification != domain.LabelModSheet || res.Error != "" {
			t.Fatalf("result %d should be unaffected, got %+v", i, res)
		}
	}
	if metrics.started != metrics.finished || metrics.failed != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestExecuteReportsAdaptationFailurePerItem(t *testing.T) {
	store := newStoreFake()
	model := &modelFake{reply: `{"classification": "Mod sheet"}`}
	metrics := &metricsFake{}
	uc := NewClassifyUseCase(Dependencies{Store: store, Model: model, Metrics: metrics}, Options{UploadsBucket: "uploads"})

	files := []domain.EncodedFile{
		encoded("a.txt", "experience mod worksheet"),
		{Filename: "k.csv", Content: base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})},
		encoded("c.txt", "rating worksheet"),
	}
	resp, err := uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionClassifyUploads, Files: files})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.Classifications) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(resp.Classifications))
	}

	failed := resp.Classifications[1]
	if failed.Filename != "k.csv" || failed.Classification != domain.LabelUnknown {
		t.Fatalf("expected Unknown for k.csv, got %+v", failed)
	}
	if !strings.Contains(failed.Error, "adapt content") || !strings.Contains(failed.Error, "not valid UTF-8") {
		t.Fatalf("expected adaptation cause in error, got %q", failed.Error)
	}
	if failed.Metadata[domain.MetaAdaptation] != string(domain.AdaptationFallback) || failed.Metadata[domain.MetaAdaptReason] == "" {
		t.Fatalf("expected fallback metadata with reason, got %+v", failed.Metadata)
	}
	for _, i := range []int{0, 2} {
		res := resp.Classifications[i]
		if res.Classification != domain.LabelModSheet || res.Error != "" {
			t.Fatalf("result %d should be unaffected, got %+v", i, res)
		}
	}

	if len(model.payloads) != 2 {
		t.Fatalf("model must not see the failed document, got %d calls", len(model.payloads))
	}
	for _, payload := range model.payloads {
		for _, part := range payload {
			if strings.Contains(part.Text, "Error processing file") {
				t.Fatalf("emergency payload reached the model: %q", part.Text)
			}
		}
	}
	if metrics.failed != 1 || metrics.adaptations[domain.AdaptationFallback] != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestExecuteInvalidBase64IsReportedPerItem(t *testing.T) {
	store := newStoreFake()
	uc := NewClassifyUseCase(Dependencies{Store: store, Model: &modelFake{reply: `{"classification": "Loss Run"}`}}, Options{UploadsBucket: "uploads"})

	resp, err := uc.Execute(context.Background(), domain.BatchRequest{
		Action: domain.ActionClassifyUploads,
		Files: []domain.EncodedFile{
			{Filename: "bad.pdf", Content: "!!not base64!!"},
			encoded("good.pdf", "%PDF"),
			{Content: "%%%"},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	bad := resp.Classifications[0]
	if bad.Classification != domain.LabelUnknown || bad.Error != "Invalid file content" {
		t.Fatalf("unexpected result for invalid content: %+v", bad)
	}
	if resp.Classifications[1].Classification != domain.LabelLossRun {
		t.Fatalf("expected good file to classify, got %+v", resp.Classifications[1])
	}
	if resp.Classifications[2].Filename != "unknown" {
		t.Fatalf("expected default filename, got %q", resp.Classifications[2].Filename)
	}
	if len(store.objects) != 1 {
		t.Fatalf("only decodable files should be staged, got %d objects", len(store.objects))
	}
}

func TestExecuteRejectsEmptyBatches(t *testing.T) {
	uc := NewClassifyUseCase(Dependencies{Store: newStoreFake()}, Options{})

	for _, req := range []domain.BatchRequest{
		{Action: domain.ActionClassifyUploads},
		{Action: domain.ActionClassifyReferences},
		{Action: "shred"},
	} {
		_, err := uc.Execute(context.Background(), req)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("action %q: expected invalid input, got %v", req.Action, err)
		}
	}
}

func TestExecuteClassifyReferences(t *testing.T) {
	store := newStoreFake()
	_ = store.Put(context.Background(), "uploads", "documents/2025/01/01/00-00-00/abcd1234_claims.csv", []byte("claim,amount\n"), domain.MimeCSV)
	_ = store.Put(context.Background(), "uploads", "documents/2025/01/01/00-00-00/efgh5678_denied.csv", []byte("x"), domain.MimeCSV)
	store.failKey = "denied"
	model := &modelFake{reply: "I'm confident this is a loss run"}
	uc := NewClassifyUseCase(Dependencies{Store: store, Model: model}, Options{UploadsBucket: "uploads"})

	resp, err := uc.Execute(context.Background(), domain.BatchRequest{
		Action: domain.ActionClassifyReferences,
		References: []domain.Reference{
			{Key: "documents/2025/01/01/00-00-00/abcd1234_claims.csv"},
			{Key: "documents/2025/01/01/00-00-00/efgh5678_denied.csv"},
			{Key: "documents/missing.pdf", Filename: "missing.pdf"},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	first := resp.Classifications[0]
	if first.Filename != "claims.csv" || first.Classification != domain.LabelLossRun {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if first.Metadata[domain.MetaDocumentType] != "csv" || first.Metadata[domain.MetaAdaptation] != "ok" {
		t.Fatalf("unexpected metadata: %+v", first.Metadata)
	}
	for _, res := range resp.Classifications[1:] {
		if res.Classification != domain.LabelUnknown || res.Error == "" {
			t.Fatalf("expected storage failure result, got %+v", res)
		}
		if res.Metadata[domain.MetaStorageKey] == "" {
			t.Fatalf("expected storage key metadata on failure, got %+v", res.Metadata)
		}
	}
	if len(model.payloads) != 1 {
		t.Fatalf("model should only be called for fetched documents, got %d calls", len(model.payloads))
	}
}

func TestExecuteListReferencesAppliesDefaults(t *testing.T) {
	store := newStoreFake()
	_ = store.Put(context.Background(), "uploads", "documents/a.pdf", []byte("1"), domain.MimePDF)
	_ = store.Put(context.Background(), "uploads", "documents/b.pdf", []byte("22"), domain.MimePDF)
	_ = store.Put(context.Background(), "uploads", "other/c.pdf", []byte("333"), domain.MimePDF)
	uc := NewClassifyUseCase(Dependencies{Store: store}, Options{UploadsBucket: "uploads"})

	resp, err := uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionListReferences})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.References) != 2 || resp.References[0].Key != "documents/a.pdf" {
		t.Fatalf("unexpected references: %+v", resp.References)
	}

	resp, err = uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionListReferences, Prefix: "other/", Limit: 5})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.References) != 1 || resp.References[0].Size != 3 {
		t.Fatalf("unexpected references for prefix: %+v", resp.References)
	}
}

func TestExecuteListReferencesPropagatesStorageError(t *testing.T) {
	store := newStoreFake()
	store.listErr = errors.New("bucket gone")
	uc := NewClassifyUseCase(Dependencies{Store: store}, Options{UploadsBucket: "uploads"})

	_, err := uc.Execute(context.Background(), domain.BatchRequest{Action: domain.ActionListReferences})
	if err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestEnqueue(t *testing.T) {
	queue := &queueFake{}
	uc := NewClassifyUseCase(Dependencies{Store: newStoreFake(), Queue: queue}, Options{})

	req := domain.BatchRequest{Action: domain.ActionClassifyReferences, References: []domain.Reference{{Key: "documents/a.pdf"}}}
	if err := uc.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected published request")
	}

	err := uc.Enqueue(context.Background(), domain.BatchRequest{Action: domain.ActionListReferences})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for list action, got %v", err)
	}

	noQueue := NewClassifyUseCase(Dependencies{Store: newStoreFake()}, Options{})
	if err := noQueue.Enqueue(context.Background(), req); !domain.IsKind(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("expected capability unavailable, got %v", err)
	}
}
