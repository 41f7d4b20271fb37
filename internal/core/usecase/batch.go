package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/classification"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

const (
	defaultConcurrency = 4
	defaultListLimit   = 100
	maxListLimit       = 1000
	defaultKeyPrefix   = "documents"
)

type Dependencies struct {
	Store       ports.ObjectStore
	Model       ports.ClassificationModel
	Adapter     *classification.Adapter
	Interpreter *classification.Interpreter
	Results     ports.ResultStore
	Inspector   ports.DocumentInspector
	Queue       ports.BatchQueue
	Metrics     ports.PipelineMetrics
	Logger      *slog.Logger
}

type Options struct {
	UploadsBucket string
	KeyPrefix     string
	Concurrency   int
	Now           func() time.Time
}

// ClassifyUseCase runs batch actions: staging uploads, classifying stored
// references and listing what is available.
type ClassifyUseCase struct {
	store       ports.ObjectStore
	model       ports.ClassificationModel
	adapter     *classification.Adapter
	interpreter *classification.Interpreter
	results     ports.ResultStore
	inspector   ports.DocumentInspector
	queue       ports.BatchQueue
	metrics     ports.PipelineMetrics
	logger      *slog.Logger
	opts        Options
}

func NewClassifyUseCase(deps Dependencies, opts Options) *ClassifyUseCase {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Adapter == nil {
		deps.Adapter = classification.NewAdapter(nil, logger)
	}
	if deps.Interpreter == nil {
		deps.Interpreter = classification.NewInterpreter(logger)
	}
	if deps.Results == nil {
		deps.Results = discardResults{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if strings.TrimSpace(opts.KeyPrefix) == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	opts.KeyPrefix = strings.Trim(opts.KeyPrefix, "/")
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &ClassifyUseCase{
		store:       deps.Store,
		model:       deps.Model,
		adapter:     deps.Adapter,
		interpreter: deps.Interpreter,
		results:     deps.Results,
		inspector:   deps.Inspector,
		queue:       deps.Queue,
		metrics:     deps.Metrics,
		logger:      logger,
		opts:        opts,
	}
}

// Execute dispatches a batch request. Classification actions return one
// result per input; only malformed requests and listing failures are errors.
func (uc *ClassifyUseCase) Execute(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error) {
	switch req.Action {
	case domain.ActionClassifyUploads:
		if len(req.Files) == 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "classify uploads", errors.New("No files provided"))
		}
		results := uc.ClassifyEncoded(ctx, req.Files)
		return &domain.BatchResponse{Action: req.Action, TotalFiles: len(req.Files), Classifications: results}, nil

	case domain.ActionClassifyReferences:
		if len(req.References) == 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "classify references", errors.New("No references provided"))
		}
		results := uc.ClassifyReferences(ctx, req.References)
		return &domain.BatchResponse{Action: req.Action, TotalFiles: len(req.References), Classifications: results}, nil

	case domain.ActionListReferences:
		refs, err := uc.ListReferences(ctx, req.Prefix, req.Limit)
		if err != nil {
			return nil, err
		}
		return &domain.BatchResponse{Action: req.Action, TotalFiles: len(refs), References: refs}, nil

	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "execute batch", fmt.Errorf("unknown action %q", req.Action))
	}
}

// Enqueue hands a batch request to the worker queue after validating it.
func (uc *ClassifyUseCase) Enqueue(ctx context.Context, req domain.BatchRequest) error {
	if uc.queue == nil {
		return domain.WrapError(domain.ErrCapabilityUnavailable, "enqueue batch", errors.New("no queue configured"))
	}
	switch req.Action {
	case domain.ActionClassifyReferences:
		if len(req.References) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "enqueue batch", errors.New("No references provided"))
		}
	case domain.ActionClassifyUploads:
		if len(req.Files) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "enqueue batch", errors.New("No files provided"))
		}
	default:
		return domain.WrapError(domain.ErrInvalidInput, "enqueue batch", fmt.Errorf("action %q cannot be queued", req.Action))
	}
	if err := uc.queue.PublishBatch(ctx, req); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// ClassifyEncoded decodes base64 uploads; undecodable items become Unknown
// results without touching storage.
func (uc *ClassifyUseCase) ClassifyEncoded(ctx context.Context, files []domain.EncodedFile) []domain.ClassificationResult {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return uc.runBatch(ctx, names, func(ctx context.Context, i int) domain.ClassificationResult {
		filename := names[i]
		content, err := base64.StdEncoding.DecodeString(files[i].Content)
		if err != nil {
			uc.logger.Error("decode_upload_failed", "filename", filename, "error", err)
			return uc.failEarly(ctx, domain.FailedResult(filename, errors.New("Invalid file content")))
		}
		return uc.classifyDocument(ctx, domain.NewDocument(filename, content))
	})
}

func (uc *ClassifyUseCase) ClassifyDocuments(ctx context.Context, docs []domain.Document) []domain.ClassificationResult {
	names := make([]string, len(docs))
	for i, doc := range docs {
		names[i] = doc.Filename
	}
	return uc.runBatch(ctx, names, func(ctx context.Context, i int) domain.ClassificationResult {
		return uc.classifyDocument(ctx, docs[i])
	})
}

func (uc *ClassifyUseCase) ClassifyReferences(ctx context.Context, refs []domain.Reference) []domain.ClassificationResult {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = referenceFilename(ref)
	}
	return uc.runBatch(ctx, names, func(ctx context.Context, i int) domain.ClassificationResult {
		return uc.classifyReference(ctx, refs[i])
	})
}

func (uc *ClassifyUseCase) ListReferences(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = uc.opts.KeyPrefix + "/"
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	refs, err := uc.store.List(ctx, uc.opts.UploadsBucket, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return refs, nil
}

func (uc *ClassifyUseCase) ListRecent(ctx context.Context, limit int) ([]domain.ClassificationResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	results, err := uc.results.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent results: %w", err)
	}
	return results, nil
}

// runBatch fans documents out over at most Concurrency goroutines. Each
// goroutine owns its slot, so results keep input order.
func (uc *ClassifyUseCase) runBatch(
	ctx context.Context,
	names []string,
	classify func(context.Context, int) domain.ClassificationResult,
) []domain.ClassificationResult {
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			names[i] = "unknown"
		}
	}
	results := make([]domain.ClassificationResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.Concurrency)

	for i := range names {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					uc.logger.Error("classify_document_panic", "filename", names[i], "panic", fmt.Sprint(r))
					results[i] = domain.FailedResult(names[i], fmt.Errorf("internal error: %v", r))
				}
			}()
			results[i] = classify(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type discardResults struct{}

func (discardResults) Save(context.Context, domain.ClassificationResult) error { return nil }

func (discardResults) ListRecent(context.Context, int) ([]domain.ClassificationResult, error) {
	return []domain.ClassificationResult{}, nil
}

type noopMetrics struct{}

func (noopMetrics) StartDocument()                                                  {}
func (noopMetrics) FinishDocument(domain.Label, time.Duration, bool)                {}
func (noopMetrics) ObserveAdaptation(domain.DocumentType, domain.AdaptationOutcome) {}
func (noopMetrics) ObserveResultStoreFailure()                                      {}
