package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

type storageURLer interface {
	URL(bucket, key string) string
}

// classifyReference runs fetch, adapt, generate and interpret for one stored
// object. Collaborator and adaptation failures are recorded on the result,
// never returned.
func (uc *ClassifyUseCase) classifyReference(ctx context.Context, ref domain.Reference) domain.ClassificationResult {
	start := time.Now()
	uc.metrics.StartDocument()

	res := uc.processPipeline(ctx, ref)
	uc.metrics.FinishDocument(res.Classification, time.Since(start), res.Error != "")
	uc.persist(ctx, res)

	if res.Error != "" {
		uc.logger.Warn("classification_failed",
			"filename", res.Filename,
			"key", ref.Key,
			"error", res.Error,
		)
	} else {
		uc.logger.Info("classification_completed",
			"filename", res.Filename,
			"key", ref.Key,
			"classification", string(res.Classification),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
	return res
}

func (uc *ClassifyUseCase) processPipeline(ctx context.Context, ref domain.Reference) domain.ClassificationResult {
	filename := referenceFilename(ref)
	meta := map[string]string{
		domain.MetaStorageKey: ref.Key,
		domain.MetaStorageURL: uc.storageURL(ref.Key),
	}

	doc, err := uc.loadDocument(ctx, ref.Key, filename)
	if err != nil {
		return domain.FailedResult(filename, err).WithMetadata(meta)
	}
	meta[domain.MetaContentType] = doc.MimeType
	meta[domain.MetaDocumentType] = doc.Type().String()
	meta[domain.MetaSizeBytes] = strconv.Itoa(len(doc.Content))

	adaptation := uc.adapt(doc)
	meta[domain.MetaAdaptation] = string(adaptation.Outcome)
	meta[domain.MetaAdaptReason] = adaptation.Reason
	if adaptation.Failed() {
		return domain.FailedResult(filename, fmt.Errorf("adapt content: %w", adaptation.Err)).WithMetadata(meta)
	}

	raw, err := uc.generate(ctx, adaptation.Payload)
	if err != nil {
		return domain.FailedResult(filename, err).WithMetadata(meta)
	}

	label := uc.interpreter.Interpret(raw, filename)
	meta[domain.MetaClassifiedAt] = uc.opts.Now().UTC().Format(time.RFC3339)

	return domain.NewResult(filename, label).
		WithMetadata(meta).
		WithMetadata(uc.inspect(doc))
}

func (uc *ClassifyUseCase) loadDocument(ctx context.Context, key, filename string) (domain.Document, error) {
	data, err := uc.store.Get(ctx, uc.opts.UploadsBucket, key)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch from object storage: %w", err)
	}
	return domain.NewDocument(filename, data), nil
}

func (uc *ClassifyUseCase) adapt(doc domain.Document) domain.Adaptation {
	adaptation := uc.adapter.Adapt(doc)
	uc.metrics.ObserveAdaptation(adaptation.Type, adaptation.Outcome)
	return adaptation
}

func (uc *ClassifyUseCase) generate(ctx context.Context, payload domain.ContentPayload) (string, error) {
	raw, err := uc.model.Generate(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("classification model: %w", err)
	}
	return raw, nil
}

// inspect is best effort; inspector errors only cost metadata.
func (uc *ClassifyUseCase) inspect(doc domain.Document) map[string]string {
	if uc.inspector == nil {
		return nil
	}
	meta, err := uc.inspector.Inspect(doc)
	if err != nil {
		uc.logger.Debug("inspect_document_failed", "filename", doc.Filename, "error", err)
		return nil
	}
	return meta
}

func (uc *ClassifyUseCase) persist(ctx context.Context, res domain.ClassificationResult) {
	if err := uc.results.Save(ctx, res); err != nil {
		uc.metrics.ObserveResultStoreFailure()
		uc.logger.Error("save_result_failed", "filename", res.Filename, "error", err)
	}
}

func (uc *ClassifyUseCase) storageURL(key string) string {
	if u, ok := uc.store.(storageURLer); ok {
		return u.URL(uc.opts.UploadsBucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", uc.opts.UploadsBucket, key)
}
