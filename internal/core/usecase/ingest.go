package usecase

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// classifyDocument stages the upload and then classifies it by reference,
// so both entry points share one pipeline.
func (uc *ClassifyUseCase) classifyDocument(ctx context.Context, doc domain.Document) domain.ClassificationResult {
	key, err := uc.stage(ctx, doc)
	if err != nil {
		uc.logger.Error("stage_document_failed", "filename", doc.Filename, "error", err)
		return uc.failEarly(ctx, domain.FailedResult(doc.Filename, err))
	}
	return uc.classifyReference(ctx, domain.Reference{Key: key, Filename: doc.Filename})
}

// failEarly records a document that never reached the pipeline.
func (uc *ClassifyUseCase) failEarly(ctx context.Context, res domain.ClassificationResult) domain.ClassificationResult {
	uc.metrics.StartDocument()
	uc.metrics.FinishDocument(res.Classification, 0, true)
	uc.persist(ctx, res)
	return res
}

func (uc *ClassifyUseCase) stage(ctx context.Context, doc domain.Document) (string, error) {
	key := uc.storageKey(doc.Filename)
	if err := uc.store.Put(ctx, uc.opts.UploadsBucket, key, doc.Content, domain.ContentTypeForFilename(doc.Filename)); err != nil {
		return "", fmt.Errorf("upload to object storage: %w", err)
	}
	uc.logger.Info("document_staged", "filename", doc.Filename, "bucket", uc.opts.UploadsBucket, "key", key, "size_bytes", len(doc.Content))
	return key, nil
}

// storageKey lays uploads out as <prefix>/YYYY/MM/DD/HH-MM-SS/<id>_<filename>.
func (uc *ClassifyUseCase) storageKey(filename string) string {
	stamp := uc.opts.Now().UTC().Format("2006/01/02/15-04-05")
	id := uuid.NewString()[:8]
	return fmt.Sprintf("%s/%s/%s_%s", uc.opts.KeyPrefix, stamp, id, sanitizeFilename(filename))
}

// referenceFilename recovers the display name of a staged object when the
// caller did not supply one.
func referenceFilename(ref domain.Reference) string {
	if name := strings.TrimSpace(ref.Filename); name != "" {
		return name
	}
	base := path.Base(ref.Key)
	if base == "." || base == "/" {
		return ""
	}
	if idx := strings.Index(base, "_"); idx == 8 {
		return base[idx+1:]
	}
	return base
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
