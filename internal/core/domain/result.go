package domain

import "maps"

const (
	MetaStorageKey   = "storage_key"
	MetaStorageURL   = "storage_url"
	MetaContentType  = "content_type"
	MetaDocumentType = "document_type"
	MetaSizeBytes    = "size_bytes"
	MetaAdaptation   = "adaptation"
	MetaAdaptReason  = "adaptation_reason"
	MetaClassifiedAt = "classified_at"
)

// ClassificationResult is produced once per document. The label is final;
// collaborators only append metadata.
type ClassificationResult struct {
	Filename       string            `json:"filename"`
	Classification Label             `json:"classification"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Error          string            `json:"error,omitempty"`
}

func NewResult(filename string, label Label) ClassificationResult {
	return ClassificationResult{
		Filename:       filename,
		Classification: NormalizeLabel(string(label)),
	}
}

// FailedResult records a per-document failure. The label is always Unknown.
func FailedResult(filename string, err error) ClassificationResult {
	res := ClassificationResult{
		Filename:       filename,
		Classification: LabelUnknown,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// WithMetadata returns a copy of r with the given entries merged in.
func (r ClassificationResult) WithMetadata(entries map[string]string) ClassificationResult {
	if len(entries) == 0 {
		return r
	}
	merged := make(map[string]string, len(r.Metadata)+len(entries))
	maps.Copy(merged, r.Metadata)
	for k, v := range entries {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	r.Metadata = merged
	return r
}
