package domain

type BatchAction string

const (
	ActionClassifyUploads    BatchAction = "classify_uploads"
	ActionClassifyReferences BatchAction = "classify_references"
	ActionListReferences     BatchAction = "list_references"
)

// EncodedFile is an uploaded file as it arrives at the boundary, base64 encoded.
type EncodedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Reference points at an object already staged in the uploads location.
type Reference struct {
	Key      string `json:"key"`
	Filename string `json:"filename,omitempty"`
}

type BatchRequest struct {
	Action     BatchAction   `json:"action"`
	Files      []EncodedFile `json:"files,omitempty"`
	References []Reference   `json:"references,omitempty"`
	Prefix     string        `json:"prefix,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

type BatchResponse struct {
	Action          BatchAction            `json:"action"`
	TotalFiles      int                    `json:"total_files"`
	Classifications []ClassificationResult `json:"classifications,omitempty"`
	References      []ObjectInfo           `json:"references,omitempty"`
}
