package domain

type PartKind string

const (
	PartKindText       PartKind = "text"
	PartKindAttachment PartKind = "attachment"
)

// ContentPart is one unit of model input: inline text or a binary attachment.
type ContentPart struct {
	Kind        PartKind
	Text        string
	Data        []byte
	MimeType    string
	DisplayName string
}

func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartKindText, Text: text}
}

func AttachmentPart(data []byte, mimeType, displayName string) ContentPart {
	return ContentPart{
		Kind:        PartKindAttachment,
		Data:        data,
		MimeType:    mimeType,
		DisplayName: displayName,
	}
}

// ContentPayload is the ordered model input. Order is significant.
type ContentPayload []ContentPart

func (p ContentPayload) AttachmentCount() int {
	count := 0
	for _, part := range p {
		if part.Kind == PartKindAttachment {
			count++
		}
	}
	return count
}

type AdaptationOutcome string

const (
	AdaptationOK       AdaptationOutcome = "ok"
	AdaptationDegraded AdaptationOutcome = "degraded"
	AdaptationFallback AdaptationOutcome = "fallback"
)

// Adaptation is the adapter output plus the quality signal for monitoring.
// Err is set only for the fallback outcome and carries the failure cause.
type Adaptation struct {
	Payload ContentPayload
	Type    DocumentType
	Outcome AdaptationOutcome
	Reason  string
	Err     error
}

func (a Adaptation) Failed() bool {
	return a.Outcome == AdaptationFallback
}
