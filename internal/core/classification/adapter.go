package classification

import (
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

// Adapter rewrites a document into the content parts the model accepts.
// Only PDFs travel as binary attachments; every other type is sent as text.
type Adapter struct {
	tables ports.TableDecoder
	logger *slog.Logger
}

func NewAdapter(tables ports.TableDecoder, logger *slog.Logger) *Adapter {
	if tables == nil {
		tables = NoTableDecoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{tables: tables, logger: logger}
}

// Adapt always returns a payload. Content without a text form is described
// in text and marked degraded. Hard failures end in the emergency payload
// [prompt, "Error processing file ..."] with the fallback outcome and Err set;
// callers must not classify from it.
func (a *Adapter) Adapt(doc domain.Document) (out domain.Adaptation) {
	prompt := BuildPrompt(doc.Filename)
	out = domain.Adaptation{
		Type:    doc.Type(),
		Outcome: domain.AdaptationOK,
	}

	defer func() {
		if r := recover(); r != nil {
			out = a.fallback(doc, out, prompt, fmt.Errorf("recovered panic: %v", r))
		}
	}()

	payload, degradedBy, err := a.payloadFor(doc, out.Type, prompt)
	if degradedBy != nil {
		out.Outcome = domain.AdaptationDegraded
		out.Reason = degradedBy.Error()
		a.logger.Warn("adaptation_degraded",
			"filename", doc.Filename,
			"document_type", out.Type.String(),
			"reason", out.Reason,
		)
	}
	if err == nil {
		err = verifyPayload(out.Type, payload)
	}
	if err != nil {
		return a.fallback(doc, out, prompt, err)
	}

	out.Payload = payload
	return out
}

// payloadFor picks the policy for docType. degradedBy is set when a lower
// fidelity representation replaced the preferred one.
func (a *Adapter) payloadFor(doc domain.Document, docType domain.DocumentType, prompt string) (payload domain.ContentPayload, degradedBy error, err error) {
	switch docType {
	case domain.DocumentTypePDF:
		return domain.ContentPayload{
			domain.AttachmentPart(doc.Content, domain.MimePDF, doc.Filename),
			domain.TextPart(prompt),
		}, nil, nil

	case domain.DocumentTypeSpreadsheet:
		sheets, decodeErr := a.tables.Decode(doc.Content, doc.Filename)
		if decodeErr != nil {
			degradedBy = fmt.Errorf("spreadsheet decode: %w", decodeErr)
			return describedPayload(doc, prompt, degradedBy), degradedBy, nil
		}
		table, renderErr := renderSheets(sheets)
		if renderErr != nil {
			degradedBy = fmt.Errorf("spreadsheet render: %w", renderErr)
			return describedPayload(doc, prompt, degradedBy), degradedBy, nil
		}
		return domain.ContentPayload{
			domain.TextPart(fmt.Sprintf("Spreadsheet file '%s' converted to CSV:\n\n%s", doc.Filename, table)),
			domain.TextPart(prompt),
		}, nil, nil

	case domain.DocumentTypeCSV:
		if !utf8.Valid(doc.Content) {
			return nil, nil, domain.WrapError(domain.ErrInvalidInput, "decode csv", fmt.Errorf("%s is not valid UTF-8", doc.Filename))
		}
		return domain.ContentPayload{
			domain.TextPart(fmt.Sprintf("CSV file '%s' contents:\n\n%s", doc.Filename, string(doc.Content))),
			domain.TextPart(prompt),
		}, nil, nil

	case domain.DocumentTypeText:
		if !utf8.Valid(doc.Content) {
			degradedBy = errors.New("text decode: content is not valid UTF-8")
			return describedPayload(doc, prompt, degradedBy), degradedBy, nil
		}
		return domain.ContentPayload{
			domain.TextPart(fmt.Sprintf("Text file '%s' contents:\n\n%s", doc.Filename, string(doc.Content))),
			domain.TextPart(prompt),
		}, nil, nil

	case domain.DocumentTypeBinary:
		degradedBy = fmt.Errorf("no text representation for %s", mimeTypeOf(doc))
		return describedPayload(doc, prompt, degradedBy), degradedBy, nil

	default:
		return nil, nil, fmt.Errorf("unhandled document type %d", int(docType))
	}
}

func (a *Adapter) fallback(doc domain.Document, out domain.Adaptation, prompt string, cause error) domain.Adaptation {
	out.Outcome = domain.AdaptationFallback
	out.Err = cause
	if out.Reason == "" {
		out.Reason = cause.Error()
	} else {
		out.Reason = out.Reason + "; " + cause.Error()
	}
	out.Payload = emergencyPayload(doc.Filename, prompt, cause)

	a.logger.Warn("adaptation_fallback",
		"filename", doc.Filename,
		"document_type", out.Type.String(),
		"error", cause,
	)
	return out
}

// describedPayload stands in for content that has no text form, so the model
// still sees the name, declared type and size of the file.
func describedPayload(doc domain.Document, prompt string, reason error) domain.ContentPayload {
	return domain.ContentPayload{
		domain.TextPart(fmt.Sprintf("File '%s' (%s, %d bytes) could not be converted to text: %s",
			doc.Filename, mimeTypeOf(doc), len(doc.Content), reason)),
		domain.TextPart(prompt),
	}
}

func mimeTypeOf(doc domain.Document) string {
	if doc.MimeType == "" {
		return domain.MimeOctetStream
	}
	return doc.MimeType
}

func emergencyPayload(filename, prompt string, cause error) domain.ContentPayload {
	return domain.ContentPayload{
		domain.TextPart(prompt),
		domain.TextPart(fmt.Sprintf("Error processing file %s: %s", filename, cause.Error())),
	}
}

func verifyPayload(docType domain.DocumentType, payload domain.ContentPayload) error {
	if docType == domain.DocumentTypePDF {
		return nil
	}
	if n := payload.AttachmentCount(); n > 0 {
		return domain.WrapError(
			domain.ErrContractViolation,
			"adapt "+docType.String(),
			fmt.Errorf("%d binary attachment(s) not permitted for %s documents", n, docType),
		)
	}
	return nil
}
