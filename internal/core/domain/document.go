package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentType selects the content adaptation policy for a document.
type DocumentType int

const (
	DocumentTypeBinary DocumentType = iota
	DocumentTypePDF
	DocumentTypeSpreadsheet
	DocumentTypeCSV
	DocumentTypeText
)

func (t DocumentType) String() string {
	switch t {
	case DocumentTypePDF:
		return "pdf"
	case DocumentTypeSpreadsheet:
		return "spreadsheet"
	case DocumentTypeCSV:
		return "csv"
	case DocumentTypeText:
		return "text"
	default:
		return "binary"
	}
}

const (
	MimePDF         = "application/pdf"
	MimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS         = "application/vnd.ms-excel"
	MimeCSV         = "text/csv"
	MimePlainText   = "text/plain"
	MimeMSWord      = "application/msword"
	MimeDOCX        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeOctetStream = "application/octet-stream"
)

var contentTypesByExtension = map[string]string{
	"pdf":  MimePDF,
	"xlsx": MimeXLSX,
	"xls":  MimeXLS,
	"csv":  MimeCSV,
	"txt":  MimePlainText,
	"doc":  MimeMSWord,
	"docx": MimeDOCX,
}

// Document is a received file. It is not modified after ingestion.
type Document struct {
	Content  []byte
	Filename string
	MimeType string
}

func NewDocument(filename string, content []byte) Document {
	return Document{
		Content:  content,
		Filename: filename,
		MimeType: ContentTypeForFilename(filename),
	}
}

func (d Document) Type() DocumentType {
	return DetectDocumentType(d.Filename, d.MimeType)
}

// ContentTypeForFilename maps a file extension to its declared media type.
func ContentTypeForFilename(filename string) string {
	if ct, ok := contentTypesByExtension[extension(filename)]; ok {
		return ct
	}
	return MimeOctetStream
}

// DetectDocumentType derives the adaptation policy from the extension first
// and the declared media type second.
func DetectDocumentType(filename, mimeType string) DocumentType {
	switch extension(filename) {
	case "pdf":
		return DocumentTypePDF
	case "xlsx", "xls":
		return DocumentTypeSpreadsheet
	case "csv":
		return DocumentTypeCSV
	case "txt", "doc":
		return DocumentTypeText
	}

	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	switch mt {
	case MimePDF:
		return DocumentTypePDF
	case MimeXLSX, MimeXLS:
		return DocumentTypeSpreadsheet
	case MimeCSV:
		return DocumentTypeCSV
	case MimePlainText, MimeMSWord:
		return DocumentTypeText
	default:
		return DocumentTypeBinary
	}
}

func extension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// ObjectInfo describes a stored object available for classification by reference.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Sheet is one decoded table of a spreadsheet.
type Sheet struct {
	Name string
	Rows [][]string
}
