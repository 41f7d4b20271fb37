package pdfinfo

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

const (
	MetaPages    = "pdf_pages"
	MetaTitle    = "pdf_title"
	MetaProducer = "pdf_producer"
)

// Inspector reads PDF structure for result metadata. Other document types
// yield no metadata.
type Inspector struct{}

func NewInspector() *Inspector {
	return &Inspector{}
}

func (i *Inspector) Inspect(doc domain.Document) (meta map[string]string, err error) {
	if doc.Type() != domain.DocumentTypePDF {
		return nil, nil
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			meta = nil
			err = fmt.Errorf("inspect pdf %s: %v", doc.Filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", doc.Filename, err)
	}

	meta = map[string]string{
		MetaPages: strconv.Itoa(reader.NumPage()),
	}
	info := reader.Trailer().Key("Info")
	if title := strings.TrimSpace(info.Key("Title").Text()); title != "" {
		meta[MetaTitle] = title
	}
	if producer := strings.TrimSpace(info.Key("Producer").Text()); producer != "" {
		meta[MetaProducer] = producer
	}
	return meta, nil
}
