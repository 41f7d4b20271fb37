package pdfinfo

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// minimalPDF assembles a two page document with a valid cross-reference table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Title (Loss Run 2024) /Producer (carrier-export) >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestInspectReadsPageCountAndInfo(t *testing.T) {
	meta, err := NewInspector().Inspect(domain.NewDocument("loss.pdf", minimalPDF()))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if meta[MetaPages] != "2" {
		t.Fatalf("expected 2 pages, got %q", meta[MetaPages])
	}
	if meta[MetaTitle] != "Loss Run 2024" || meta[MetaProducer] != "carrier-export" {
		t.Fatalf("unexpected info metadata: %+v", meta)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if _, err := NewInspector().Inspect(domain.NewDocument("broken.pdf", []byte("not a pdf at all"))); err == nil {
		t.Fatalf("expected error for invalid pdf")
	}
}

func TestInspectSkipsOtherTypes(t *testing.T) {
	meta, err := NewInspector().Inspect(domain.NewDocument("claims.csv", []byte("a,b\n")))
	if err != nil || meta != nil {
		t.Fatalf("expected no metadata for csv, got %+v, %v", meta, err)
	}
}
