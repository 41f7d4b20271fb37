package classification

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// NoTableDecoder is the absent spreadsheet capability. Spreadsheets adapted
// with it always take the degraded path.
type NoTableDecoder struct{}

func (NoTableDecoder) Decode([]byte, string) ([]domain.Sheet, error) {
	return nil, domain.WrapError(domain.ErrCapabilityUnavailable, "decode table", errors.New("no spreadsheet decoder configured"))
}

func renderSheets(sheets []domain.Sheet) (string, error) {
	var buf bytes.Buffer
	for idx, sheet := range sheets {
		if len(sheets) > 1 {
			if idx > 0 {
				buf.WriteString("\n")
			}
			fmt.Fprintf(&buf, "Sheet: %s\n", sheet.Name)
		}
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(sheet.Rows); err != nil {
			return "", fmt.Errorf("write sheet %q as csv: %w", sheet.Name, err)
		}
	}
	return buf.String(), nil
}
