package excel

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// oleSignature opens every compound document, which is how legacy BIFF
// workbooks are stored.
var oleSignature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// Decoder reads every sheet of a workbook. The format is chosen from the
// content, so a mislabelled .xls/.xlsx still decodes.
type Decoder struct {
	maxRows int
}

func NewDecoder(maxRows int) *Decoder {
	return &Decoder{maxRows: maxRows}
}

func (d *Decoder) Decode(data []byte, filename string) ([]domain.Sheet, error) {
	var (
		sheets []domain.Sheet
		err    error
	)
	if bytes.HasPrefix(data, oleSignature) {
		sheets, err = decodeLegacy(data, filename)
	} else {
		sheets, err = decodeOOXML(data, filename)
	}
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filename)
	}
	for i := range sheets {
		if d.maxRows > 0 && len(sheets[i].Rows) > d.maxRows {
			sheets[i].Rows = sheets[i].Rows[:d.maxRows]
		}
	}
	return sheets, nil
}

func decodeOOXML(data []byte, filename string) ([]domain.Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", filename, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]domain.Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", name, filename, err)
		}
		sheets = append(sheets, domain.Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}
