package excel

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/extrame/xls"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

const legacyCharset = "utf-8"

// decodeLegacy reads BIFF (Excel 97-2003) workbooks. The reader panics on
// some malformed streams, so panics are turned into errors.
func decodeLegacy(data []byte, filename string) (sheets []domain.Sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets = nil
			err = fmt.Errorf("read legacy workbook %s: %v", filename, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), legacyCharset)
	if err != nil {
		return nil, fmt.Errorf("open legacy workbook %s: %w", filename, err)
	}
	if wb == nil {
		return nil, fmt.Errorf("open legacy workbook %s: %w", filename, errors.New("no workbook stream"))
	}

	sheets = make([]domain.Sheet, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		sheets = append(sheets, domain.Sheet{Name: sheet.Name, Rows: legacyRows(sheet)})
	}
	return sheets, nil
}

func legacyRows(sheet *xls.WorkSheet) [][]string {
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, strings.TrimSpace(row.Col(c)))
		}
		rows = append(rows, trimTrailing(cells))
	}
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows
}

// trimTrailing drops empty cells at the end of a row, matching what the
// OOXML reader returns.
func trimTrailing(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
