package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// XLSXExporter writes a single-sheet workbook with a bold header row.
type XLSXExporter struct{}

func (XLSXExporter) Export(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(t.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if len(t.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = xlsxValue(v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	if len(t.Columns) > 0 {
		last, _ := excelize.ColumnNumberToName(len(t.Columns))
		if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// xlsxValue keeps numbers numeric and renders everything else as text.
func xlsxValue(v any) any {
	switch v.(type) {
	case int, int16, int32, int64, float32, float64:
		return v
	}
	return Cell(v)
}

func sheetName(title string) string {
	if title == "" {
		return "Report"
	}
	clean := []rune{}
	for _, r := range title {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		clean = append(clean, r)
	}
	if len(clean) > maxSheetName {
		clean = clean[:maxSheetName]
	}
	if len(clean) == 0 {
		return "Report"
	}
	return string(clean)
}
