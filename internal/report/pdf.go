package report

import (
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin    = 10.0
	pdfRowHeight = 6.0
	pdfMaxChars  = 40
)

// PDFExporter renders a landscape A4 table with a repeated header row.
type PDFExporter struct {
	Now func() time.Time
}

func (e PDFExporter) Export(w io.Writer, t Table) error {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	colWidth := pageWidth - 2*pdfMargin
	if len(t.Columns) > 0 {
		colWidth /= float64(len(t.Columns))
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(225, 225, 225)
		for _, c := range t.Columns {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(truncate(c)), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, "Generated "+now().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
		header()
	})
	pdf.AddPage()

	for _, row := range t.Rows {
		for i := range t.Columns {
			text := ""
			if i < len(row) {
				text = Cell(row[i])
			}
			pdf.CellFormat(colWidth, pdfRowHeight, tr(truncate(text)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		pdf.CellFormat(0, pdfRowHeight, "No rows", "", 1, "L", false, 0, "")
	}

	return pdf.Output(w)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= pdfMaxChars {
		return s
	}
	return string(r[:pdfMaxChars-1]) + "~"
}
