// Package report renders tabular query results as CSV, XLSX or PDF.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Format selects an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a case-insensitive format name. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Table is a titled grid of values.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Exporter writes a table in one format.
type Exporter interface {
	Export(w io.Writer, t Table) error
}

// ExporterFor returns the exporter for f.
func ExporterFor(f Format) (Exporter, error) {
	switch f {
	case FormatCSV:
		return CSVExporter{}, nil
	case FormatXLSX:
		return XLSXExporter{}, nil
	case FormatPDF:
		return PDFExporter{}, nil
	}
	return nil, fmt.Errorf("unsupported report format %q", f)
}

// Filename builds the attachment name for a report.
func Filename(name string, f Format, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", name, at.Format("20060102"), f)
}

// Cell formats a single value for display.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04")
	case *time.Time:
		if val == nil {
			return ""
		}
		return Cell(*val)
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
