package service

import (
	"bytes"
	"context"
	"time"

	"github.com/spec-kit/opsdesk/internal/report"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// ReportFile is a rendered report ready to stream.
type ReportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService renders the fixed report catalog.
type ReportService struct {
	db  report.Querier
	now func() time.Time
}

func NewReportService(db report.Querier, now func() time.Time) *ReportService {
	return &ReportService{db: db, now: clock(now)}
}

// Export runs the named report over r and encodes it as format.
func (s *ReportService) Export(ctx context.Context, name, format string, r report.Range) (*ReportFile, error) {
	def, ok := report.Lookup(name)
	if !ok {
		return nil, apperrors.NewNotFound("report", map[string]any{"name": name, "available": report.Names()})
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"format": format})
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return nil, apperrors.NewValidationError("to must be after from", nil)
	}

	table, err := report.Build(ctx, s.db, def, r)
	if err != nil {
		return nil, err
	}
	exporter, err := report.ExporterFor(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := exporter.Export(&buf, table); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &ReportFile{
		Filename:    report.Filename(name, f, s.now()),
		ContentType: f.ContentType(),
		Body:        buf.Bytes(),
	}, nil
}
