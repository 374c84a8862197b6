package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/report"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

type stubQuerier struct {
	args []any
}

func (s *stubQuerier) ExecuteQuery(_ context.Context, _ string, args ...any) (*persistence.Result, error) {
	s.args = args
	return &persistence.Result{
		Columns: []string{"id", "subject", "status"},
		Rows:    [][]any{{int64(1), "Printer jam", "open"}},
	}, nil
}

func TestExportCSV(t *testing.T) {
	q := &stubQuerier{}
	at := time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)
	svc := NewReportService(q, func() time.Time { return at })
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	file, err := svc.Export(context.Background(), "tickets", "csv", report.Range{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, "tickets-20240704.csv", file.Filename)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/csv"))
	assert.Contains(t, string(file.Body), "Printer jam")
	require.Len(t, q.args, 2)
	assert.Equal(t, from, q.args[0])
	assert.Equal(t, to, q.args[1])
}

func TestExportErrors(t *testing.T) {
	svc := NewReportService(&stubQuerier{}, nil)
	ctx := context.Background()

	_, err := svc.Export(ctx, "payroll", "csv", report.Range{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.Export(ctx, "tickets", "docx", report.Range{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Export(ctx, "tickets", "csv", report.Range{From: day, To: day})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
