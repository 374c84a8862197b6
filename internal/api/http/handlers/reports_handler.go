package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/report"
	"github.com/spec-kit/opsdesk/internal/service"
)

// ReportsHandler streams exported reports.
type ReportsHandler struct {
	reports *service.ReportService
}

func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Catalog GET /reports.
func (h *ReportsHandler) Catalog(c *fiber.Ctx) error {
	return c.JSON(data(report.Names()))
}

// Export GET /reports/:name?format=csv|xlsx|pdf&from=&to=.
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	var r report.Range
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return err
	}
	if from != nil {
		r.From = *from
	}
	if to != nil {
		r.To = *to
	}

	format := c.Query("format", string(report.FormatCSV))
	file, err := h.reports.Export(c.UserContext(), c.Params("name"), format, r)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	return c.Send(file.Body)
}
