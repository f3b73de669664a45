package httpapi

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	router "github.com/goliatone/go-router"
)

const exportHistorySheet = "Export History"

// ExportHistoryReport handles GET /reports/export-history?from=&to=,
// streaming an XLSX workbook of every export attempt in the window
// (default: the trailing 30 days), one row per handler invocation.
func (d Dependencies) ExportHistoryReport(c router.Context) error {
	locale := c.Query("locale")
	to := d.now()
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			from = parsed
		}
	}
	if raw := c.Query("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			to = parsed
		}
	}

	rows, err := d.Store.ExportHistoryRange(c.Context(), from, to)
	if err != nil {
		return c.JSON(statusForError(err), errorBody(d.localizeError(locale, err)))
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	defaultSheet := file.GetSheetName(0)
	if defaultSheet != exportHistorySheet {
		file.SetSheetName(defaultSheet, exportHistorySheet)
	}

	headers := []any{"job_id", "export_type", "status", "exported_at", "error_message", "external_reference"}
	if err := file.SetSheetRow(exportHistorySheet, "A1", &headers); err != nil {
		return c.JSON(500, errorBody(d.localize(locale, "internal_error")))
	}
	for i, row := range rows {
		cells := []any{
			row.JobID, string(row.ExportType), string(row.Status),
			row.ExportedAt.UTC().Format(time.RFC3339), row.ErrorMessage, row.ExternalReference,
		}
		cellRef := fmt.Sprintf("A%d", i+2)
		if err := file.SetSheetRow(exportHistorySheet, cellRef, &cells); err != nil {
			return c.JSON(500, errorBody(d.localize(locale, "internal_error")))
		}
	}

	c.SetHeader("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.SetHeader("Content-Disposition", "attachment; filename=\"export-history.xlsx\"")
	writer, ok := router.AsHTTPContext(c)
	if ok && writer.Response() != nil {
		_, err := file.WriteTo(writer.Response())
		return err
	}
	buf, err := file.WriteToBuffer()
	if err != nil {
		return c.JSON(500, errorBody(d.localize(locale, "internal_error")))
	}
	return c.Send(buf.Bytes())
}
