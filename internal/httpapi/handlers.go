package httpapi

import (
	"strconv"
	"strings"

	router "github.com/goliatone/go-router"

	"github.com/fakturenn/invoicebridge/internal/command"
	"github.com/fakturenn/invoicebridge/internal/core"
)

type triggerRequest struct {
	UserID         int64  `json:"user_id"`
	FromDate       string `json:"from_date"`
	MaxResults     int    `json:"max_results"`
	IdempotencyKey string `json:"idempotency_key"`
}

// TriggerAutomation handles POST /automations/:id/trigger.
func (d Dependencies) TriggerAutomation(c router.Context) error {
	locale := c.Query("locale")
	automationID, ok := parsePathInt64(c, "id")
	if !ok {
		return c.JSON(400, errorBody(d.localize(locale, "automation_required")))
	}

	var body triggerRequest
	if c.Method() == "POST" {
		_ = c.Bind(&body)
	}
	idempotencyKey := body.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = c.Header("X-Idempotency-Key")
	}

	msg := command.TriggerAutomation{
		UserID:         body.UserID,
		AutomationID:   automationID,
		FromDate:       body.FromDate,
		MaxResults:     body.MaxResults,
		IdempotencyKey: idempotencyKey,
	}
	if err := d.Trigger.Execute(c.Context(), msg); err != nil {
		return c.JSON(statusForError(err), errorBody(d.localizeError(locale, err)))
	}
	return c.JSON(202, map[string]any{"automation_id": automationID, "accepted": true})
}

// CancelJob handles POST /jobs/:id/cancel.
func (d Dependencies) CancelJob(c router.Context) error {
	locale := c.Query("locale")
	jobID, ok := parsePathInt64(c, "id")
	if !ok {
		return c.JSON(400, errorBody(d.localize(locale, "job_id_required")))
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if c.Method() == "POST" {
		_ = c.Bind(&body)
	}

	if err := d.Cancel.Execute(c.Context(), command.CancelJob{UserID: body.UserID, JobID: jobID}); err != nil {
		return c.JSON(statusForError(err), errorBody(d.localizeError(locale, err)))
	}
	return c.JSON(200, map[string]any{"job_id": jobID, "cancelled": true})
}

// JobStatus handles GET /jobs/:id.
func (d Dependencies) JobStatus(c router.Context) error {
	locale := c.Query("locale")
	jobID, ok := parsePathInt64(c, "id")
	if !ok {
		return c.JSON(400, errorBody(d.localize(locale, "job_id_required")))
	}

	job, err := d.Store.GetJob(c.Context(), jobID)
	if err != nil {
		return c.JSON(statusForError(err), errorBody(d.localizeError(locale, err)))
	}
	return c.JSON(200, job)
}

func parsePathInt64(c router.Context, name string) (int64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func errorBody(message string) map[string]any {
	return map[string]any{"error": message}
}

func (d Dependencies) localizeError(locale string, err error) string {
	switch core.KindFromError(err) {
	case core.KindNotFound:
		return d.localize(locale, "job_not_found")
	case core.KindConflict:
		return d.localize(locale, "job_already_terminal")
	case core.KindValidation:
		return err.Error()
	default:
		return d.localize(locale, "internal_error")
	}
}

func statusForError(err error) int {
	switch core.KindFromError(err) {
	case core.KindNotFound:
		return 404
	case core.KindConflict:
		return 409
	case core.KindValidation, core.KindTenancyViolation:
		return 400
	default:
		return 500
	}
}
