// Package httpapi is the thin admin REST surface: trigger an automation,
// check a job's status, cancel a run, and download the export-history
// report. It wraps internal/command's handlers the same way the
// reference stack's own adapters/router package wraps its export
// service, translating router.Context into typed command messages.
package httpapi

import (
	"time"

	"github.com/fakturenn/invoicebridge/internal/command"
	"github.com/fakturenn/invoicebridge/internal/core"
)

// Dependencies wires the command handlers and store this package's
// handlers call into.
type Dependencies struct {
	Store   core.Store
	Trigger *command.TriggerAutomationHandler
	Cancel  *command.CancelJobHandler

	// Localize resolves a user-facing message key into its locale string,
	// backed by an internal/httpapi/locale translator built on go-i18n. A
	// nil Localize falls back to returning the message key itself.
	Localize func(locale, key string) string

	Now func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dependencies) localize(locale, key string) string {
	if d.Localize == nil {
		return key
	}
	return d.Localize(locale, key)
}
