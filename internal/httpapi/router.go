package httpapi

import (
	router "github.com/goliatone/go-router"
)

// RegisterRoutes wires the admin automation/job endpoints onto any
// go-router-compatible router, mirroring the reference stack's own
// exportrouter.Handler.RegisterRoutes.
func RegisterRoutes[T any](r router.Router[T], deps Dependencies) {
	r.Post("/automations/:id/trigger", deps.TriggerAutomation)
	r.Post("/jobs/:id/cancel", deps.CancelJob)
	r.Get("/jobs/:id", deps.JobStatus)
	r.Get("/reports/export-history", deps.ExportHistoryReport)
}
