package core

import (
	"context"
	"time"
)

// SourceRunner is the uniform contract the coordinator uses to dispatch
// extraction regardless of provider. Implementations own authentication,
// pagination, and from_date filtering; the coordinator never introspects
// ExtractionParams.
type SourceRunner interface {
	Run(ctx context.Context, source Source, fromDate time.Time, maxResults int) ([]Invoice, error)
}

// SourceRunnerFunc adapts a function to a SourceRunner.
type SourceRunnerFunc func(ctx context.Context, source Source, fromDate time.Time, maxResults int) ([]Invoice, error)

func (f SourceRunnerFunc) Run(ctx context.Context, source Source, fromDate time.Time, maxResults int) ([]Invoice, error) {
	if f == nil {
		return nil, NewError(KindInternal, "source runner is nil", nil)
	}
	return f(ctx, source, fromDate, maxResults)
}

// HandlerResult is the tri-valued outcome of an Export Handler invocation.
type HandlerResult struct {
	Status            ExportHistoryStatus
	ExternalReference string
	ErrorMessage       string
}

// ExportHandler is the uniform contract every export adapter implements.
// Handlers never raise across the boundary: every failure comes back as
// HandlerResult{Status: ExportFailed}.
type ExportHandler interface {
	Export(ctx context.Context, invoice Invoice, export Export, renderCtx RenderContext) HandlerResult
}

// ExportHandlerFunc adapts a function to an ExportHandler.
type ExportHandlerFunc func(ctx context.Context, invoice Invoice, export Export, renderCtx RenderContext) HandlerResult

func (f ExportHandlerFunc) Export(ctx context.Context, invoice Invoice, export Export, renderCtx RenderContext) HandlerResult {
	if f == nil {
		return HandlerResult{Status: ExportFailed, ErrorMessage: "export handler is nil"}
	}
	return f(ctx, invoice, export, renderCtx)
}

// DuplicateGuard inspects a sink for a pre-existing natural-key entry
// before a handler performs its external side effect. Guard failures
// (sink unreachable) are surfaced distinctly from "found a duplicate" so
// handlers can map them to a retryable failed(reason) rather than
// silently treating an outage as "not a duplicate".
type DuplicateGuard interface {
	IsDuplicate(ctx context.Context, export Export, renderCtx RenderContext) (bool, error)
}

// DuplicateGuardFunc adapts a function to a DuplicateGuard.
type DuplicateGuardFunc func(ctx context.Context, export Export, renderCtx RenderContext) (bool, error)

func (f DuplicateGuardFunc) IsDuplicate(ctx context.Context, export Export, renderCtx RenderContext) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f(ctx, export, renderCtx)
}

// TemplateRenderer renders a path/label template against a closed
// variable set, rejecting unknown placeholders before any side effect.
type TemplateRenderer interface {
	Render(template string, renderCtx RenderContext) (string, error)
	Validate(template string) error
}

// Store is the persistence contract the coordinator depends on. Only
// GetAutomation takes a Scope and checks the owner; the other methods
// resolve resources by automation or job ID alone, without a tenancy
// check.
type Store interface {
	GetAutomation(ctx context.Context, scope Scope, automationID int64) (Automation, error)
	ActiveAutomations(ctx context.Context) ([]Automation, error)
	ActiveSources(ctx context.Context, automationID int64) ([]Source, error)
	ActiveExports(ctx context.Context, automationID int64) ([]Export, error)
	Mappings(ctx context.Context, automationID int64) ([]SourceExportMapping, error)

	CreateJob(ctx context.Context, automationID int64, fromDate *time.Time, maxResults int) (Job, error)
	ClaimJob(ctx context.Context, jobID int64, startedAt time.Time) (bool, error)
	JobStatus(ctx context.Context, jobID int64) (JobStatus, error)
	FinishJob(ctx context.Context, jobID int64, status JobStatus, errMsg string, stats JobStats, completedAt time.Time) error
	RequestCancellation(ctx context.Context, jobID int64) (bool, error)

	// GetJob returns the full row backing a status/report lookup, as
	// opposed to JobStatus's narrower state-machine check.
	GetJob(ctx context.Context, jobID int64) (Job, error)

	InsertExportHistory(ctx context.Context, row ExportHistory) error
	InsertAuditLog(ctx context.Context, row AuditLog) error

	// ExportHistoryRange lists export-history rows exported within
	// [from, to), ordered by ExportedAt, for the export-history report.
	ExportHistoryRange(ctx context.Context, from, to time.Time) ([]ExportHistory, error)

	// CheckIdempotency looks up a previously stored trigger signature.
	// found is false once the record has expired.
	CheckIdempotency(ctx context.Context, signature string) (jobID int64, found bool, err error)
	// StoreIdempotency records a trigger signature against the job it
	// created, expiring after ttl (zero means no expiry).
	StoreIdempotency(ctx context.Context, signature string, jobID int64, ttl time.Duration) error
}

// Logger provides logging hooks, kept narrow so adapters can back it with
// any structured logger without pulling its concrete type into core.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger, used as a safe default.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
