package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fakturenn/invoicebridge/internal/template"
	"golang.org/x/sync/errgroup"
)

// Coordinator drives a single Job from pending to a terminal state. It is
// the sole writer of Job.status once the row has left pending.
type Coordinator struct {
	Store           Store
	SourceRunners   *SourceRunnerRegistry
	ExportHandlers  *ExportHandlerRegistry
	Template        TemplateRenderer
	Bus             EventBus
	Logger          Logger
	Now             func() time.Time

	// JobDeadline bounds a single job's lifetime (default 30 minutes).
	JobDeadline time.Duration
	// MaxConcurrentSources bounds per-job source fan-out (default 8).
	MaxConcurrentSources int
	// MaxConcurrentExports bounds per-invoice export fan-out (default 4).
	MaxConcurrentExports int
}

const (
	defaultJobDeadline          = 30 * time.Minute
	defaultMaxConcurrentSources = 8
	defaultMaxConcurrentExports = 4
)

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return NopLogger{}
}

// HandleJobStarted consumes a job.started event. Redelivery after a
// terminal (or already-running) transition is idempotent: the first
// delivery to win the pending->running CAS owns the job; every other
// delivery acks immediately without side effects.
func (c *Coordinator) HandleJobStarted(ctx context.Context, evt JobStartedEvent) error {
	if c == nil || c.Store == nil {
		return NewError(KindInternal, "coordinator store is not configured", nil)
	}
	if c.SourceRunners == nil || c.ExportHandlers == nil {
		return NewError(KindInternal, "coordinator registries are not configured", nil)
	}

	started := c.now()
	claimed, err := c.Store.ClaimJob(ctx, evt.JobID, started)
	if err != nil {
		return NewError(KindCoordinatorFatal, "claim job failed", err)
	}
	if !claimed {
		// Another coordinator already owns this job, or it is already
		// terminal. Ack and return: idempotent by Job.status != pending.
		c.logger().Infof("job %d already claimed or terminal, skipping redelivery", evt.JobID)
		return nil
	}

	deadline := c.JobDeadline
	if deadline <= 0 {
		deadline = defaultJobDeadline
	}
	runCtx, cancel := context.WithDeadline(ctx, started.Add(deadline))
	defer cancel()

	// The pipeline runs on its own goroutine so the deadline can be
	// enforced independently of it: a source or handler that ignores
	// ctx and blocks forever must not be able to keep a job "running"
	// past its deadline. Whichever of the pipeline or the deadline
	// finishes first finalizes the job; the loser's FinishJob call is
	// a guarded no-op (Store.FinishJob only applies to a row still in
	// JobRunning). In-flight ExportHistory writes from a deadline-lost
	// pipeline are not suppressed; they remain for offline audit.
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.runPipeline(ctx, runCtx, evt, started)
	}()

	select {
	case err := <-resultCh:
		return err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return c.finalizeTimeout(ctx, evt, started)
		}
		return <-resultCh
	}
}

// runPipeline loads the automation's sources/exports/mappings, fans out
// extraction and export, and finalizes the job. ctx is used for store
// writes and bus publishes (it outlives runCtx, which is only armed for
// the pipeline's own work so it can be cut short at the deadline).
func (c *Coordinator) runPipeline(ctx, runCtx context.Context, evt JobStartedEvent, started time.Time) error {
	scope := Scope{UserID: evt.UserID}
	automation, err := c.Store.GetAutomation(runCtx, scope, evt.AutomationID)
	if err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindTenancyViolation, "AutomationNotFound", err))
	}

	sources, err := c.Store.ActiveSources(runCtx, automation.ID)
	if err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "load sources failed", err))
	}
	exports, err := c.Store.ActiveExports(runCtx, automation.ID)
	if err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "load exports failed", err))
	}
	mappings, err := c.Store.Mappings(runCtx, automation.ID)
	if err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "load mappings failed", err))
	}
	if len(sources) == 0 || len(exports) == 0 || len(mappings) == 0 {
		return c.finalizeFailed(ctx, evt, started, NewError(KindEmptyPipeline, "EmptyPipeline", nil))
	}

	exportByID := make(map[int64]Export, len(exports))
	for _, e := range exports {
		exportByID[e.ID] = e
	}
	targetsBySource := buildRoutingTable(mappings, exportByID)

	fromDate, err := template.ParseFromDate(evt.FromDate)
	if err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindValidation, "invalid from_date", err))
	}

	stats := JobStats{}
	type sourceOutcome struct {
		source   Source
		invoices []Invoice
		err      error
	}

	outcomes := make([]sourceOutcome, len(sources))
	fanout := c.MaxConcurrentSources
	if fanout <= 0 {
		fanout = defaultMaxConcurrentSources
	}

	skipped := make([]bool, len(sources))
	group, gctx := errgroup.WithContext(runCtx)
	group.SetLimit(fanout)
	for i, src := range sources {
		i, src := i, src
		group.Go(func() error {
			if cancelled, err := c.checkCancelled(gctx, evt.JobID); err != nil {
				return err
			} else if cancelled {
				skipped[i] = true
				return nil
			}
			runner, ok := c.SourceRunners.Resolve(src.Type)
			if !ok {
				outcomes[i] = sourceOutcome{source: src, err: NewError(KindSourceFailure, fmt.Sprintf("no runner registered for %q", src.Type), nil)}
				return nil
			}
			maxResults := effectiveMaxResults(src.MaxResults, evt.MaxResults)
			invoices, err := runner.Run(gctx, src, fromDate, maxResults)
			outcomes[i] = sourceOutcome{source: src, invoices: invoices, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "source fan-out failed", err))
	}
	for _, wasSkipped := range skipped {
		if wasSkipped {
			return c.finalizeCancelled(ctx, evt, started, stats)
		}
	}

	var pairs []sourceInvoice
	for _, o := range outcomes {
		if o.err != nil {
			stats.SourcesFailed++
			c.logger().Errorf("source %d (%s) failed: %v", o.source.ID, o.source.Type, o.err)
			continue
		}
		stats.SourcesExecuted++
		stats.InvoicesExtracted += len(o.invoices)
		for _, inv := range o.invoices {
			pairs = append(pairs, sourceInvoice{source: o.source, invoice: inv})
		}
	}

	if stats.SourcesExecuted == 0 && len(sources) > 0 {
		return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "AllSourcesFailed", nil))
	}

	for _, pair := range pairs {
		if cancelled, err := c.checkCancelled(runCtx, evt.JobID); err != nil {
			return err
		} else if cancelled {
			return c.finalizeCancelled(ctx, evt, started, stats)
		}

		targets := targetsBySource[pair.source.ID]
		if len(targets) == 0 {
			continue
		}

		if err := c.exportInvoice(runCtx, evt, pair, targets, &stats); err != nil {
			return c.finalizeFailed(ctx, evt, started, NewError(KindCoordinatorFatal, "export dispatch failed", err))
		}
	}

	completed := c.now()
	stats.DurationSeconds = completed.Sub(started).Seconds()

	if err := c.Store.FinishJob(ctx, evt.JobID, JobCompleted, "", stats, completed); err != nil {
		return NewError(KindCoordinatorFatal, "finish job failed", err)
	}

	if c.Bus != nil {
		pubErr := c.Bus.PublishJobCompleted(ctx, JobCompletedEvent{
			JobID:        evt.JobID,
			AutomationID: evt.AutomationID,
			UserID:       evt.UserID,
			CompletedAt:  completed,
			Stats:        stats,
		})
		if pubErr != nil {
			c.logger().Errorf("publish job.completed failed: %v", pubErr)
		}
	}

	return nil
}

type sourceInvoice struct {
	source  Source
	invoice Invoice
}

// exportInvoice drives all mapped exports for one invoice, bounded by
// MaxConcurrentExports, writing exactly one ExportHistory row per
// (invoice, export) attempt. Per-invoice export failure never fails the
// job; it is only counted.
func (c *Coordinator) exportInvoice(ctx context.Context, evt JobStartedEvent, pair sourceInvoice, targets []Export, stats *JobStats) error {
	fanout := c.MaxConcurrentExports
	if fanout <= 0 {
		fanout = defaultMaxConcurrentExports
	}

	type exportOutcome struct {
		export Export
		result HandlerResult
		failed bool
	}
	outcomes := make([]exportOutcome, len(targets))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(fanout)
	for i, exp := range targets {
		i, exp := i, exp
		group.Go(func() error {
			renderCtx := buildRenderContext(pair.invoice)
			handler, ok := c.ExportHandlers.Resolve(exp.Type)
			if !ok {
				outcomes[i] = exportOutcome{export: exp, result: HandlerResult{Status: ExportFailed, ErrorMessage: fmt.Sprintf("no handler registered for %q", exp.Type)}, failed: true}
				return nil
			}
			result := handler.Export(gctx, pair.invoice, exp, renderCtx)
			outcomes[i] = exportOutcome{export: exp, result: result, failed: result.Status == ExportFailed}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, o := range outcomes {
		row := ExportHistory{
			JobID:             evt.JobID,
			ExportID:          ptrInt64(o.export.ID),
			ExportType:        o.export.Type,
			Status:            o.result.Status,
			ExportedAt:        c.now(),
			ErrorMessage:      o.result.ErrorMessage,
			ExternalReference: o.result.ExternalReference,
			Context:           renderContextToMap(buildRenderContext(pair.invoice), pair.source.Name),
		}
		if err := c.Store.InsertExportHistory(ctx, row); err != nil {
			return err
		}
		switch o.result.Status {
		case ExportSuccess, ExportDuplicateSkipped:
			stats.ExportsCompleted++
		case ExportFailed:
			stats.ExportsFailed++
		}
	}
	return nil
}

func (c *Coordinator) checkCancelled(ctx context.Context, jobID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	status, err := c.Store.JobStatus(context.Background(), jobID)
	if err != nil {
		return false, err
	}
	return status == JobCancelled, nil
}

func (c *Coordinator) finalizeFailed(ctx context.Context, evt JobStartedEvent, started time.Time, cause error) error {
	completed := c.now()
	msg := cause.Error()
	if domainErr, ok := asDomainError(cause); ok && domainErr.Msg != "" {
		msg = domainErr.Msg
	}

	stats := JobStats{DurationSeconds: completed.Sub(started).Seconds()}
	if err := c.Store.FinishJob(ctx, evt.JobID, JobFailed, msg, stats, completed); err != nil {
		c.logger().Errorf("finish failed job %d failed: %v", evt.JobID, err)
	}

	if c.Bus != nil {
		pubErr := c.Bus.PublishJobFailed(ctx, JobFailedEvent{
			JobID:        evt.JobID,
			AutomationID: evt.AutomationID,
			UserID:       evt.UserID,
			FailedAt:     completed,
			ErrorMessage: msg,
		})
		if pubErr != nil {
			c.logger().Errorf("publish job.failed failed: %v", pubErr)
		}
	}
	return nil
}

// finalizeCancelled records that an externally-requested cancellation won
// the race: Job.status stays cancelled (it is a terminal state reachable
// only from the admin surface, never rewritten to failed by a worker) but
// a job.failed event with reason Cancelled is still published, since the
// bus has no distinct cancellation event.
func (c *Coordinator) finalizeCancelled(ctx context.Context, evt JobStartedEvent, started time.Time, stats JobStats) error {
	completed := c.now()
	stats.DurationSeconds = completed.Sub(started).Seconds()
	if err := c.Store.FinishJob(ctx, evt.JobID, JobCancelled, "Cancelled", stats, completed); err != nil {
		c.logger().Errorf("finish cancelled job %d failed: %v", evt.JobID, err)
	}
	if c.Bus != nil {
		pubErr := c.Bus.PublishJobFailed(ctx, JobFailedEvent{
			JobID:        evt.JobID,
			AutomationID: evt.AutomationID,
			UserID:       evt.UserID,
			FailedAt:     completed,
			ErrorMessage: "Cancelled",
		})
		if pubErr != nil {
			c.logger().Errorf("publish job.failed failed: %v", pubErr)
		}
	}
	return nil
}

// finalizeTimeout force-transitions a job to failed/Timeout the instant
// its deadline fires, independent of whatever the pipeline goroutine is
// still doing. It uses ctx (not the already-expired runCtx) so the
// finalizing write and publish are not themselves doomed by the deadline.
func (c *Coordinator) finalizeTimeout(ctx context.Context, evt JobStartedEvent, started time.Time) error {
	completed := c.now()
	stats := JobStats{DurationSeconds: completed.Sub(started).Seconds()}
	if err := c.Store.FinishJob(ctx, evt.JobID, JobFailed, "Timeout", stats, completed); err != nil {
		c.logger().Errorf("finish timed out job %d failed: %v", evt.JobID, err)
	}
	if c.Bus != nil {
		pubErr := c.Bus.PublishJobFailed(ctx, JobFailedEvent{
			JobID:        evt.JobID,
			AutomationID: evt.AutomationID,
			UserID:       evt.UserID,
			FailedAt:     completed,
			ErrorMessage: "Timeout",
		})
		if pubErr != nil {
			c.logger().Errorf("publish job.failed failed: %v", pubErr)
		}
	}
	return nil
}

func asDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

func buildRoutingTable(mappings []SourceExportMapping, exportByID map[int64]Export) map[int64][]Export {
	bySource := make(map[int64][]SourceExportMapping, len(mappings))
	for _, m := range mappings {
		bySource[m.SourceID] = append(bySource[m.SourceID], m)
	}

	table := make(map[int64][]Export, len(bySource))
	for sourceID, ms := range bySource {
		// priority ascending
		for i := 1; i < len(ms); i++ {
			for j := i; j > 0 && ms[j].Priority < ms[j-1].Priority; j-- {
				ms[j], ms[j-1] = ms[j-1], ms[j]
			}
		}
		for _, m := range ms {
			if exp, ok := exportByID[m.ExportID]; ok {
				table[sourceID] = append(table[sourceID], exp)
			}
		}
	}
	return table
}

func effectiveMaxResults(sourceMax, jobMax int) int {
	if jobMax > 0 && (sourceMax <= 0 || jobMax < sourceMax) {
		return jobMax
	}
	return sourceMax
}

func ptrInt64(v int64) *int64 {
	return &v
}

func buildRenderContext(inv Invoice) RenderContext {
	ctx := RenderContext{
		InvoiceID: inv.InvoiceID,
		Date:      inv.Date,
		Source:    inv.Source,
		Filename:  filenameFromPath(inv.FilePath),
	}
	if inv.AmountEUR != nil {
		ctx.AmountEUR = *inv.AmountEUR
	}
	if len(inv.Date) >= 7 {
		ctx.Year = inv.Date[0:4]
		ctx.Month = inv.Date[5:7]
		ctx.MonthName = template.FrenchMonth(ctx.Month)
		if q, err := template.Quarter(ctx.Month); err == nil {
			ctx.Quarter = q
		}
	}
	return ctx
}

func filenameFromPath(p string) string {
	if p == "" {
		return ""
	}
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}

func renderContextToMap(rc RenderContext, sourceName string) map[string]any {
	m := map[string]any{
		"invoice_id": rc.InvoiceID,
		"date":       rc.Date,
		"amount_eur": rc.AmountEUR,
		"source":     sourceName,
	}
	if rc.Year != "" {
		m["year"] = rc.Year
		m["month"] = rc.Month
		m["quarter"] = rc.Quarter
		m["month_name"] = rc.MonthName
	}
	return m
}
