package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store double scoped to what the Coordinator
// touches: one automation with a fixed set of sources/exports/mappings,
// and a CAS-guarded job row mirroring the durable store's ClaimJob
// semantics.
type memStore struct {
	mu sync.Mutex

	automation Automation
	sources    []Source
	exports    []Export
	mappings   []SourceExportMapping

	job        Job
	cancelled  bool
	history    []ExportHistory
}

func newMemStore(job Job) *memStore {
	return &memStore{job: job}
}

func (s *memStore) GetAutomation(ctx context.Context, scope Scope, automationID int64) (Automation, error) {
	if s.automation.ID != automationID {
		return Automation{}, NewError(KindNotFound, "automation not found", nil)
	}
	return s.automation, nil
}
func (s *memStore) ActiveAutomations(ctx context.Context) ([]Automation, error) { return nil, nil }
func (s *memStore) ActiveSources(ctx context.Context, automationID int64) ([]Source, error) {
	return s.sources, nil
}
func (s *memStore) ActiveExports(ctx context.Context, automationID int64) ([]Export, error) {
	return s.exports, nil
}
func (s *memStore) Mappings(ctx context.Context, automationID int64) ([]SourceExportMapping, error) {
	return s.mappings, nil
}
func (s *memStore) CreateJob(ctx context.Context, automationID int64, fromDate *time.Time, maxResults int) (Job, error) {
	return s.job, nil
}

func (s *memStore) ClaimJob(ctx context.Context, jobID int64, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID != jobID || s.job.Status != JobPending {
		return false, nil
	}
	s.job.Status = JobRunning
	s.job.StartedAt = &startedAt
	return true, nil
}

func (s *memStore) JobStatus(ctx context.Context, jobID int64) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return JobCancelled, nil
	}
	return s.job.Status, nil
}

func (s *memStore) FinishJob(ctx context.Context, jobID int64, status JobStatus, errMsg string, stats JobStats, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status != JobRunning {
		return NewError(KindNotFound, fmt.Sprintf("job %d not found or not running", jobID), nil)
	}
	s.job.Status = status
	s.job.ErrorMessage = errMsg
	s.job.Stats = stats
	s.job.CompletedAt = &completedAt
	return nil
}

func (s *memStore) RequestCancellation(ctx context.Context, jobID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	return true, nil
}

func (s *memStore) GetJob(ctx context.Context, jobID int64) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job, nil
}

func (s *memStore) InsertExportHistory(ctx context.Context, row ExportHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, row)
	return nil
}
func (s *memStore) InsertAuditLog(ctx context.Context, row AuditLog) error { return nil }
func (s *memStore) ExportHistoryRange(ctx context.Context, from, to time.Time) ([]ExportHistory, error) {
	return s.history, nil
}
func (s *memStore) CheckIdempotency(ctx context.Context, signature string) (int64, bool, error) {
	return 0, false, nil
}
func (s *memStore) StoreIdempotency(ctx context.Context, signature string, jobID int64, ttl time.Duration) error {
	return nil
}

// stubRunner returns a fixed invoice set, or an error when told to fail,
// optionally sleeping first to exercise deadline handling.
type stubRunner struct {
	invoices []Invoice
	err      error
	delay    time.Duration
}

func (r stubRunner) Run(ctx context.Context, source Source, fromDate time.Time, maxResults int) ([]Invoice, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.invoices, nil
}

// cancellingRunner returns a fixed invoice set and, as a side effect of
// running, flags the job cancelled so the coordinator's next safe-point
// check (between export pairs) observes it.
type cancellingRunner struct {
	invoices []Invoice
	store    *memStore
}

func (r cancellingRunner) Run(ctx context.Context, source Source, fromDate time.Time, maxResults int) ([]Invoice, error) {
	r.store.mu.Lock()
	r.store.cancelled = true
	r.store.mu.Unlock()
	return r.invoices, nil
}

// stubHandler returns a fixed HandlerResult for every export call.
type stubHandler struct {
	result HandlerResult
}

func (h stubHandler) Export(ctx context.Context, invoice Invoice, export Export, renderCtx RenderContext) HandlerResult {
	return h.result
}

func baseAutomation() Automation {
	return Automation{ID: 1, UserID: 42, Name: "monthly-invoices", Active: true}
}

func baseSource() Source {
	return Source{ID: 10, AutomationID: 1, Name: "provider-a", Type: SourceProviderA, Active: true}
}

func baseExport() Export {
	return Export{ID: 20, AutomationID: 1, Name: "filesystem", Type: ExportFilesystem, Active: true}
}

func baseMapping() SourceExportMapping {
	return SourceExportMapping{ID: 30, SourceID: 10, ExportID: 20, Priority: 1}
}

func newCoordinator(t *testing.T, store Store, sourceRunners *SourceRunnerRegistry, exportHandlers *ExportHandlerRegistry) *Coordinator {
	t.Helper()
	return &Coordinator{
		Store:          store,
		SourceRunners:  sourceRunners,
		ExportHandlers: exportHandlers,
		Now:            time.Now,
	}
}

func TestHandleJobStartedHappyPath(t *testing.T) {
	store := newMemStore(Job{ID: 1, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	store.sources = []Source{baseSource()}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{baseMapping()}

	amount := 120.5
	runners := NewSourceRunnerRegistry()
	require.NoError(t, runners.Register(SourceProviderA, stubRunner{invoices: []Invoice{{InvoiceID: "INV-1", Date: "2026-07-01", AmountEUR: &amount}}}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportSuccess}}))

	coord := newCoordinator(t, store, runners, handlers)
	err := coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 1, AutomationID: 1, UserID: 42})
	require.NoError(t, err)

	assert.Equal(t, JobCompleted, store.job.Status)
	assert.Equal(t, 1, store.job.Stats.SourcesExecuted)
	assert.Equal(t, 1, store.job.Stats.InvoicesExtracted)
	assert.Equal(t, 1, store.job.Stats.ExportsCompleted)
	require.Len(t, store.history, 1)
	assert.Equal(t, ExportSuccess, store.history[0].Status)
}

func TestHandleJobStartedSkipsDuplicateExports(t *testing.T) {
	store := newMemStore(Job{ID: 2, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	store.sources = []Source{baseSource()}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{baseMapping()}

	runners := NewSourceRunnerRegistry()
	require.NoError(t, runners.Register(SourceProviderA, stubRunner{invoices: []Invoice{{InvoiceID: "INV-2", Date: "2026-07-02"}}}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportDuplicateSkipped}}))

	coord := newCoordinator(t, store, runners, handlers)
	require.NoError(t, coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 2, AutomationID: 1, UserID: 42}))

	assert.Equal(t, JobCompleted, store.job.Status)
	assert.Equal(t, 1, store.job.Stats.ExportsCompleted)
	assert.Equal(t, 0, store.job.Stats.ExportsFailed)
	require.Len(t, store.history, 1)
	assert.Equal(t, ExportDuplicateSkipped, store.history[0].Status)
}

func TestHandleJobStartedCountsPartialSourceFailure(t *testing.T) {
	store := newMemStore(Job{ID: 3, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	failingSource := Source{ID: 11, AutomationID: 1, Name: "provider-b", Type: SourceProviderB, Active: true}
	store.sources = []Source{baseSource(), failingSource}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{
		baseMapping(),
		{ID: 31, SourceID: 11, ExportID: 20, Priority: 1},
	}

	runners := NewSourceRunnerRegistry()
	require.NoError(t, runners.Register(SourceProviderA, stubRunner{invoices: []Invoice{{InvoiceID: "INV-3", Date: "2026-07-03"}}}))
	require.NoError(t, runners.Register(SourceProviderB, stubRunner{err: assert.AnError}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportSuccess}}))

	coord := newCoordinator(t, store, runners, handlers)
	require.NoError(t, coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 3, AutomationID: 1, UserID: 42}))

	assert.Equal(t, JobCompleted, store.job.Status)
	assert.Equal(t, 1, store.job.Stats.SourcesExecuted)
	assert.Equal(t, 1, store.job.Stats.SourcesFailed)
}

func TestHandleJobStartedFailsOnEmptyPipeline(t *testing.T) {
	store := newMemStore(Job{ID: 4, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	// No sources, exports, or mappings registered.

	coord := newCoordinator(t, store, NewSourceRunnerRegistry(), NewExportHandlerRegistry())
	require.NoError(t, coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 4, AutomationID: 1, UserID: 42}))

	assert.Equal(t, JobFailed, store.job.Status)
	assert.Equal(t, "EmptyPipeline", store.job.ErrorMessage)
}

func TestHandleJobStartedRedeliveryIsIdempotent(t *testing.T) {
	store := newMemStore(Job{ID: 5, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	store.sources = []Source{baseSource()}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{baseMapping()}

	runners := NewSourceRunnerRegistry()
	require.NoError(t, runners.Register(SourceProviderA, stubRunner{invoices: []Invoice{{InvoiceID: "INV-5", Date: "2026-07-05"}}}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportSuccess}}))

	coord := newCoordinator(t, store, runners, handlers)
	evt := JobStartedEvent{JobID: 5, AutomationID: 1, UserID: 42}
	require.NoError(t, coord.HandleJobStarted(context.Background(), evt))
	require.Len(t, store.history, 1)

	// Redelivery of the same job.started event after it has already
	// completed must not re-run the pipeline: ClaimJob's CAS rejects it
	// because Job.Status is no longer pending.
	require.NoError(t, coord.HandleJobStarted(context.Background(), evt))
	assert.Len(t, store.history, 1)
}

func TestHandleJobStartedExceedsDeadline(t *testing.T) {
	store := newMemStore(Job{ID: 6, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	store.sources = []Source{baseSource()}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{baseMapping()}

	runners := NewSourceRunnerRegistry()
	require.NoError(t, runners.Register(SourceProviderA, stubRunner{invoices: []Invoice{{InvoiceID: "INV-6"}}, delay: 50 * time.Millisecond}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportSuccess}}))

	coord := newCoordinator(t, store, runners, handlers)
	coord.JobDeadline = 5 * time.Millisecond

	require.NoError(t, coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 6, AutomationID: 1, UserID: 42}))

	assert.Equal(t, JobFailed, store.job.Status)
	assert.Equal(t, "Timeout", store.job.ErrorMessage)
}

// TestHandleJobStartedCancellation exercises the admin-cancellation path:
// the coordinator must observe Job.status == cancelled at its next safe
// point and abort without overwriting that status to failed.
func TestHandleJobStartedCancellation(t *testing.T) {
	store := newMemStore(Job{ID: 7, AutomationID: 1, Status: JobPending})
	store.automation = baseAutomation()
	store.sources = []Source{baseSource()}
	store.exports = []Export{baseExport()}
	store.mappings = []SourceExportMapping{baseMapping()}

	runners := NewSourceRunnerRegistry()
	// The source call itself is what flags the job cancelled, mimicking
	// the admin surface racing the coordinator: the invoices it returns
	// still reach the per-pair loop, where checkCancelled must catch the
	// cancellation before any export is dispatched.
	require.NoError(t, runners.Register(SourceProviderA, cancellingRunner{invoices: []Invoice{{InvoiceID: "INV-7"}}, store: store}))
	handlers := NewExportHandlerRegistry()
	require.NoError(t, handlers.Register(ExportFilesystem, stubHandler{result: HandlerResult{Status: ExportSuccess}}))

	coord := newCoordinator(t, store, runners, handlers)
	require.NoError(t, coord.HandleJobStarted(context.Background(), JobStartedEvent{JobID: 7, AutomationID: 1, UserID: 42}))

	// Job.status must stay cancelled: it is a terminal state reachable
	// only from the admin surface and must never be rewritten to failed
	// by the coordinator.
	assert.Equal(t, JobCancelled, store.job.Status)
	assert.Equal(t, "Cancelled", store.job.ErrorMessage)
}
