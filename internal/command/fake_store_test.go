package command

import (
	"context"
	"time"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// fakeStore is a minimal in-memory core.Store double for this package's
// tests: only the operations command handlers touch are meaningfully
// implemented, the rest return zero values.
type fakeStore struct {
	automations []core.Automation

	nextJobID      int64
	createdJobs    []core.Job
	jobStatus      map[int64]core.JobStatus
	cancelRequests []int64
	cancelOK       bool

	idempotency map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobStatus:   make(map[int64]core.JobStatus),
		cancelOK:    true,
		idempotency: make(map[string]int64),
	}
}

func (s *fakeStore) GetAutomation(ctx context.Context, scope core.Scope, automationID int64) (core.Automation, error) {
	for _, a := range s.automations {
		if a.ID == automationID {
			return a, nil
		}
	}
	return core.Automation{}, core.NewError(core.KindNotFound, "automation not found", nil)
}

func (s *fakeStore) ActiveAutomations(ctx context.Context) ([]core.Automation, error) {
	return s.automations, nil
}

func (s *fakeStore) ActiveSources(ctx context.Context, automationID int64) ([]core.Source, error) {
	return nil, nil
}

func (s *fakeStore) ActiveExports(ctx context.Context, automationID int64) ([]core.Export, error) {
	return nil, nil
}

func (s *fakeStore) Mappings(ctx context.Context, automationID int64) ([]core.SourceExportMapping, error) {
	return nil, nil
}

func (s *fakeStore) CreateJob(ctx context.Context, automationID int64, fromDate *time.Time, maxResults int) (core.Job, error) {
	s.nextJobID++
	job := core.Job{ID: s.nextJobID, AutomationID: automationID, Status: core.JobPending, FromDate: fromDate, MaxResults: maxResults}
	s.createdJobs = append(s.createdJobs, job)
	s.jobStatus[job.ID] = core.JobPending
	return job, nil
}

func (s *fakeStore) ClaimJob(ctx context.Context, jobID int64, startedAt time.Time) (bool, error) {
	return false, nil
}

func (s *fakeStore) JobStatus(ctx context.Context, jobID int64) (core.JobStatus, error) {
	status, ok := s.jobStatus[jobID]
	if !ok {
		return "", core.NewError(core.KindNotFound, "job not found", nil)
	}
	return status, nil
}

func (s *fakeStore) FinishJob(ctx context.Context, jobID int64, status core.JobStatus, errMsg string, stats core.JobStats, completedAt time.Time) error {
	s.jobStatus[jobID] = status
	return nil
}

func (s *fakeStore) RequestCancellation(ctx context.Context, jobID int64) (bool, error) {
	s.cancelRequests = append(s.cancelRequests, jobID)
	if s.cancelOK {
		s.jobStatus[jobID] = core.JobCancelled
	}
	return s.cancelOK, nil
}

func (s *fakeStore) GetJob(ctx context.Context, jobID int64) (core.Job, error) {
	for _, j := range s.createdJobs {
		if j.ID == jobID {
			j.Status = s.jobStatus[jobID]
			return j, nil
		}
	}
	return core.Job{}, core.NewError(core.KindNotFound, "job not found", nil)
}

func (s *fakeStore) InsertExportHistory(ctx context.Context, row core.ExportHistory) error {
	return nil
}

func (s *fakeStore) ExportHistoryRange(ctx context.Context, from, to time.Time) ([]core.ExportHistory, error) {
	return nil, nil
}

func (s *fakeStore) InsertAuditLog(ctx context.Context, row core.AuditLog) error {
	return nil
}

func (s *fakeStore) CheckIdempotency(ctx context.Context, signature string) (int64, bool, error) {
	jobID, found := s.idempotency[signature]
	return jobID, found, nil
}

func (s *fakeStore) StoreIdempotency(ctx context.Context, signature string, jobID int64, ttl time.Duration) error {
	s.idempotency[signature] = jobID
	return nil
}

var _ core.Store = (*fakeStore)(nil)

// fakeBus captures published job-lifecycle events without any transport.
type fakeBus struct {
	started []core.JobStartedEvent
}

func (b *fakeBus) PublishJobStarted(ctx context.Context, evt core.JobStartedEvent) error {
	b.started = append(b.started, evt)
	return nil
}

func (b *fakeBus) PublishJobCompleted(ctx context.Context, evt core.JobCompletedEvent) error {
	return nil
}

func (b *fakeBus) PublishJobFailed(ctx context.Context, evt core.JobFailedEvent) error {
	return nil
}

var _ core.EventBus = (*fakeBus)(nil)
