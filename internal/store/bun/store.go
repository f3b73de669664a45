package bun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Store is the Bun-backed core.Store.
type Store struct {
	DB  *bun.DB
	Now func() time.Time
}

// NewStore creates a Bun-backed Store.
func NewStore(db *bun.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

var _ core.Store = (*Store)(nil)

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GetAutomation fetches an automation, enforcing tenancy via scope.UserID.
func (s *Store) GetAutomation(ctx context.Context, scope core.Scope, automationID int64) (core.Automation, error) {
	model := new(automationModel)
	err := s.DB.NewSelect().Model(model).
		Where("id = ?", automationID).
		Where("user_id = ?", scope.UserID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Automation{}, core.NewError(core.KindTenancyViolation,
				fmt.Sprintf("automation %d not found for this tenant", automationID), nil)
		}
		return core.Automation{}, err
	}
	return model.toCore(), nil
}

// ActiveAutomations returns every automation with its schedule enabled,
// for the coordinator binary's cron scheduler to walk.
func (s *Store) ActiveAutomations(ctx context.Context) ([]core.Automation, error) {
	models := make([]automationModel, 0)
	err := s.DB.NewSelect().Model(&models).
		Where("active = ?", true).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	automations := make([]core.Automation, 0, len(models))
	for _, m := range models {
		automations = append(automations, m.toCore())
	}
	return automations, nil
}

// ActiveSources returns the active sources owned by an automation.
func (s *Store) ActiveSources(ctx context.Context, automationID int64) ([]core.Source, error) {
	models := make([]sourceModel, 0)
	err := s.DB.NewSelect().Model(&models).
		Where("automation_id = ?", automationID).
		Where("active = ?", true).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]core.Source, 0, len(models))
	for _, m := range models {
		src, err := m.toCore()
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ActiveExports returns the active exports owned by an automation.
func (s *Store) ActiveExports(ctx context.Context, automationID int64) ([]core.Export, error) {
	models := make([]exportModel, 0)
	err := s.DB.NewSelect().Model(&models).
		Where("automation_id = ?", automationID).
		Where("active = ?", true).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	exports := make([]core.Export, 0, len(models))
	for _, m := range models {
		exp, err := m.toCore()
		if err != nil {
			return nil, err
		}
		exports = append(exports, exp)
	}
	return exports, nil
}

// Mappings returns the source-to-export routing rows for an automation's
// sources, joined through the sources table since mappings carry no
// automation_id of their own.
func (s *Store) Mappings(ctx context.Context, automationID int64) ([]core.SourceExportMapping, error) {
	models := make([]mappingModel, 0)
	err := s.DB.NewSelect().Model(&models).
		Join("JOIN sources ON sources.id = sem.source_id").
		Where("sources.automation_id = ?", automationID).
		Order("sem.priority ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	mappings := make([]core.SourceExportMapping, 0, len(models))
	for _, m := range models {
		sm, err := m.toCore()
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, sm)
	}
	return mappings, nil
}

// CreateJob inserts a new pending job for an automation. The coordinator
// picks it up via ClaimJob once its JobStartedEvent is delivered.
func (s *Store) CreateJob(ctx context.Context, automationID int64, fromDate *time.Time, maxResults int) (core.Job, error) {
	model := &jobModel{
		AutomationID: automationID,
		Status:       string(core.JobPending),
		FromDate:     fromDate,
		MaxResults:   maxResults,
		CreatedAt:    s.now(),
	}
	if _, err := s.DB.NewInsert().Model(model).Exec(ctx); err != nil {
		return core.Job{}, err
	}
	return model.toCore(), nil
}

// ClaimJob performs the CAS-style pending -> running transition in a single
// UPDATE ... WHERE status = 'pending' statement: the coordinator treats a
// zero-rows-affected result as "already claimed" rather than racing a
// read-then-write.
func (s *Store) ClaimJob(ctx context.Context, jobID int64, startedAt time.Time) (bool, error) {
	res, err := s.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", string(core.JobRunning)).
		Set("started_at = ?", startedAt).
		Where("id = ?", jobID).
		Where("status = ?", string(core.JobPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// JobStatus returns a job's current status.
func (s *Store) JobStatus(ctx context.Context, jobID int64) (core.JobStatus, error) {
	model := new(jobModel)
	err := s.DB.NewSelect().Model(model).Column("status").Where("id = ?", jobID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.NewError(core.KindNotFound, fmt.Sprintf("job %d not found", jobID), nil)
		}
		return "", err
	}
	return core.JobStatus(model.Status), nil
}

// GetJob returns the full job row, used by status/report endpoints that
// need more than the bare state JobStatus returns.
func (s *Store) GetJob(ctx context.Context, jobID int64) (core.Job, error) {
	model := new(jobModel)
	err := s.DB.NewSelect().Model(model).Where("id = ?", jobID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Job{}, core.NewError(core.KindNotFound, fmt.Sprintf("job %d not found", jobID), nil)
		}
		return core.Job{}, err
	}
	return model.toCore(), nil
}

// FinishJob records the terminal state of a job (completed, failed, or
// cancelled) along with its final stats tally. The update is guarded by
// status = running so a late finalize call (e.g. a pipeline goroutine
// that outlives its own deadline, or a redelivered event) can never
// clobber a terminal row someone else already wrote; it affects zero
// rows instead and returns a KindNotFound error.
func (s *Store) FinishJob(ctx context.Context, jobID int64, status core.JobStatus, errMsg string, stats core.JobStats, completedAt time.Time) error {
	res, err := s.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", string(status)).
		Set("error_message = ?", errMsg).
		Set("completed_at = ?", completedAt).
		Set("sources_executed = ?", stats.SourcesExecuted).
		Set("sources_failed = ?", stats.SourcesFailed).
		Set("invoices_extracted = ?", stats.InvoicesExtracted).
		Set("exports_completed = ?", stats.ExportsCompleted).
		Set("exports_failed = ?", stats.ExportsFailed).
		Set("duration_seconds = ?", stats.DurationSeconds).
		Where("id = ?", jobID).
		Where("status = ?", string(core.JobRunning)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewError(core.KindNotFound, fmt.Sprintf("job %d not found or not running", jobID), nil)
	}
	return nil
}

// RequestCancellation flags a pending or running job as cancelled. The
// coordinator observes it at its next checkCancelled checkpoint and
// finalizes the job itself; this only flips the flag.
func (s *Store) RequestCancellation(ctx context.Context, jobID int64) (bool, error) {
	res, err := s.DB.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", string(core.JobCancelled)).
		Where("id = ?", jobID).
		Where("status IN (?, ?)", string(core.JobPending), string(core.JobRunning)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// InsertExportHistory appends one export-attempt audit row. History rows
// are never updated once written.
func (s *Store) InsertExportHistory(ctx context.Context, row core.ExportHistory) error {
	if row.ExportedAt.IsZero() {
		row.ExportedAt = s.now()
	}
	model, err := modelFromExportHistory(row)
	if err != nil {
		return err
	}
	_, err = s.DB.NewInsert().Model(&model).Exec(ctx)
	return err
}

// ExportHistoryRange lists export-history rows exported within
// [from, to), newest first, for the export-history report.
func (s *Store) ExportHistoryRange(ctx context.Context, from, to time.Time) ([]core.ExportHistory, error) {
	var models []exportHistoryModel
	err := s.DB.NewSelect().Model(&models).
		Where("exported_at >= ?", from).
		Where("exported_at < ?", to).
		OrderExpr("exported_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]core.ExportHistory, 0, len(models))
	for _, m := range models {
		row, err := m.toCore()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// InsertAuditLog appends one administrative/system action row.
func (s *Store) InsertAuditLog(ctx context.Context, row core.AuditLog) error {
	if row.Timestamp.IsZero() {
		row.Timestamp = s.now()
	}
	model, err := modelFromAuditLog(row)
	if err != nil {
		return err
	}
	_, err = s.DB.NewInsert().Model(&model).Exec(ctx)
	return err
}

// CheckIdempotency looks up a trigger signature. A record past its
// ExpiresAt is reported as not found, mirroring a TTL cache even though
// the row itself is reaped lazily on the next StoreIdempotency for the
// same signature rather than deleted here.
func (s *Store) CheckIdempotency(ctx context.Context, signature string) (int64, bool, error) {
	model := new(idempotencyRecordModel)
	err := s.DB.NewSelect().Model(model).Where("signature = ?", signature).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !model.ExpiresAt.IsZero() && s.now().After(model.ExpiresAt) {
		return 0, false, nil
	}
	return model.JobID, true, nil
}

// StoreIdempotency records a trigger signature against the job it
// created. A zero ttl means the record never expires. An existing record
// for the same signature is overwritten, so when two identical triggers
// both pass CheckIdempotency before either stores its record, each
// creates a job and the later write wins the record.
func (s *Store) StoreIdempotency(ctx context.Context, signature string, jobID int64, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	model := &idempotencyRecordModel{Signature: signature, JobID: jobID, ExpiresAt: expiresAt}
	_, err := s.DB.NewInsert().Model(model).
		On("CONFLICT (signature) DO UPDATE").
		Set("job_id = EXCLUDED.job_id").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}
