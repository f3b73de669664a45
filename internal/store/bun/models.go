// Package bun is the Bun-backed implementation of core.Store: one
// bun.BaseModel per entity plus conversion helpers to and from the core
// domain types, mirroring the original schema's tables and check
// constraints.
package bun

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/fakturenn/invoicebridge/internal/core"
)

type userModel struct {
	bun.BaseModel `bun:"table:users,alias:users"`

	ID        int64     `bun:",pk,autoincrement"`
	Username  string    `bun:",notnull,unique"`
	Email     string    `bun:",notnull,unique"`
	Role      string    `bun:",notnull"`
	Active    bool      `bun:",notnull,default:true"`
	Language  string    `bun:",notnull"`
	Timezone  string    `bun:",notnull"`
	CreatedAt time.Time `bun:",notnull"`
	UpdatedAt time.Time `bun:",notnull"`
}

func (m userModel) toCore() core.User {
	return core.User{
		ID: m.ID, Username: m.Username, Email: m.Email,
		Role: core.Role(m.Role), Active: m.Active,
		Language: m.Language, Timezone: m.Timezone,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

// automationModel has a unique (user_id, name) constraint, preserved from
// the original schema so two automations for one user can't share a name.
type automationModel struct {
	bun.BaseModel `bun:"table:automations,alias:automations"`

	ID           int64     `bun:",pk,autoincrement"`
	UserID       int64     `bun:"user_id,notnull"`
	Name         string    `bun:",notnull"`
	Description  string    `bun:""`
	Schedule     string    `bun:",notnull"`
	FromDateRule string    `bun:"from_date_rule"`
	Active       bool      `bun:",notnull,default:true"`
	CreatedAt    time.Time `bun:",notnull"`
	UpdatedAt    time.Time `bun:",notnull"`
}

func (m automationModel) toCore() core.Automation {
	return core.Automation{
		ID: m.ID, UserID: m.UserID, Name: m.Name, Description: m.Description,
		Schedule: m.Schedule, FromDateRule: m.FromDateRule, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

// sourceModel's Type column carries a CHECK constraint (applied via
// migration DDL, not bun struct tags) restricting it to the registered
// core.SourceType values.
type sourceModel struct {
	bun.BaseModel `bun:"table:sources,alias:sources"`

	ID               int64     `bun:",pk,autoincrement"`
	AutomationID     int64     `bun:"automation_id,notnull"`
	Name             string    `bun:",notnull"`
	Type             string    `bun:",notnull"`
	ExtractionParams []byte    `bun:"extraction_params"`
	MaxResults       int       `bun:"max_results"`
	Active           bool      `bun:",notnull,default:true"`
	CreatedAt        time.Time `bun:",notnull"`
	UpdatedAt        time.Time `bun:",notnull"`
}

func (m sourceModel) toCore() (core.Source, error) {
	s := core.Source{
		ID: m.ID, AutomationID: m.AutomationID, Name: m.Name,
		Type: core.SourceType(m.Type), MaxResults: m.MaxResults, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
	if len(m.ExtractionParams) > 0 {
		if err := json.Unmarshal(m.ExtractionParams, &s.ExtractionParams); err != nil {
			return core.Source{}, err
		}
	}
	return s, nil
}

// exportModel's Type column mirrors sourceModel's CHECK-constraint pattern.
type exportModel struct {
	bun.BaseModel `bun:"table:exports,alias:exports"`

	ID            int64     `bun:",pk,autoincrement"`
	AutomationID  int64     `bun:"automation_id,notnull"`
	Name          string    `bun:",notnull"`
	Type          string    `bun:",notnull"`
	Configuration []byte    `bun:""`
	Active        bool      `bun:",notnull,default:true"`
	CreatedAt     time.Time `bun:",notnull"`
	UpdatedAt     time.Time `bun:",notnull"`
}

func (m exportModel) toCore() (core.Export, error) {
	e := core.Export{
		ID: m.ID, AutomationID: m.AutomationID, Name: m.Name,
		Type: core.ExportType(m.Type), Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
	if len(m.Configuration) > 0 {
		if err := json.Unmarshal(m.Configuration, &e.Configuration); err != nil {
			return core.Export{}, err
		}
	}
	return e, nil
}

// mappingModel carries a unique (source_id, export_id) constraint: a
// source routes to a given export at most once per automation.
type mappingModel struct {
	bun.BaseModel `bun:"table:source_export_mappings,alias:sem"`

	ID         int64     `bun:",pk,autoincrement"`
	SourceID   int64     `bun:"source_id,notnull"`
	ExportID   int64     `bun:"export_id,notnull"`
	Priority   int       `bun:",notnull,default:0"`
	Conditions []byte    `bun:""`
	CreatedAt  time.Time `bun:",notnull"`
}

func (m mappingModel) toCore() (core.SourceExportMapping, error) {
	sm := core.SourceExportMapping{
		ID: m.ID, SourceID: m.SourceID, ExportID: m.ExportID,
		Priority: m.Priority, CreatedAt: m.CreatedAt,
	}
	if len(m.Conditions) > 0 {
		if err := json.Unmarshal(m.Conditions, &sm.Conditions); err != nil {
			return core.SourceExportMapping{}, err
		}
	}
	return sm, nil
}

// jobModel's Status column is restricted, via migration DDL, to the values
// named by core.JobStatus.
type jobModel struct {
	bun.BaseModel `bun:"table:jobs,alias:jobs"`

	ID                int64      `bun:",pk,autoincrement"`
	AutomationID      int64      `bun:"automation_id,notnull"`
	Status            string     `bun:",notnull"`
	FromDate          *time.Time `bun:"from_date"`
	MaxResults        int        `bun:"max_results"`
	StartedAt         *time.Time `bun:"started_at"`
	CompletedAt       *time.Time `bun:"completed_at"`
	ErrorMessage      string     `bun:"error_message"`
	SourcesExecuted   int        `bun:"sources_executed"`
	SourcesFailed     int        `bun:"sources_failed"`
	InvoicesExtracted int        `bun:"invoices_extracted"`
	ExportsCompleted  int        `bun:"exports_completed"`
	ExportsFailed     int        `bun:"exports_failed"`
	DurationSeconds   float64    `bun:"duration_seconds"`
	CreatedAt         time.Time  `bun:",notnull"`
}

func (m jobModel) toCore() core.Job {
	return core.Job{
		ID: m.ID, AutomationID: m.AutomationID, Status: core.JobStatus(m.Status),
		FromDate: m.FromDate, MaxResults: m.MaxResults,
		StartedAt: m.StartedAt, CompletedAt: m.CompletedAt,
		ErrorMessage: m.ErrorMessage,
		Stats: core.JobStats{
			SourcesExecuted: m.SourcesExecuted, SourcesFailed: m.SourcesFailed,
			InvoicesExtracted: m.InvoicesExtracted,
			ExportsCompleted:  m.ExportsCompleted, ExportsFailed: m.ExportsFailed,
			DurationSeconds: m.DurationSeconds,
		},
		CreatedAt: m.CreatedAt,
	}
}

// exportHistoryModel is append-only: rows are inserted, never updated.
// ExportID uses ON DELETE SET NULL semantics (enforced by the migration's
// foreign key, not by bun) so a deleted export definition keeps its history.
type exportHistoryModel struct {
	bun.BaseModel `bun:"table:export_history,alias:export_history"`

	ID                int64     `bun:",pk,autoincrement"`
	JobID             int64     `bun:"job_id,notnull"`
	ExportID          *int64    `bun:"export_id"`
	ExportType        string    `bun:"export_type,notnull"`
	Status            string    `bun:",notnull"`
	ExportedAt        time.Time `bun:"exported_at,notnull"`
	ErrorMessage      string    `bun:"error_message"`
	Context           []byte    `bun:""`
	ExternalReference string    `bun:"external_reference"`
}

func modelFromExportHistory(row core.ExportHistory) (exportHistoryModel, error) {
	var ctx []byte
	if len(row.Context) > 0 {
		encoded, err := json.Marshal(row.Context)
		if err != nil {
			return exportHistoryModel{}, err
		}
		ctx = encoded
	}
	return exportHistoryModel{
		ID: row.ID, JobID: row.JobID, ExportID: row.ExportID,
		ExportType: string(row.ExportType), Status: string(row.Status),
		ExportedAt: row.ExportedAt, ErrorMessage: row.ErrorMessage,
		Context: ctx, ExternalReference: row.ExternalReference,
	}, nil
}

func (m exportHistoryModel) toCore() (core.ExportHistory, error) {
	var decoded map[string]any
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, &decoded); err != nil {
			return core.ExportHistory{}, err
		}
	}
	return core.ExportHistory{
		ID: m.ID, JobID: m.JobID, ExportID: m.ExportID,
		ExportType: core.ExportType(m.ExportType), Status: core.ExportHistoryStatus(m.Status),
		ExportedAt: m.ExportedAt, ErrorMessage: m.ErrorMessage,
		Context: decoded, ExternalReference: m.ExternalReference,
	}, nil
}

// auditLogModel's UserID uses ON DELETE SET NULL semantics at the migration
// level, so audit history survives account deletion.
type auditLogModel struct {
	bun.BaseModel `bun:"table:audit_log,alias:audit_log"`

	ID           int64     `bun:",pk,autoincrement"`
	UserID       *int64    `bun:"user_id"`
	Action       string    `bun:",notnull"`
	ResourceType string    `bun:"resource_type,notnull"`
	ResourceID   int64     `bun:"resource_id"`
	Timestamp    time.Time `bun:",notnull"`
	IP           string    `bun:""`
	Details      []byte    `bun:""`
}

func modelFromAuditLog(row core.AuditLog) (auditLogModel, error) {
	var details []byte
	if len(row.Details) > 0 {
		encoded, err := json.Marshal(row.Details)
		if err != nil {
			return auditLogModel{}, err
		}
		details = encoded
	}
	return auditLogModel{
		ID: row.ID, UserID: row.UserID, Action: row.Action,
		ResourceType: row.ResourceType, ResourceID: row.ResourceID,
		Timestamp: row.Timestamp, IP: row.IP, Details: details,
	}, nil
}

// idempotencyRecordModel stores one trigger signature per row so a
// repeated POST /automations/{id}/trigger with the same idempotency key
// is a no-op instead of creating a second Job. Rows past
// ExpiresAt are treated as absent by the store, not deleted eagerly.
type idempotencyRecordModel struct {
	bun.BaseModel `bun:"table:idempotency_records,alias:idempotency_records"`

	Signature string    `bun:",pk"`
	JobID     int64     `bun:"job_id,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// AllModels lists every model the migration/schema bootstrap registers.
func AllModels() []any {
	return []any{
		(*userModel)(nil),
		(*automationModel)(nil),
		(*sourceModel)(nil),
		(*exportModel)(nil),
		(*mappingModel)(nil),
		(*jobModel)(nil),
		(*exportHistoryModel)(nil),
		(*auditLogModel)(nil),
		(*idempotencyRecordModel)(nil),
	}
}
