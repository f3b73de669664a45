// Package core defines the domain vocabulary shared by the coordinator,
// persistence layer, bus, and handler framework: automations, sources,
// exports, jobs, invoices and the append-only export history/audit trail.
package core

import "time"

// Scope identifies the tenant that owns a resource. Store.GetAutomation
// filters by Scope.UserID; the store's other lookups take no Scope.
type Scope struct {
	UserID int64
}

// Role enumerates user roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the tenant-owning principal.
type User struct {
	ID        int64
	Username  string
	Email     string
	Role      Role
	Active    bool
	Language  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Automation binds a set of sources and exports under one schedule.
type Automation struct {
	ID            int64
	UserID        int64
	Name          string
	Description   string
	Schedule      string
	FromDateRule  string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceType enumerates the provider-fetch adapters known to the registry.
type SourceType string

const (
	SourceProviderA SourceType = "provider-a"
	SourceProviderB SourceType = "provider-b"
	SourceMailbox   SourceType = "mailbox"
)

// Source is a named provider-fetch definition owned by an automation.
type Source struct {
	ID               int64
	AutomationID     int64
	Name             string
	Type             SourceType
	ExtractionParams map[string]any
	MaxResults       int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExportType enumerates the delivery-target adapters known to the registry.
type ExportType string

const (
	ExportFilesystem ExportType = "filesystem"
	ExportCloudDrive ExportType = "cloud-drive"
	ExportAccounting ExportType = "accounting"
)

// Export is a named delivery-target definition owned by an automation.
type Export struct {
	ID            int64
	AutomationID  int64
	Name          string
	Type          ExportType
	Configuration map[string]any
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceExportMapping routes invoices produced by a Source to an Export.
type SourceExportMapping struct {
	ID         int64
	SourceID   int64
	ExportID   int64
	Priority   int
	Conditions map[string]any
	CreatedAt  time.Time
}

// JobStatus is the monotone state of a Job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobStats tallies the outcome of a job's run for reporting and metrics.
type JobStats struct {
	SourcesExecuted   int     `json:"sources_executed"`
	SourcesFailed     int     `json:"sources_failed"`
	InvoicesExtracted int     `json:"invoices_extracted"`
	ExportsCompleted  int     `json:"exports_completed"`
	ExportsFailed     int     `json:"exports_failed"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// Job is one concrete run of an automation; the unit of the coordinator's
// state machine.
type Job struct {
	ID           int64
	AutomationID int64
	Status       JobStatus
	FromDate     *time.Time
	MaxResults   int
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Stats        JobStats
	CreatedAt    time.Time
}

// ExportHistoryStatus is the tri-valued outcome of one export handler call.
type ExportHistoryStatus string

const (
	ExportSuccess          ExportHistoryStatus = "success"
	ExportFailed           ExportHistoryStatus = "failed"
	ExportDuplicateSkipped ExportHistoryStatus = "duplicate_skipped"
)

// ExportHistory is the append-only per-attempt audit row. Exactly one row
// is written per (job, export, invoice) handler invocation.
type ExportHistory struct {
	ID                 int64
	JobID               int64
	ExportID            *int64
	ExportType          ExportType
	Status              ExportHistoryStatus
	ExportedAt          time.Time
	ErrorMessage        string
	Context             map[string]any
	ExternalReference   string
}

// AuditLog is an append-only record of administrative or system actions.
type AuditLog struct {
	ID           int64
	UserID       *int64
	Action       string
	ResourceType string
	ResourceID   int64
	Timestamp    time.Time
	IP           string
	Details      map[string]any
}

// Invoice is produced in-memory by a Source Runner and consumed by
// Exports; it is never persisted as a row of its own.
type Invoice struct {
	Date       string
	InvoiceID  string
	AmountEUR  *float64
	AmountText string
	FilePath   string
	DownloadURL string
	Source     string
}

// RenderContext is the map of template variables derived from an Invoice,
// used to render export labels and destination paths.
type RenderContext struct {
	InvoiceID string
	Date      string
	AmountEUR float64
	Month     string
	Year      string
	Quarter   string
	MonthName string
	Source    string
	Filename  string
}
