package command

import "github.com/fakturenn/invoicebridge/internal/core"

// TriggerAutomation starts one off-schedule (or scheduler-driven) run of
// an automation: a pending Job row plus a job.started event.
type TriggerAutomation struct {
	UserID       int64
	AutomationID int64
	FromDate     string
	MaxResults   int

	// IdempotencyKey, when set, de-duplicates repeat calls (e.g. a client
	// retrying after a timed-out response): the same key for the same
	// automation/from_date/max_results, while the first call's record is
	// live, is a no-op that returns nil: no second job is created and no
	// second job.started event is published.
	IdempotencyKey string
}

func (TriggerAutomation) Type() string { return "automation:trigger" }

func (msg TriggerAutomation) Validate() error {
	if msg.AutomationID == 0 {
		return core.NewError(core.KindValidation, "automation ID is required", nil)
	}
	return nil
}

// CancelJob marks a running job as cancelled; the coordinator observes
// this via Store.JobStatus at its next cancellation checkpoint.
type CancelJob struct {
	UserID int64
	JobID  int64
}

func (CancelJob) Type() string { return "job:cancel" }

func (msg CancelJob) Validate() error {
	if msg.JobID == 0 {
		return core.NewError(core.KindValidation, "job ID is required", nil)
	}
	return nil
}
