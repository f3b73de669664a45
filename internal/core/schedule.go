package core

import (
	"time"

	cron "github.com/robfig/cron/v3"
)

// ValidateSchedule reports whether expr parses as a standard five-field
// cron expression, the same grammar NextRun parses Automation.Schedule
// with.
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	if err != nil {
		return NewError(KindValidation, "invalid cron schedule", err)
	}
	return nil
}

// NextRun returns the next fire time strictly after after, for a schedule
// expression already known to be valid.
func NextRun(expr string, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, NewError(KindValidation, "invalid cron schedule", err)
	}
	return schedule.Next(after), nil
}
