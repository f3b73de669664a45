package command

import (
	"context"
	"sync"
	"time"

	gcmd "github.com/goliatone/go-command"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// SchedulerCommand wires the cron-driven automation sweep for CLI/Cron
// execution: on each tick it walks every active automation and triggers
// the ones whose own Automation.Schedule has come due since it was last
// checked.
type SchedulerCommand struct {
	store   core.Store
	trigger *TriggerAutomationHandler
	now     func() time.Time

	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig

	mu      sync.Mutex
	lastRun map[int64]time.Time
}

// NewSchedulerCommand creates a scheduler CLI/Cron command. The handler
// ticks on cronConfig.Expression (default every minute); each tick is
// cheap, since it only parses schedules and compares times, never
// blocking on a source fetch.
func NewSchedulerCommand(store core.Store, trigger *TriggerAutomationHandler) *SchedulerCommand {
	return &SchedulerCommand{
		store:   store,
		trigger: trigger,
		now:     time.Now,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"automations-sweep"},
			Description: "Trigger automations whose schedule has come due",
			Group:       "automations",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "* * * * *"},
		lastRun:    make(map[int64]time.Time),
	}
}

// CronHandler runs one sweep.
func (c *SchedulerCommand) CronHandler() func() error {
	return func() error {
		_, err := c.run(context.Background())
		return err
	}
}

// CronOptions returns cron configuration.
func (c *SchedulerCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler for a one-shot manual sweep.
func (c *SchedulerCommand) CLIHandler() any {
	return &schedulerCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *SchedulerCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

func (c *SchedulerCommand) run(ctx context.Context) (int, error) {
	if c == nil || c.store == nil || c.trigger == nil {
		return 0, core.NewError(core.KindInternal, "scheduler command is not configured", nil)
	}

	automations, err := c.store.ActiveAutomations(ctx)
	if err != nil {
		return 0, core.NewError(core.KindInternal, "load active automations failed", err)
	}

	now := c.now()
	triggered := 0
	for _, automation := range automations {
		due, err := c.isDue(automation, now)
		if err != nil {
			// A malformed schedule should not block the rest of the sweep.
			continue
		}
		if !due {
			continue
		}
		if err := c.trigger.Execute(ctx, TriggerAutomation{
			UserID:       automation.UserID,
			AutomationID: automation.ID,
		}); err != nil {
			return triggered, err
		}
		triggered++
	}
	return triggered, nil
}

// isDue reports whether automation.Schedule's next fire time at-or-before
// now has not yet been seen for this automation, and records now as the
// new checkpoint when it has.
func (c *SchedulerCommand) isDue(automation core.Automation, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, seen := c.lastRun[automation.ID]
	if !seen {
		// First sweep after process start: treat the last minute as the
		// baseline so a schedule due exactly at startup still fires once.
		last = now.Add(-time.Minute)
	}
	next, err := core.NextRun(automation.Schedule, last)
	if err != nil {
		return false, err
	}
	if next.After(now) {
		return false, nil
	}
	c.lastRun[automation.ID] = now
	return true, nil
}

type schedulerCLI struct {
	cmd *SchedulerCommand
}

func (c *schedulerCLI) Run() error {
	if c == nil || c.cmd == nil {
		return core.NewError(core.KindInternal, "scheduler command is required", nil)
	}
	_, err := c.cmd.run(context.Background())
	return err
}
