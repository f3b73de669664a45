// Command automationctl is the operator CLI: trigger a single automation
// run, cancel an in-flight job, or run one cron sweep on demand. It
// shares internal/command's handlers with the coordinator's own
// scheduler tick, so a manual invocation behaves identically to the
// automated one.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/fakturenn/invoicebridge/internal/audit"
	"github.com/fakturenn/invoicebridge/internal/bus"
	"github.com/fakturenn/invoicebridge/internal/bus/jobexec"
	"github.com/fakturenn/invoicebridge/internal/command"
	"github.com/fakturenn/invoicebridge/internal/config"
	"github.com/fakturenn/invoicebridge/internal/logging"
	bunstore "github.com/fakturenn/invoicebridge/internal/store/bun"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.NewJSON(os.Stderr, slog.LevelInfo)

	ctx := context.Background()
	sqlDB, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		logger.Errorf("open database failed: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := bunstore.Migrate(ctx, db); err != nil {
		logger.Errorf("migrate failed: %v", err)
		os.Exit(1)
	}
	store := bunstore.NewStore(db)

	// automationctl never delivers jobs itself; publishing job.started
	// only records the event so the coordinator (or its own dispatcher,
	// if one happens to be running in this same process) can pick it up.
	jobBus := jobexec.New(jobexec.Config{})
	eventBus := audit.NewEventBus(bus.NewEventPublisher(jobBus), audit.NewEmitter(audit.Config{Sink: nil}))
	eventBus.Logger = logger

	trigger := command.NewTriggerAutomationHandler(store, eventBus)

	var exitErr error
	switch os.Args[1] {
	case "trigger":
		exitErr = runTrigger(ctx, trigger, os.Args[2:])
	case "cancel":
		exitErr = runCancel(ctx, command.NewCancelJobHandler(store), os.Args[2:])
	case "sweep":
		exitErr = runSweep(ctx, command.NewSchedulerCommand(store, trigger))
	default:
		usage()
		os.Exit(2)
	}

	if exitErr != nil {
		logger.Errorf("%s failed: %v", os.Args[1], exitErr)
		os.Exit(1)
	}
}

func runTrigger(ctx context.Context, handler *command.TriggerAutomationHandler, args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	userID := fs.Int64("user", 0, "user id the automation belongs to")
	automationID := fs.Int64("automation", 0, "automation id to trigger")
	fromDate := fs.String("from-date", "", "override the lookback start date (YYYY-MM-DD)")
	maxResults := fs.Int("max-results", 0, "override the per-run invoice cap (0 means automation default)")
	idempotencyKey := fs.String("idempotency-key", "", "dedupe repeat invocations sharing this key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *automationID == 0 {
		return fmt.Errorf("trigger: -automation is required")
	}

	return handler.Execute(ctx, command.TriggerAutomation{
		UserID:         *userID,
		AutomationID:   *automationID,
		FromDate:       *fromDate,
		MaxResults:     *maxResults,
		IdempotencyKey: *idempotencyKey,
	})
}

func runCancel(ctx context.Context, handler *command.CancelJobHandler, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	userID := fs.Int64("user", 0, "user id requesting the cancellation")
	jobID := fs.Int64("job", 0, "job id to cancel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == 0 {
		return fmt.Errorf("cancel: -job is required")
	}

	return handler.Execute(ctx, command.CancelJob{UserID: *userID, JobID: *jobID})
}

func runSweep(ctx context.Context, scheduler *command.SchedulerCommand) error {
	runner, ok := scheduler.CLIHandler().(interface{ Run() error })
	if !ok {
		return fmt.Errorf("sweep: scheduler CLI handler has no Run method")
	}
	return runner.Run()
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: automationctl <trigger|cancel|sweep> [flags]

  trigger -automation ID [-user ID] [-from-date DATE] [-max-results N] [-idempotency-key KEY]
  cancel  -job ID [-user ID]
  sweep`)
}
