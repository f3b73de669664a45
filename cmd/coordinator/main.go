// Command coordinator is the long-running worker: it wires the Bun
// store, the go-job-backed durable bus, every registered Source Runner
// and Export Handler, and internal/core.Coordinator, then blocks
// consuming job.started events until SIGTERM drains the in-flight job.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/fakturenn/invoicebridge/internal/audit"
	"github.com/fakturenn/invoicebridge/internal/bus"
	"github.com/fakturenn/invoicebridge/internal/bus/jobexec"
	"github.com/fakturenn/invoicebridge/internal/config"
	"github.com/fakturenn/invoicebridge/internal/core"
	"github.com/fakturenn/invoicebridge/internal/handlers/filesystem"
	"github.com/fakturenn/invoicebridge/internal/logging"
	bunstore "github.com/fakturenn/invoicebridge/internal/store/bun"
	"github.com/fakturenn/invoicebridge/internal/template"
)

// drainGrace bounds how long the worker waits for an in-flight job to
// reach a terminal state after SIGTERM before exiting anyway.
const drainGrace = 2 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

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

	sourceRunners := core.NewSourceRunnerRegistry()
	exportHandlers := core.NewExportHandlerRegistry()

	renderer := core.NewTemplateRenderer(template.NewRenderer())
	// The filesystem export handler has no external collaborator and is
	// always available. Accounting/cloud-drive exports and
	// browser/mailbox sources each need a deployment-supplied
	// collaborator (LedgerAPI, DriveAPI, PageExtractor/URLBuilder,
	// MailboxClient) per SPEC_FULL.md's documented-external-collaborator
	// boundary; wire them here once that collaborator exists, e.g.:
	//
	//   exportHandlers.Register(core.ExportCloudDrive, clouddrive.NewHandler(driveAPI, renderer))
	//   sourceRunners.Register(core.SourceProviderA, browser.NewRunner(session, buildURL, extract))
	if err := exportHandlers.Register(core.ExportFilesystem, filesystem.NewHandler(renderer)); err != nil {
		logger.Errorf("register filesystem handler failed: %v", err)
		os.Exit(1)
	}

	jobBus := jobexec.New(jobexec.Config{})
	// The production dispatcher is whatever enqueues onto a real go-job
	// worker pool; absent that infrastructure, this runs deliveries
	// in-process the same way the reference stack's own demo enqueuer
	// does, bounded by a timeout rather than the job's own deadline so a
	// wedged delivery can't leak goroutines forever.
	var inflight sync.WaitGroup
	jobBus.SetDispatcher(jobexec.DispatcherFunc(func(ctx context.Context, msg *job.ExecutionMessage) error {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			deliverCtx, cancel := context.WithTimeout(context.Background(), cfg.Job.Deadline+drainGrace)
			defer cancel()
			if err := jobBus.Deliver(deliverCtx, msg); err != nil {
				logger.Errorf("bus delivery failed: %v", err)
			}
		}()
		return nil
	}))

	eventPublisher := bus.NewEventPublisher(jobBus)
	activityEmitter := audit.NewEmitter(audit.Config{Sink: nil})
	eventBus := audit.NewEventBus(eventPublisher, activityEmitter)
	eventBus.Logger = logger

	coordinator := &core.Coordinator{
		Store:                store,
		SourceRunners:        sourceRunners,
		ExportHandlers:       exportHandlers,
		Template:             renderer,
		Bus:                  eventBus,
		Logger:               logger,
		JobDeadline:          cfg.Job.Deadline,
		MaxConcurrentSources: cfg.Job.SourceConcurrency,
		MaxConcurrentExports: cfg.Job.ExportConcurrency,
	}

	handler := func(ctx context.Context, subject string, payload []byte) (bus.Outcome, error) {
		evt, err := bus.DecodeJobStarted(payload)
		if err != nil {
			return bus.Nak, err
		}
		if err := coordinator.HandleJobStarted(ctx, evt); err != nil {
			return bus.Nak, err
		}
		return bus.Ack, nil
	}

	if err := jobBus.EnsureStream(ctx, bus.StreamJobs,
		[]string{bus.SubjectJobStarted, bus.SubjectJobCompleted, bus.SubjectJobFailed},
		bus.DefaultJobsRetention); err != nil {
		logger.Errorf("ensure jobs stream failed: %v", err)
		os.Exit(1)
	}
	if err := jobBus.SubscribeDurable(ctx, bus.StreamJobs, "coordinator", []string{bus.SubjectJobStarted}, handler); err != nil {
		logger.Errorf("subscribe to job.started failed: %v", err)
		os.Exit(1)
	}

	logger.Infof("coordinator started, database=%s deadline=%s", cfg.Database.DSN, cfg.Job.Deadline)
	<-ctx.Done()
	logger.Infof("signal received, draining for up to %s", drainGrace)
	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainGrace):
	}
	logger.Infof("coordinator exiting")
}
