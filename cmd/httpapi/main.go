// Command httpapi serves the admin REST surface: trigger/cancel a job,
// check its status, and download the export-history XLSX report. It
// shares internal/command's handlers with cmd/automationctl so a
// browser-driven trigger behaves identically to a CLI one.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/fakturenn/invoicebridge/internal/audit"
	"github.com/fakturenn/invoicebridge/internal/bus"
	"github.com/fakturenn/invoicebridge/internal/bus/jobexec"
	"github.com/fakturenn/invoicebridge/internal/command"
	"github.com/fakturenn/invoicebridge/internal/config"
	"github.com/fakturenn/invoicebridge/internal/httpapi"
	"github.com/fakturenn/invoicebridge/internal/httpapi/locale"
	"github.com/fakturenn/invoicebridge/internal/logging"
	bunstore "github.com/fakturenn/invoicebridge/internal/store/bun"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)

	ctx := context.Background()
	sqlDB, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open database failed: %v", err)
	}
	defer sqlDB.Close()

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := bunstore.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}
	store := bunstore.NewStore(db)

	jobBus := jobexec.New(jobexec.Config{})
	eventBus := audit.NewEventBus(bus.NewEventPublisher(jobBus), audit.NewEmitter(audit.Config{Sink: nil}))
	eventBus.Logger = logger

	translator := locale.New()
	deps := httpapi.Dependencies{
		Store:    store,
		Trigger:  command.NewTriggerAutomationHandler(store, eventBus),
		Cancel:   command.NewCancelJobHandler(store),
		Localize: translator.Translate,
	}

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{AppName: "invoicebridge-httpapi"})
	})
	httpapi.RegisterRoutes(srv.Router(), deps)

	addr := fmt.Sprintf("%s:%s", envOr("HOST", "0.0.0.0"), envOr("PORT", "8080"))
	go func() {
		logger.Infof("httpapi listening on %s", addr)
		if err := srv.Serve(addr); err != nil {
			logger.Errorf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down httpapi")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
