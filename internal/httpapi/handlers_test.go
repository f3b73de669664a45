package httpapi

import (
	"strings"
	"testing"
	"time"

	"github.com/fakturenn/invoicebridge/internal/command"
	"github.com/fakturenn/invoicebridge/internal/core"
)

func newTestDependencies(store *fakeStore) Dependencies {
	return Dependencies{
		Store:   store,
		Trigger: command.NewTriggerAutomationHandler(store, noopEventBus{}),
		Cancel:  command.NewCancelJobHandler(store),
		Localize: func(locale, key string) string {
			return key
		},
		Now: func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
	}
}

func TestTriggerAutomationAccepted(t *testing.T) {
	store := newFakeStore()
	deps := newTestDependencies(store)

	body := `{"user_id":1,"max_results":10}`
	ctx := newTestContext("POST", map[string]string{"id": "7"}, nil, []byte(body))

	if err := deps.TriggerAutomation(ctx); err != nil {
		t.Fatalf("trigger automation: %v", err)
	}
	if ctx.status != 202 {
		t.Fatalf("expected 202, got %d", ctx.status)
	}
	if len(store.triggers) != 1 || store.triggers[0] != 7 {
		t.Fatalf("expected automation 7 to be triggered, got %v", store.triggers)
	}
}

func TestTriggerAutomationRejectsMissingID(t *testing.T) {
	store := newFakeStore()
	deps := newTestDependencies(store)

	ctx := newTestContext("POST", nil, nil, nil)
	if err := deps.TriggerAutomation(ctx); err != nil {
		t.Fatalf("trigger automation: %v", err)
	}
	if ctx.status != 400 {
		t.Fatalf("expected 400, got %d", ctx.status)
	}
}

func TestCancelJobSucceeds(t *testing.T) {
	store := newFakeStore()
	store.jobs[3] = core.Job{ID: 3, Status: core.JobRunning}
	deps := newTestDependencies(store)

	ctx := newTestContext("POST", map[string]string{"id": "3"}, nil, []byte(`{"user_id":1}`))
	if err := deps.CancelJob(ctx); err != nil {
		t.Fatalf("cancel job: %v", err)
	}
	if ctx.status != 200 {
		t.Fatalf("expected 200, got %d", ctx.status)
	}
	if len(store.cancels) != 1 || store.cancels[0] != 3 {
		t.Fatalf("expected job 3 to be cancelled, got %v", store.cancels)
	}
}

func TestCancelJobMissingIDRejected(t *testing.T) {
	store := newFakeStore()
	deps := newTestDependencies(store)

	ctx := newTestContext("POST", map[string]string{"id": "not-a-number"}, nil, nil)
	if err := deps.CancelJob(ctx); err != nil {
		t.Fatalf("cancel job: %v", err)
	}
	if ctx.status != 400 {
		t.Fatalf("expected 400, got %d", ctx.status)
	}
}

func TestJobStatusFound(t *testing.T) {
	store := newFakeStore()
	store.jobs[5] = core.Job{ID: 5, Status: core.JobPending}
	deps := newTestDependencies(store)

	ctx := newTestContext("GET", map[string]string{"id": "5"}, nil, nil)
	if err := deps.JobStatus(ctx); err != nil {
		t.Fatalf("job status: %v", err)
	}
	if ctx.status != 200 {
		t.Fatalf("expected 200, got %d", ctx.status)
	}
	if !strings.Contains(ctx.recorder.Body.String(), `"ID":5`) {
		t.Fatalf("expected job id in body, got %q", ctx.recorder.Body.String())
	}
}

func TestJobStatusNotFound(t *testing.T) {
	store := newFakeStore()
	deps := newTestDependencies(store)

	ctx := newTestContext("GET", map[string]string{"id": "999"}, nil, nil)
	if err := deps.JobStatus(ctx); err != nil {
		t.Fatalf("job status: %v", err)
	}
	if ctx.status != 404 {
		t.Fatalf("expected 404, got %d", ctx.status)
	}
}
