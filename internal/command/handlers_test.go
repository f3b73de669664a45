package command

import (
	"context"
	"testing"

	"github.com/fakturenn/invoicebridge/internal/core"
)

func TestTriggerAutomationCreatesJobAndPublishesStarted(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	handler := NewTriggerAutomationHandler(store, bus)

	err := handler.Execute(context.Background(), TriggerAutomation{AutomationID: 7, UserID: 1, MaxResults: 20})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(store.createdJobs) != 1 {
		t.Fatalf("expected 1 job created, got %d", len(store.createdJobs))
	}
	if len(bus.started) != 1 {
		t.Fatalf("expected 1 job.started event, got %d", len(bus.started))
	}
	if bus.started[0].JobID != store.createdJobs[0].ID {
		t.Errorf("published JobID = %d, want %d", bus.started[0].JobID, store.createdJobs[0].ID)
	}
	if bus.started[0].MaxResults != 20 {
		t.Errorf("MaxResults = %d, want 20", bus.started[0].MaxResults)
	}
}

func TestTriggerAutomationWithIdempotencyKeyDedupesRetry(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	handler := NewTriggerAutomationHandler(store, bus)
	msg := TriggerAutomation{AutomationID: 7, UserID: 1, MaxResults: 20, IdempotencyKey: "client-retry-1"}

	if err := handler.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute (first): %v", err)
	}
	if err := handler.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute (retry): %v", err)
	}

	if len(store.createdJobs) != 1 {
		t.Fatalf("expected exactly 1 job across both calls, got %d", len(store.createdJobs))
	}
	if len(bus.started) != 1 {
		t.Fatalf("expected exactly 1 job.started event across both calls, got %d", len(bus.started))
	}
}

func TestTriggerAutomationWithoutIdempotencyKeyAlwaysCreatesJob(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	handler := NewTriggerAutomationHandler(store, bus)
	msg := TriggerAutomation{AutomationID: 7, UserID: 1, MaxResults: 20}

	if err := handler.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute (first): %v", err)
	}
	if err := handler.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute (second): %v", err)
	}

	if len(store.createdJobs) != 2 {
		t.Fatalf("expected 2 jobs without an idempotency key, got %d", len(store.createdJobs))
	}
}

func TestTriggerAutomationRejectsMissingAutomationID(t *testing.T) {
	handler := NewTriggerAutomationHandler(newFakeStore(), &fakeBus{})
	err := handler.Execute(context.Background(), TriggerAutomation{})
	if err == nil {
		t.Fatal("expected validation error for a zero automation ID")
	}
}

func TestTriggerAutomationRejectsMalformedFromDate(t *testing.T) {
	handler := NewTriggerAutomationHandler(newFakeStore(), &fakeBus{})
	err := handler.Execute(context.Background(), TriggerAutomation{AutomationID: 1, FromDate: "not-a-date"})
	if err == nil {
		t.Fatal("expected validation error for a malformed from_date")
	}
}

func TestCancelJobRequestsCancellation(t *testing.T) {
	store := newFakeStore()
	store.jobStatus[5] = core.JobRunning
	handler := NewCancelJobHandler(store)

	if err := handler.Execute(context.Background(), CancelJob{JobID: 5}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(store.cancelRequests) != 1 || store.cancelRequests[0] != 5 {
		t.Fatalf("cancelRequests = %v, want [5]", store.cancelRequests)
	}
}

func TestCancelJobFailsWhenStoreRejects(t *testing.T) {
	store := newFakeStore()
	store.cancelOK = false
	handler := NewCancelJobHandler(store)

	err := handler.Execute(context.Background(), CancelJob{JobID: 9})
	if err == nil {
		t.Fatal("expected an error when the job cannot be cancelled")
	}
	if core.KindFromError(err) != core.KindConflict {
		t.Errorf("kind = %v, want KindConflict", core.KindFromError(err))
	}
}
