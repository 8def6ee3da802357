package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"agora/contexts/platform-ops/message-ledger/adapters/memory"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

var now = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

type staticClock struct{ at time.Time }

func (c staticClock) Now() time.Time { return c.at }

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, ports.EventEnvelope) error {
	p.calls++
	return errors.New("broker down")
}

func registerPending(t *testing.T, store *memory.Store, messageID string) entities.ProcessingRecord {
	t.Helper()
	result, err := RegisterMessageUseCase{
		Repository:  store,
		IDGenerator: store,
		Clock:       staticClock{at: now},
		MaxAttempts: 3,
	}.Execute(context.Background(), ports.InboundMessage{
		TenantID:    "tenant-a",
		MessageID:   messageID,
		MessageType: "notes.post",
		SourceTopic: "notes.commands",
		Payload:     []byte(`{"text":"` + messageID + `"}`),
	})
	if err != nil {
		t.Fatalf("register %s: %v", messageID, err)
	}
	return result.Record
}

func TestRegisterIsIdempotentPerTenant(t *testing.T) {
	store := memory.NewStore(nil)
	first := registerPending(t, store, "m-1")
	second := registerPending(t, store, "m-1")
	if first.ID != second.ID {
		t.Fatalf("expected the stored record on re-registration, got %s and %s", first.ID, second.ID)
	}
	if first.MaxAttempts != 3 || first.ContentHash == "" {
		t.Fatalf("expected max attempts and content hash to be set, got %+v", first)
	}
}

func TestRegisterRejectsMissingIdentity(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := RegisterMessageUseCase{Repository: store, IDGenerator: store}.Execute(context.Background(), ports.InboundMessage{
		MessageID:   "m-1",
		MessageType: "notes.post",
	})
	if !errors.Is(err, domainerrors.ErrInvalidMessage) {
		t.Fatalf("expected invalid message, got %v", err)
	}
}

func TestDeadLetterAndManualRequeue(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	registerPending(t, store, "m-1")
	publisher := &failingPublisher{}

	dead, err := MarkDeadLetteredUseCase{Repository: store, Clock: staticClock{at: now}, Publisher: publisher}.
		Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1", Reason: "poison"})
	if err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if dead.Status != entities.StatusDeadLettered || dead.DeadLetterReason != "poison" {
		t.Fatalf("unexpected dead-lettered record %+v", dead)
	}
	if publisher.calls != 1 {
		t.Fatalf("expected one publish attempt despite broker error, got %d", publisher.calls)
	}

	retry := RetryDeadLetteredUseCase{Repository: store, Clock: staticClock{at: now.Add(time.Hour)}}
	requeued, err := retry.Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1", Actor: "ops"})
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued.Status != entities.StatusPending || requeued.AttemptCount != 0 || requeued.IsDeadLettered {
		t.Fatalf("expected fresh pending record, got %+v", requeued)
	}
	if _, err := retry.Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1"}); !errors.Is(err, domainerrors.ErrDeadLetterNotFound) {
		t.Fatalf("expected second requeue to report no dead letter, got %v", err)
	}
}

func TestPermanentFailureCannotBeRetried(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	registerPending(t, store, "m-1")
	clock := staticClock{at: now}

	if _, err := (MarkDeadLetteredUseCase{Repository: store, Clock: clock}).
		Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1"}); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	failed, err := PermanentlyFailUseCase{Repository: store, Clock: clock}.
		Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1", Reason: "bad data"})
	if err != nil {
		t.Fatalf("permanently fail: %v", err)
	}
	if failed.Status != entities.StatusPermanentlyFailed || failed.ProcessingCompletedAt == nil {
		t.Fatalf("unexpected record %+v", failed)
	}
	_, err = RetryDeadLetteredUseCase{Repository: store, Clock: clock}.
		Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1"})
	if !errors.Is(err, domainerrors.ErrDeadLetterNotFound) {
		t.Fatalf("expected permanently failed record to refuse requeue, got %v", err)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	record := registerPending(t, store, "m-1")
	clock := staticClock{at: now}

	if _, err := (StartProcessingUseCase{Repository: store, Clock: clock, WorkerID: "w"}).ExecuteRecord(ctx, record); err != nil {
		t.Fatalf("claim: %v", err)
	}
	cancel := CancelMessageUseCase{Repository: store, Clock: clock}
	if _, err := cancel.Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-1"}); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected processing record to refuse cancel, got %v", err)
	}

	registerPending(t, store, "m-2")
	cancelled, err := cancel.Execute(ctx, TransitionCommand{TenantID: "tenant-a", MessageID: "m-2", Reason: "withdrawn"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entities.StatusCancelled || cancelled.ErrorMessage != "withdrawn" {
		t.Fatalf("unexpected cancelled record %+v", cancelled)
	}
}

func TestFailProcessingRequiresClaim(t *testing.T) {
	store := memory.NewStore(nil)
	registerPending(t, store, "m-1")
	_, err := FailProcessingUseCase{Repository: store, Clock: staticClock{at: now}}.Execute(context.Background(), FailProcessingCommand{
		TenantID:     "tenant-a",
		MessageID:    "m-1",
		ErrorMessage: "boom",
	})
	if !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected pending record to refuse failure, got %v", err)
	}
}

func TestCleanupValidatesRetention(t *testing.T) {
	store := memory.NewStore(nil)
	cleanup := CleanupRecordsUseCase{Repository: store, Clock: staticClock{at: now}}
	if _, err := cleanup.Execute(context.Background(), "tenant-a", 0); !errors.Is(err, domainerrors.ErrInvalidRetention) {
		t.Fatalf("expected invalid retention, got %v", err)
	}
	result, err := cleanup.Execute(context.Background(), "tenant-a", 7)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !result.Cutoff.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("expected cutoff seven days back, got %s", result.Cutoff)
	}
}

func TestDeadLetterTopic(t *testing.T) {
	if got := DeadLetterTopic("chat.commands"); got != "chat.commands.dlq" {
		t.Fatalf("expected chat.commands.dlq, got %s", got)
	}
	if got := DeadLetterTopic(" "); got != "message-ledger.dlq" {
		t.Fatalf("expected fallback topic, got %s", got)
	}
}
