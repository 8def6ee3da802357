package queries

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

var received = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

type unavailableRepository struct {
	ports.Repository
}

func (unavailableRepository) Get(context.Context, string, string) (entities.ProcessingRecord, error) {
	return entities.ProcessingRecord{}, errors.New("connection reset")
}

func storeRecord(t *testing.T, store *memory.Store, messageID string, status entities.Status, receivedAt time.Time) {
	t.Helper()
	record, err := entities.NewProcessingRecord(entities.NewRecordInput{
		ID:          messageID,
		TenantID:    "tenant-a",
		MessageID:   messageID,
		MessageType: "chat.post_message",
		ContentHash: "abc",
		MaxAttempts: 3,
		ReceivedAt:  receivedAt,
	})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	record.Status = status
	if _, created, err := store.Create(context.Background(), record); err != nil || !created {
		t.Fatalf("create %s: created=%v err=%v", messageID, created, err)
	}
}

func TestIsProcessedFailsOpenOnStorageError(t *testing.T) {
	processed := IsProcessedUseCase{Repository: unavailableRepository{}}.Execute(context.Background(), "tenant-a", "m-1")
	if processed {
		t.Fatalf("expected a storage error to report not processed")
	}
}

func TestIsProcessedReportsOnlyCompletedRecords(t *testing.T) {
	store := memory.NewStore(nil)
	storeRecord(t, store, "done", entities.StatusCompleted, received)
	storeRecord(t, store, "waiting", entities.StatusPending, received)
	useCase := IsProcessedUseCase{Repository: store}

	if !useCase.Execute(context.Background(), "tenant-a", "done") {
		t.Fatalf("expected completed record to be processed")
	}
	if useCase.Execute(context.Background(), "tenant-a", "waiting") {
		t.Fatalf("expected pending record to be unprocessed")
	}
	if useCase.Execute(context.Background(), "tenant-a", "missing") {
		t.Fatalf("expected unknown record to be unprocessed")
	}
}

func TestIsContentProcessedSeesLaterCompletedRecord(t *testing.T) {
	store := memory.NewStore(nil)
	storeRecord(t, store, "m-old", entities.StatusPermanentlyFailed, received)
	storeRecord(t, store, "m-new", entities.StatusCompleted, received.Add(time.Minute))
	useCase := FindByContentHashUseCase{Repository: store}

	processed, err := useCase.IsContentProcessed(context.Background(), "tenant-a", "ABC")
	if err != nil || !processed {
		t.Fatalf("expected content to be processed, got %v %v", processed, err)
	}

	record, found, err := useCase.Execute(context.Background(), "tenant-a", "abc")
	if err != nil || !found || record.MessageID != "m-old" {
		t.Fatalf("expected oldest record m-old, got found=%v id=%s err=%v", found, record.MessageID, err)
	}
}

func TestIsContentProcessedIgnoresUnfinishedRecords(t *testing.T) {
	store := memory.NewStore(nil)
	storeRecord(t, store, "m-1", entities.StatusDeadLettered, received)
	storeRecord(t, store, "m-2", entities.StatusPending, received.Add(time.Minute))
	useCase := FindByContentHashUseCase{Repository: store}

	processed, err := useCase.IsContentProcessed(context.Background(), "tenant-a", "abc")
	if err != nil || processed {
		t.Fatalf("expected content to be unprocessed, got %v %v", processed, err)
	}
	processed, err = useCase.IsContentProcessed(context.Background(), "tenant-b", "abc")
	if err != nil || processed {
		t.Fatalf("expected other tenant to see nothing, got %v %v", processed, err)
	}
}

func TestContentLookupRejectsBlankInput(t *testing.T) {
	useCase := FindByContentHashUseCase{Repository: memory.NewStore(nil)}
	if _, _, err := useCase.Execute(context.Background(), "tenant-a", " "); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := useCase.IsContentProcessed(context.Background(), "", "abc"); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}
