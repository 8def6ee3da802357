package commands

import (
	"context"
	"errors"
	"log/slog"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

// StartProcessingUseCase claims a due pending record for one worker. Exactly
// one of any number of concurrent claimers wins; the others get
// ErrStatusConflict.
type StartProcessingUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	WorkerID   string
	Logger     *slog.Logger
}

func (u StartProcessingUseCase) Execute(ctx context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error) {
	record, err := u.Repository.Get(ctx, tenantID, messageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	return u.ExecuteRecord(ctx, record)
}

// ExecuteRecord claims the given snapshot. The write only succeeds if the
// stored row still matches the snapshot's version.
func (u StartProcessingUseCase) ExecuteRecord(ctx context.Context, record entities.ProcessingRecord) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	claimed, err := record.StartProcessing(u.WorkerID, currentTime(u.Clock))
	if err != nil {
		if errors.Is(err, domainerrors.ErrInvalidTransition) {
			return entities.ProcessingRecord{}, domainerrors.ErrStatusConflict
		}
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, claimed, entities.StatusPending)
	if err != nil {
		if errors.Is(err, domainerrors.ErrStatusConflict) {
			logger.Debug("claim lost to another worker",
				"event", "ledger_claim_conflict",
				"module", moduleName,
				"layer", "application",
				"tenant_id", record.TenantID,
				"message_id", record.MessageID,
				"worker_id", u.WorkerID,
			)
		}
		return entities.ProcessingRecord{}, err
	}
	logger.Debug("processing claimed",
		"event", "ledger_claimed",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"worker_id", u.WorkerID,
		"attempt_count", updated.AttemptCount,
	)
	return updated, nil
}
