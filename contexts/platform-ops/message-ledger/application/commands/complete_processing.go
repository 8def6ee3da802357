package commands

import (
	"context"
	"log/slog"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	"agora/contexts/platform-ops/message-ledger/ports"
)

type CompleteProcessingUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u CompleteProcessingUseCase) Execute(ctx context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error) {
	record, err := u.Repository.Get(ctx, tenantID, messageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	return u.ExecuteRecord(ctx, record)
}

func (u CompleteProcessingUseCase) ExecuteRecord(ctx context.Context, record entities.ProcessingRecord) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	completed, err := record.Complete(currentTime(u.Clock))
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, completed, entities.StatusProcessing)
	if err != nil {
		logger.Error("processing completion write failed",
			"event", "ledger_complete_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"error", err.Error(),
		)
		return entities.ProcessingRecord{}, err
	}
	logger.Info("processing completed",
		"event", "ledger_completed",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"duration_ms", updated.DurationMs,
		"attempt_count", updated.AttemptCount,
	)
	return updated, nil
}
