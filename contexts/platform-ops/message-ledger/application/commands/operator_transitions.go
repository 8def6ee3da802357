package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

type TransitionCommand struct {
	TenantID  string
	MessageID string
	Reason    string
	Actor     string
}

func (c TransitionCommand) validate() error {
	if strings.TrimSpace(c.TenantID) == "" || strings.TrimSpace(c.MessageID) == "" {
		return domainerrors.ErrInvalidRequest
	}
	return nil
}

// MarkDeadLetteredUseCase parks a record for operator attention. Handler
// configuration errors take this path without consuming the retry budget.
type MarkDeadLetteredUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Publisher  ports.EventPublisher
	Logger     *slog.Logger
}

func (u MarkDeadLetteredUseCase) Execute(ctx context.Context, cmd TransitionCommand) (entities.ProcessingRecord, error) {
	if err := cmd.validate(); err != nil {
		return entities.ProcessingRecord{}, err
	}
	record, err := u.Repository.Get(ctx, cmd.TenantID, cmd.MessageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	return u.ExecuteRecord(ctx, record, cmd.Reason)
}

func (u MarkDeadLetteredUseCase) ExecuteRecord(ctx context.Context, record entities.ProcessingRecord, reason string) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	reason = defaultReason(reason, "dead-lettered by operator")
	current := record.Status
	dead, err := record.DeadLetter(reason, currentTime(u.Clock))
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, dead, current)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	logger.Warn("message dead-lettered",
		"event", "ledger_dead_lettered",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"previous_status", current,
		"reason", reason,
	)
	publishDeadLetter(ctx, u.Publisher, updated, logger)
	return updated, nil
}

// RetryDeadLetteredUseCase is the manual override that gives a dead-lettered
// record a fresh attempt budget.
type RetryDeadLetteredUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u RetryDeadLetteredUseCase) Execute(ctx context.Context, cmd TransitionCommand) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	if err := cmd.validate(); err != nil {
		return entities.ProcessingRecord{}, err
	}
	record, err := u.Repository.Get(ctx, cmd.TenantID, cmd.MessageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	if record.Status != entities.StatusDeadLettered {
		return entities.ProcessingRecord{}, domainerrors.ErrDeadLetterNotFound
	}
	requeued, err := record.Requeue(currentTime(u.Clock))
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, requeued, entities.StatusDeadLettered)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	logger.Warn("dead-lettered message re-queued by manual override",
		"event", "ledger_dead_letter_requeued",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"previous_attempt_count", record.AttemptCount,
		"previous_reason", record.DeadLetterReason,
		"actor", cmd.Actor,
	)
	return updated, nil
}

type PermanentlyFailUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u PermanentlyFailUseCase) Execute(ctx context.Context, cmd TransitionCommand) (entities.ProcessingRecord, error) {
	if err := cmd.validate(); err != nil {
		return entities.ProcessingRecord{}, err
	}
	record, err := u.Repository.Get(ctx, cmd.TenantID, cmd.MessageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	return u.ExecuteRecord(ctx, record, cmd.Reason)
}

func (u PermanentlyFailUseCase) ExecuteRecord(ctx context.Context, record entities.ProcessingRecord, reason string) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	reason = defaultReason(reason, "permanently failed by operator")
	current := record.Status
	failed, err := record.PermanentlyFail(reason, currentTime(u.Clock))
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, failed, current)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	logger.Warn("message permanently failed",
		"event", "ledger_permanently_failed",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"previous_status", current,
		"reason", reason,
	)
	return updated, nil
}

type CancelMessageUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u CancelMessageUseCase) Execute(ctx context.Context, cmd TransitionCommand) (entities.ProcessingRecord, error) {
	logger := application.ResolveLogger(u.Logger)
	if err := cmd.validate(); err != nil {
		return entities.ProcessingRecord{}, err
	}
	record, err := u.Repository.Get(ctx, cmd.TenantID, cmd.MessageID)
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	reason := defaultReason(cmd.Reason, "cancelled by operator")
	current := record.Status
	cancelled, err := record.Cancel(reason, currentTime(u.Clock))
	if err != nil {
		return entities.ProcessingRecord{}, err
	}
	updated, err := u.Repository.Update(ctx, cancelled, current)
	if err != nil {
		if errors.Is(err, domainerrors.ErrStatusConflict) {
			logger.Info("cancel lost to concurrent transition",
				"event", "ledger_cancel_conflict",
				"module", moduleName,
				"layer", "application",
				"tenant_id", record.TenantID,
				"message_id", record.MessageID,
			)
		}
		return entities.ProcessingRecord{}, err
	}
	logger.Info("message cancelled",
		"event", "ledger_cancelled",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"reason", reason,
	)
	return updated, nil
}

func defaultReason(reason string, fallback string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fallback
	}
	return reason
}
