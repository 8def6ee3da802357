package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/domain/services"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const (
	CancelledReason    = "processing cancelled"
	LeaseExpiredReason = "processing lease expired"
	exhaustedReason    = "max attempts exceeded"
)

type FailProcessingCommand struct {
	TenantID         string
	MessageID        string
	ErrorMessage     string
	ExceptionDetails string
	// Cancelled marks an attempt interrupted by shutdown. It is rescheduled
	// immediately and does not count against MaxAttempts.
	Cancelled bool
}

type FailProcessingResult struct {
	Record       entities.ProcessingRecord
	DeadLettered bool
}

// FailProcessingUseCase records a failed attempt and, in the same conditional
// write, either schedules the retry or dead-letters the record once the
// attempt budget is spent.
type FailProcessingUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Random     ports.RandomSource
	Backoff    services.BackoffPolicy
	Publisher  ports.EventPublisher
	Logger     *slog.Logger
}

func (u FailProcessingUseCase) Execute(ctx context.Context, cmd FailProcessingCommand) (FailProcessingResult, error) {
	if strings.TrimSpace(cmd.TenantID) == "" || strings.TrimSpace(cmd.MessageID) == "" {
		return FailProcessingResult{}, domainerrors.ErrInvalidRequest
	}
	record, err := u.Repository.Get(ctx, cmd.TenantID, cmd.MessageID)
	if err != nil {
		return FailProcessingResult{}, err
	}
	return u.ExecuteRecord(ctx, record, cmd)
}

func (u FailProcessingUseCase) ExecuteRecord(
	ctx context.Context,
	record entities.ProcessingRecord,
	cmd FailProcessingCommand,
) (FailProcessingResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := currentTime(u.Clock)

	message := strings.TrimSpace(cmd.ErrorMessage)
	if cmd.Cancelled && message == "" {
		message = CancelledReason
	}
	failed, err := record.RecordFailure(message, cmd.ExceptionDetails, !cmd.Cancelled, now)
	if err != nil {
		return FailProcessingResult{}, err
	}

	var next entities.ProcessingRecord
	deadLettered := false
	switch {
	case cmd.Cancelled && failed.CanRetry():
		next, err = failed.ScheduleRetry(now, now)
	case failed.CanRetry():
		// Backoff is indexed by the attempts made before this failure.
		retryAt := u.backoff().NextRetryAt(now, failed.AttemptCount-1, u.sample())
		next, err = failed.ScheduleRetry(retryAt, now)
	default:
		next, err = failed.DeadLetter(exhaustedReason, now)
		deadLettered = true
	}
	if err != nil {
		return FailProcessingResult{}, err
	}

	updated, err := u.Repository.Update(ctx, next, entities.StatusProcessing)
	if err != nil {
		logger.Error("processing failure write failed",
			"event", "ledger_fail_write_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"error", err.Error(),
		)
		return FailProcessingResult{}, fmt.Errorf("record processing failure: %w", err)
	}

	if deadLettered {
		logger.Warn("message dead-lettered after exhausting attempts",
			"event", "ledger_dead_lettered",
			"module", moduleName,
			"layer", "application",
			"tenant_id", updated.TenantID,
			"message_id", updated.MessageID,
			"attempt_count", updated.AttemptCount,
			"max_attempts", updated.MaxAttempts,
			"error_message", updated.ErrorMessage,
		)
		publishDeadLetter(ctx, u.Publisher, updated, logger)
		return FailProcessingResult{Record: updated, DeadLettered: true}, nil
	}

	logger.Info("processing retry scheduled",
		"event", "ledger_retry_scheduled",
		"module", moduleName,
		"layer", "application",
		"tenant_id", updated.TenantID,
		"message_id", updated.MessageID,
		"attempt_count", updated.AttemptCount,
		"max_attempts", updated.MaxAttempts,
		"next_retry_at", updated.NextRetryAt,
		"cancelled", cmd.Cancelled,
		"error_message", updated.ErrorMessage,
	)
	return FailProcessingResult{Record: updated}, nil
}

func (u FailProcessingUseCase) backoff() services.BackoffPolicy {
	if u.Backoff == (services.BackoffPolicy{}) {
		return services.DefaultBackoffPolicy()
	}
	return u.Backoff
}

func (u FailProcessingUseCase) sample() float64 {
	if u.Random == nil {
		return 0
	}
	return u.Random.Float64()
}
