package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	"agora/contexts/platform-ops/message-ledger/application/queries"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
	"agora/internal/shared/mediator"
)

const moduleName = application.ModuleName

// Outcome is what one processing pass did with a message.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeAlreadyProcessed  Outcome = "already_processed"
	OutcomeInFlight          Outcome = "in_flight"
	OutcomeNotDue            Outcome = "not_due"
	OutcomeTerminal          Outcome = "terminal"
	OutcomeDuplicateContent  Outcome = "duplicate_content"
	OutcomeRetryScheduled    Outcome = "retry_scheduled"
	OutcomeRescheduled       Outcome = "rescheduled"
	OutcomeDeadLettered      Outcome = "dead_lettered"
	OutcomePermanentlyFailed Outcome = "permanently_failed"
)

// MessageProcessor drives one message through the ledger and the mediator:
// register, claim, decode, dispatch, then record the result.
type MessageProcessor struct {
	IsProcessed      queries.IsProcessedUseCase
	Register         commands.RegisterMessageUseCase
	StartProcessing  commands.StartProcessingUseCase
	Complete         commands.CompleteProcessingUseCase
	Fail             commands.FailProcessingUseCase
	MarkDeadLettered commands.MarkDeadLetteredUseCase
	PermanentlyFail  commands.PermanentlyFailUseCase
	Decoder          ports.RequestDecoder
	Dispatcher       ports.Dispatcher
	Clock            ports.Clock
	Logger           *slog.Logger
}

// Process handles a fresh broker delivery. A returned error asks the broker
// to redeliver.
func (p MessageProcessor) Process(ctx context.Context, msg ports.InboundMessage) (Outcome, error) {
	logger := application.ResolveLogger(p.Logger)
	if p.IsProcessed.Execute(ctx, msg.TenantID, msg.MessageID) {
		logger.Debug("message already processed",
			"event", "ledger_message_skipped",
			"module", moduleName,
			"layer", "worker",
			"tenant_id", msg.TenantID,
			"message_id", msg.MessageID,
		)
		return OutcomeAlreadyProcessed, nil
	}

	registered, err := p.Register.Execute(ctx, msg)
	if err != nil {
		return "", err
	}
	if registered.DuplicateOf != "" {
		return OutcomeDuplicateContent, nil
	}

	record := registered.Record
	switch {
	case record.Status == entities.StatusCompleted:
		return OutcomeAlreadyProcessed, nil
	case record.Status == entities.StatusProcessing:
		return OutcomeInFlight, nil
	case record.Status != entities.StatusPending:
		return OutcomeTerminal, nil
	case !record.IsDue(currentTime(p.Clock)):
		return OutcomeNotDue, nil
	}
	return p.Execute(ctx, record)
}

// Execute claims a pending record and dispatches its stored payload. The retry
// scheduler calls it directly for records that are due again.
func (p MessageProcessor) Execute(ctx context.Context, record entities.ProcessingRecord) (Outcome, error) {
	logger := application.ResolveLogger(p.Logger)

	claimed, err := p.StartProcessing.ExecuteRecord(ctx, record)
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrStatusConflict):
			return OutcomeInFlight, nil
		case errors.Is(err, domainerrors.ErrNotDue):
			return OutcomeNotDue, nil
		}
		return "", err
	}

	request, err := p.Decoder.Decode(claimed.MessageType, claimed.Payload)
	if err != nil {
		return p.rejectUndispatchable(ctx, claimed, err)
	}
	if scoped, ok := request.(mediator.TenantScoped); ok && scoped.Tenant() != claimed.TenantID {
		return p.rejectUndispatchable(ctx, claimed, mediator.Reject(
			fmt.Errorf("%w: payload tenant %q", domainerrors.ErrTenantMismatch, scoped.Tenant()),
		))
	}

	_, dispatchErr := p.Dispatcher.Dispatch(ctx, request)
	if dispatchErr == nil {
		if _, err := p.Complete.ExecuteRecord(ctx, claimed); err != nil {
			// The handler ran but the ledger does not know. Release the claim so
			// the message is retried rather than stuck in processing.
			p.failAttempt(ctx, claimed, fmt.Errorf("record completion: %w", err), logger)
			return "", fmt.Errorf("record completion for %s/%s: %w", claimed.TenantID, claimed.MessageID, err)
		}
		return OutcomeCompleted, nil
	}

	if ctx.Err() != nil {
		result, err := p.Fail.ExecuteRecord(context.WithoutCancel(ctx), claimed, commands.FailProcessingCommand{
			TenantID:         claimed.TenantID,
			MessageID:        claimed.MessageID,
			ErrorMessage:     commands.CancelledReason,
			ExceptionDetails: dispatchErr.Error(),
			Cancelled:        true,
		})
		if err != nil {
			return "", err
		}
		if result.DeadLettered {
			return OutcomeDeadLettered, nil
		}
		return OutcomeRescheduled, nil
	}

	if errors.Is(dispatchErr, mediator.ErrConfiguration) {
		return p.rejectUndispatchable(ctx, claimed, dispatchErr)
	}
	if mediator.IsPermanent(dispatchErr) {
		if _, err := p.PermanentlyFail.ExecuteRecord(ctx, claimed, dispatchErr.Error()); err != nil {
			return "", err
		}
		return OutcomePermanentlyFailed, nil
	}

	result, err := p.Fail.ExecuteRecord(ctx, claimed, commands.FailProcessingCommand{
		TenantID:         claimed.TenantID,
		MessageID:        claimed.MessageID,
		ErrorMessage:     dispatchErr.Error(),
		ExceptionDetails: fmt.Sprintf("%+v", dispatchErr),
	})
	if err != nil {
		return "", err
	}
	if result.DeadLettered {
		return OutcomeDeadLettered, nil
	}
	return OutcomeRetryScheduled, nil
}

// rejectUndispatchable handles messages that can never reach a handler as
// deployed: unknown types and wiring errors are dead-lettered for an operator,
// payloads that do not decode or name another tenant are permanently failed.
func (p MessageProcessor) rejectUndispatchable(ctx context.Context, record entities.ProcessingRecord, cause error) (Outcome, error) {
	logger := application.ResolveLogger(p.Logger)
	logger.Warn("message cannot be dispatched",
		"event", "ledger_message_undispatchable",
		"module", moduleName,
		"layer", "worker",
		"tenant_id", record.TenantID,
		"message_id", record.MessageID,
		"message_type", record.MessageType,
		"error", cause.Error(),
	)
	if mediator.IsPermanent(cause) {
		if _, err := p.PermanentlyFail.ExecuteRecord(ctx, record, cause.Error()); err != nil {
			return "", err
		}
		return OutcomePermanentlyFailed, nil
	}
	if _, err := p.MarkDeadLettered.ExecuteRecord(ctx, record, cause.Error()); err != nil {
		return "", err
	}
	return OutcomeDeadLettered, nil
}

func (p MessageProcessor) failAttempt(ctx context.Context, record entities.ProcessingRecord, cause error, logger *slog.Logger) {
	_, err := p.Fail.ExecuteRecord(context.WithoutCancel(ctx), record, commands.FailProcessingCommand{
		TenantID:     record.TenantID,
		MessageID:    record.MessageID,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		logger.Error("releasing claim after completion failure failed",
			"event", "ledger_release_claim_failed",
			"module", moduleName,
			"layer", "worker",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"error", err.Error(),
		)
	}
}
