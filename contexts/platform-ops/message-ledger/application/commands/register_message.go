package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/domain/services"
	"agora/contexts/platform-ops/message-ledger/ports"
)

// Content that failed or was dead-lettered may be resent after a fix, so only
// live or completed records count as originals.
var duplicateCandidateStatuses = []entities.Status{
	entities.StatusCompleted,
	entities.StatusPending,
	entities.StatusProcessing,
}

type RegisterMessageResult struct {
	Record  entities.ProcessingRecord
	Created bool
	// DuplicateOf is set when the payload matched another message of the
	// tenant and this record was cancelled on arrival.
	DuplicateOf string
}

// RegisterMessageUseCase records the first sighting of a message. Later
// sightings return the stored record unchanged.
type RegisterMessageUseCase struct {
	Repository              ports.Repository
	IDGenerator             ports.IDGenerator
	Clock                   ports.Clock
	MaxAttempts             int
	DetectContentDuplicates bool
	Logger                  *slog.Logger
}

func (u RegisterMessageUseCase) Execute(ctx context.Context, msg ports.InboundMessage) (RegisterMessageResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(msg.TenantID) == "" ||
		strings.TrimSpace(msg.MessageID) == "" ||
		strings.TrimSpace(msg.MessageType) == "" {
		return RegisterMessageResult{}, domainerrors.ErrInvalidMessage
	}

	now := currentTime(u.Clock)
	id, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RegisterMessageResult{}, fmt.Errorf("generate record id: %w", err)
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	record, err := entities.NewProcessingRecord(entities.NewRecordInput{
		ID:          id,
		TenantID:    msg.TenantID,
		MessageID:   msg.MessageID,
		MessageType: msg.MessageType,
		SourceTopic: msg.SourceTopic,
		Payload:     msg.Payload,
		ContentHash: services.ContentHash(msg.Payload),
		Priority:    msg.Priority,
		MaxAttempts: u.maxAttempts(),
		ReceivedAt:  receivedAt,
	})
	if err != nil {
		return RegisterMessageResult{}, err
	}

	var original entities.ProcessingRecord
	duplicate := false
	if u.DetectContentDuplicates && len(msg.Payload) > 0 {
		original, duplicate, err = u.Repository.FindByContentHash(ctx, record.TenantID, record.ContentHash, duplicateCandidateStatuses...)
		if err != nil {
			// Duplicate detection is advisory; a lookup failure must not block intake.
			logger.Warn("content hash lookup failed",
				"event", "ledger_content_hash_lookup_failed",
				"module", moduleName,
				"layer", "application",
				"tenant_id", record.TenantID,
				"message_id", record.MessageID,
				"error", err.Error(),
			)
			duplicate = false
		}
		if duplicate && original.MessageID == record.MessageID {
			duplicate = false
		}
	}

	stored, created, err := u.Repository.Create(ctx, record)
	if err != nil {
		logger.Error("processing record create failed",
			"event", "ledger_record_create_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"error", err.Error(),
		)
		return RegisterMessageResult{}, err
	}
	if !created {
		logger.Debug("message already registered",
			"event", "ledger_record_exists",
			"module", moduleName,
			"layer", "application",
			"tenant_id", stored.TenantID,
			"message_id", stored.MessageID,
			"status", stored.Status,
		)
		return RegisterMessageResult{Record: stored}, nil
	}

	logger.Info("message registered",
		"event", "ledger_record_created",
		"module", moduleName,
		"layer", "application",
		"tenant_id", stored.TenantID,
		"message_id", stored.MessageID,
		"message_type", stored.MessageType,
		"priority", stored.Priority,
	)
	if !duplicate {
		return RegisterMessageResult{Record: stored, Created: true}, nil
	}

	cancelled, err := stored.Cancel("duplicate content of "+original.MessageID, now)
	if err != nil {
		return RegisterMessageResult{}, err
	}
	cancelled, err = u.Repository.Update(ctx, cancelled, entities.StatusPending)
	if err != nil {
		if errors.Is(err, domainerrors.ErrStatusConflict) {
			// Someone else already moved the record; report what is stored.
			current, getErr := u.Repository.Get(ctx, stored.TenantID, stored.MessageID)
			if getErr != nil {
				return RegisterMessageResult{}, getErr
			}
			return RegisterMessageResult{Record: current, Created: true}, nil
		}
		return RegisterMessageResult{}, err
	}
	logger.Info("duplicate content cancelled",
		"event", "ledger_duplicate_content_cancelled",
		"module", moduleName,
		"layer", "application",
		"tenant_id", cancelled.TenantID,
		"message_id", cancelled.MessageID,
		"original_message_id", original.MessageID,
	)
	return RegisterMessageResult{Record: cancelled, Created: true, DuplicateOf: original.MessageID}, nil
}

func (u RegisterMessageUseCase) maxAttempts() int {
	if u.MaxAttempts <= 0 {
		return services.DefaultMaxAttempts
	}
	return u.MaxAttempts
}
