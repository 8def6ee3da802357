package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"agora/contexts/platform-ops/message-ledger/domain/entities"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const (
	deadLetterEventType   = "ledger.message.dead_lettered"
	deadLetterTopicSuffix = ".dlq"
	fallbackDLQTopic      = "message-ledger.dlq"
)

type deadLetterPayload struct {
	RecordID         string          `json:"record_id"`
	TenantID         string          `json:"tenant_id"`
	MessageID        string          `json:"message_id"`
	MessageType      string          `json:"message_type"`
	SourceTopic      string          `json:"source_topic"`
	AttemptCount     int             `json:"attempt_count"`
	MaxAttempts      int             `json:"max_attempts"`
	Reason           string          `json:"reason"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	DeadLetteredAt   time.Time       `json:"dead_lettered_at"`
	OriginalPayload  json.RawMessage `json:"original_payload,omitempty"`
	OriginalEncoding string          `json:"original_encoding,omitempty"`
}

// DeadLetterTopic is the DLQ topic for a source topic.
func DeadLetterTopic(sourceTopic string) string {
	sourceTopic = strings.TrimSpace(sourceTopic)
	if sourceTopic == "" {
		return fallbackDLQTopic
	}
	return sourceTopic + deadLetterTopicSuffix
}

// publishDeadLetter forwards a dead-lettered record to its DLQ topic. Publish
// failures never undo the ledger transition; they are only logged.
func publishDeadLetter(
	ctx context.Context,
	publisher ports.EventPublisher,
	record entities.ProcessingRecord,
	logger *slog.Logger,
) {
	if publisher == nil {
		return
	}
	deadLetteredAt := record.UpdatedAt
	if record.DeadLetteredAt != nil {
		deadLetteredAt = *record.DeadLetteredAt
	}
	payload := deadLetterPayload{
		RecordID:       record.ID,
		TenantID:       record.TenantID,
		MessageID:      record.MessageID,
		MessageType:    record.MessageType,
		SourceTopic:    record.SourceTopic,
		AttemptCount:   record.AttemptCount,
		MaxAttempts:    record.MaxAttempts,
		Reason:         record.DeadLetterReason,
		ErrorMessage:   record.ErrorMessage,
		DeadLetteredAt: deadLetteredAt,
	}
	if json.Valid(record.Payload) {
		payload.OriginalPayload = json.RawMessage(record.Payload)
	} else if len(record.Payload) > 0 {
		encoded, _ := json.Marshal(record.Payload)
		payload.OriginalPayload = encoded
		payload.OriginalEncoding = "base64"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("dead letter payload encoding failed",
			"event", "ledger_dead_letter_encode_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"error", err.Error(),
		)
		return
	}

	topic := DeadLetterTopic(record.SourceTopic)
	envelope := ports.EventEnvelope{
		EventID:          record.ID + ":dlq:" + deadLetteredAt.UTC().Format(time.RFC3339Nano),
		EventType:        deadLetterEventType,
		TenantID:         record.TenantID,
		Priority:         record.Priority,
		OccurredAt:       deadLetteredAt.UTC(),
		SourceService:    "message-ledger",
		SchemaVersion:    1,
		PartitionKeyPath: "tenant_id",
		PartitionKey:     record.TenantID,
		Data:             data,
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), topic, envelope); err != nil {
		logger.Error("dead letter publish failed",
			"event", "ledger_dead_letter_publish_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"topic", topic,
			"error", err.Error(),
		)
		return
	}
	logger.Info("dead letter published",
		"event", "ledger_dead_letter_published",
		"module", moduleName,
		"layer", "application",
		"tenant_id", record.TenantID,
		"message_id", record.MessageID,
		"topic", topic,
	)
}
