package postgresadapter

import (
	"time"

	"agora/contexts/platform-ops/message-ledger/domain/entities"

	"gorm.io/gorm"
)

type processingRecordModel struct {
	ID                    string     `gorm:"column:id;primaryKey;size:64"`
	TenantID              string     `gorm:"column:tenant_id;size:128;not null;uniqueIndex:ux_ledger_tenant_message,priority:1;index:ix_ledger_tenant_status_retry,priority:1;index:ix_ledger_tenant_hash,priority:1"`
	MessageID             string     `gorm:"column:message_id;size:256;not null;uniqueIndex:ux_ledger_tenant_message,priority:2"`
	MessageType           string     `gorm:"column:message_type;size:256;not null"`
	SourceTopic           string     `gorm:"column:source_topic;size:256"`
	Payload               []byte     `gorm:"column:payload"`
	ContentHash           string     `gorm:"column:content_hash;size:64;index:ix_ledger_tenant_hash,priority:2"`
	Priority              int        `gorm:"column:priority;not null;default:0"`
	Status                string     `gorm:"column:status;size:32;not null;index:ix_ledger_tenant_status_retry,priority:2"`
	AttemptCount          int        `gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts           int        `gorm:"column:max_attempts;not null"`
	ClaimedBy             string     `gorm:"column:claimed_by;size:128"`
	ReceivedAt            time.Time  `gorm:"column:received_at;not null"`
	ProcessingStartedAt   *time.Time `gorm:"column:processing_started_at"`
	ProcessingCompletedAt *time.Time `gorm:"column:processing_completed_at"`
	DurationMs            int64      `gorm:"column:duration_ms;not null;default:0"`
	NextRetryAt           *time.Time `gorm:"column:next_retry_at;index:ix_ledger_tenant_status_retry,priority:3"`
	ErrorMessage          string     `gorm:"column:error_message"`
	ExceptionDetails      string     `gorm:"column:exception_details"`
	IsDeadLettered        bool       `gorm:"column:is_dead_lettered;not null;default:false"`
	DeadLetteredAt        *time.Time `gorm:"column:dead_lettered_at"`
	DeadLetterReason      string     `gorm:"column:dead_letter_reason"`
	Version               int64      `gorm:"column:version;not null;default:1"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (processingRecordModel) TableName() string {
	return "message_processing_records"
}

// Migrate creates or updates the ledger table and its indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&processingRecordModel{})
}

func fromEntity(record entities.ProcessingRecord) processingRecordModel {
	return processingRecordModel{
		ID:                    record.ID,
		TenantID:              record.TenantID,
		MessageID:             record.MessageID,
		MessageType:           record.MessageType,
		SourceTopic:           record.SourceTopic,
		Payload:               record.Payload,
		ContentHash:           record.ContentHash,
		Priority:              record.Priority,
		Status:                string(record.Status),
		AttemptCount:          record.AttemptCount,
		MaxAttempts:           record.MaxAttempts,
		ClaimedBy:             record.ClaimedBy,
		ReceivedAt:            record.ReceivedAt.UTC(),
		ProcessingStartedAt:   utcPtr(record.ProcessingStartedAt),
		ProcessingCompletedAt: utcPtr(record.ProcessingCompletedAt),
		DurationMs:            record.DurationMs,
		NextRetryAt:           utcPtr(record.NextRetryAt),
		ErrorMessage:          record.ErrorMessage,
		ExceptionDetails:      record.ExceptionDetails,
		IsDeadLettered:        record.IsDeadLettered,
		DeadLetteredAt:        utcPtr(record.DeadLetteredAt),
		DeadLetterReason:      record.DeadLetterReason,
		Version:               record.Version,
		CreatedAt:             record.CreatedAt.UTC(),
		UpdatedAt:             record.UpdatedAt.UTC(),
	}
}

func (m processingRecordModel) toEntity() entities.ProcessingRecord {
	return entities.ProcessingRecord{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		MessageID:             m.MessageID,
		MessageType:           m.MessageType,
		SourceTopic:           m.SourceTopic,
		Payload:               append([]byte(nil), m.Payload...),
		ContentHash:           m.ContentHash,
		Priority:              m.Priority,
		Status:                entities.Status(m.Status),
		AttemptCount:          m.AttemptCount,
		MaxAttempts:           m.MaxAttempts,
		ClaimedBy:             m.ClaimedBy,
		ReceivedAt:            m.ReceivedAt.UTC(),
		ProcessingStartedAt:   utcPtr(m.ProcessingStartedAt),
		ProcessingCompletedAt: utcPtr(m.ProcessingCompletedAt),
		DurationMs:            m.DurationMs,
		NextRetryAt:           utcPtr(m.NextRetryAt),
		ErrorMessage:          m.ErrorMessage,
		ExceptionDetails:      m.ExceptionDetails,
		IsDeadLettered:        m.IsDeadLettered,
		DeadLetteredAt:        utcPtr(m.DeadLetteredAt),
		DeadLetterReason:      m.DeadLetterReason,
		Version:               m.Version,
		CreatedAt:             m.CreatedAt.UTC(),
		UpdatedAt:             m.UpdatedAt.UTC(),
	}
}

// transitionColumns lists every column a state transition may change.
func transitionColumns(m processingRecordModel, nextVersion int64) map[string]any {
	return map[string]any{
		"status":                  m.Status,
		"attempt_count":           m.AttemptCount,
		"max_attempts":            m.MaxAttempts,
		"claimed_by":              m.ClaimedBy,
		"priority":                m.Priority,
		"processing_started_at":   m.ProcessingStartedAt,
		"processing_completed_at": m.ProcessingCompletedAt,
		"duration_ms":             m.DurationMs,
		"next_retry_at":           m.NextRetryAt,
		"error_message":           m.ErrorMessage,
		"exception_details":       m.ExceptionDetails,
		"is_dead_lettered":        m.IsDeadLettered,
		"dead_lettered_at":        m.DeadLetteredAt,
		"dead_letter_reason":      m.DeadLetterReason,
		"version":                 nextVersion,
		"updated_at":              m.UpdatedAt,
	}
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	ts := value.UTC()
	return &ts
}
