package ports

import (
	"context"
	"time"

	"agora/contexts/platform-ops/message-ledger/domain/entities"
	contractsv1 "agora/contracts/gen/events/v1"
	"agora/internal/shared/mediator"
)

// InboundMessage is one broker delivery addressed to the ledger.
type InboundMessage struct {
	TenantID    string
	MessageID   string
	MessageType string
	SourceTopic string
	Payload     []byte
	Priority    int
	ReceivedAt  time.Time
}

// DeadLetterFilter narrows the dead-letter listing. Zero From/To are open bounds.
type DeadLetterFilter struct {
	TenantID string
	From     time.Time
	To       time.Time
	Skip     int
	Take     int
}

// Repository owns ledger persistence. Update is a compare-and-swap on the
// record version and on the expected statuses; a lost race returns
// ErrStatusConflict. FindByContentHash returns the oldest record carrying the
// hash whose status is in statuses, or any non-cancelled record when none are
// given.
type Repository interface {
	Create(ctx context.Context, record entities.ProcessingRecord) (entities.ProcessingRecord, bool, error)
	Get(ctx context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error)
	Update(ctx context.Context, record entities.ProcessingRecord, expected ...entities.Status) (entities.ProcessingRecord, error)
	FindByContentHash(ctx context.Context, tenantID string, contentHash string, statuses ...entities.Status) (entities.ProcessingRecord, bool, error)
	ListReadyForRetry(ctx context.Context, tenantID string, now time.Time, limit int) ([]entities.ProcessingRecord, error)
	ListDeadLettered(ctx context.Context, filter DeadLetterFilter) ([]entities.ProcessingRecord, error)
	ListStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]entities.ProcessingRecord, error)
	ListTenants(ctx context.Context) ([]string, error)
	DeleteTerminalBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
	Statistics(ctx context.Context, tenantID string) (entities.Statistics, error)
}

// Clock allows deterministic testing of due times and retention windows.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts record identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// RandomSource yields jitter samples in [0, 1).
type RandomSource interface {
	Float64() float64
}

// Dispatcher runs a decoded request through the mediator pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, request mediator.Request) (any, error)
}

// RequestDecoder turns a stored payload into a typed request by message type.
type RequestDecoder interface {
	Decode(messageType string, payload []byte) (mediator.Request, error)
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
