package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	application "agora/contexts/platform-ops/message-ledger/application"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const (
	defaultConsumerGroup = "message-ledger-cg"
	defaultConcurrency   = 8
)

// MessageConsumer feeds broker deliveries into the processor. Concurrency caps
// in-flight messages across every subscribed topic.
type MessageConsumer struct {
	Subscriber    ports.EventSubscriber
	Processor     MessageProcessor
	Topics        []string
	ConsumerGroup string
	Concurrency   int
	Clock         ports.Clock
	Logger        *slog.Logger
}

func (c MessageConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if len(c.Topics) == 0 {
		return fmt.Errorf("message consumer requires at least one topic")
	}
	group := c.ConsumerGroup
	if group == "" {
		group = defaultConsumerGroup
	}
	slots := semaphore.NewWeighted(int64(c.concurrency()))

	for _, topic := range c.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		handler := func(ctx context.Context, event ports.EventEnvelope) error {
			if err := slots.Acquire(ctx, 1); err != nil {
				return err
			}
			defer slots.Release(1)
			return c.handle(ctx, topic, event)
		}
		if err := c.Subscriber.Subscribe(ctx, topic, group, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		logger.Info("message consumer subscribed",
			"event", "ledger_consumer_subscribed",
			"module", moduleName,
			"layer", "worker",
			"topic", topic,
			"consumer_group", group,
		)
	}
	return nil
}

func (c MessageConsumer) handle(ctx context.Context, topic string, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	msg := ToInboundMessage(event, topic, currentTime(c.Clock))
	outcome, err := c.Processor.Process(ctx, msg)
	if errors.Is(err, domainerrors.ErrInvalidMessage) {
		// Without a tenant and message id there is no ledger row to park it on.
		logger.Warn("message dropped without identity",
			"event", "ledger_consume_dropped",
			"module", moduleName,
			"layer", "worker",
			"topic", topic,
			"tenant_id", msg.TenantID,
			"message_id", msg.MessageID,
			"message_type", msg.MessageType,
		)
		return nil
	}
	if err != nil {
		logger.Error("message processing failed",
			"event", "ledger_consume_failed",
			"module", moduleName,
			"layer", "worker",
			"tenant_id", msg.TenantID,
			"message_id", msg.MessageID,
			"message_type", msg.MessageType,
			"error", err.Error(),
		)
		return err
	}
	logger.Debug("message processed",
		"event", "ledger_consumed",
		"module", moduleName,
		"layer", "worker",
		"tenant_id", msg.TenantID,
		"message_id", msg.MessageID,
		"outcome", outcome,
	)
	return nil
}

// ToInboundMessage maps a broker envelope onto the ledger's inbound shape.
// Envelopes partitioned by tenant may omit the explicit tenant field.
func ToInboundMessage(event ports.EventEnvelope, sourceTopic string, now time.Time) ports.InboundMessage {
	tenantID := strings.TrimSpace(event.TenantID)
	if tenantID == "" && event.PartitionKeyPath == "tenant_id" {
		tenantID = strings.TrimSpace(event.PartitionKey)
	}
	receivedAt := now
	if !event.OccurredAt.IsZero() {
		receivedAt = event.OccurredAt.UTC()
	}
	return ports.InboundMessage{
		TenantID:    tenantID,
		MessageID:   strings.TrimSpace(event.EventID),
		MessageType: strings.TrimSpace(event.EventType),
		SourceTopic: sourceTopic,
		Payload:     append([]byte(nil), event.Data...),
		Priority:    event.Priority,
		ReceivedAt:  receivedAt,
	}
}

func (c MessageConsumer) concurrency() int {
	if c.Concurrency <= 0 {
		return defaultConcurrency
	}
	return c.Concurrency
}

func currentTime(clock ports.Clock) time.Time {
	if clock != nil {
		return clock.Now().UTC()
	}
	return time.Now().UTC()
}
