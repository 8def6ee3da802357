package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	contractsv1 "agora/contracts/gen/events/v1"
)

const (
	defaultClientID         = "agora"
	defaultSessionTimeout   = 30 * time.Second
	defaultHeartbeat        = 3 * time.Second
	defaultRebalanceTimeout = 30 * time.Second
	defaultConsumeBackoff   = time.Second

	headerEventType = "event_type"
	headerTenantID  = "tenant_id"
)

type groupFactory func(groupID string) (sarama.ConsumerGroup, error)

// Kafka publishes and consumes canonical envelopes through sarama. Offsets
// are marked only after the handler accepts a record, so a handler error
// ends the session and the record is redelivered after the rejoin.
type Kafka struct {
	producer sarama.SyncProducer
	newGroup groupFactory
	logger   *slog.Logger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
	wg     sync.WaitGroup
}

func NewKafka(brokers []string, clientID string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	cfg := defaultConfig(clientID)
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return newKafka(producer, func(groupID string) (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(brokers, groupID, cfg)
	}, logger), nil
}

func newKafka(producer sarama.SyncProducer, newGroup groupFactory, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{producer: producer, newGroup: newGroup, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return errors.New("kafka: topic is required")
	}
	payload, err := EncodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("kafka: encode envelope: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(event.EventType)},
			{Key: []byte(headerTenantID), Value: []byte(event.TenantID)},
		},
	}
	if key := partitionKey(event); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka: send to %s: %w", topic, err)
	}
	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", moduleName,
		"layer", "platform",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

// Subscribe joins consumerGroup on topic and consumes until ctx is done.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	if handler == nil {
		return errors.New("kafka: handler is required")
	}
	group, err := k.newGroup(consumerGroup)
	if err != nil {
		return fmt.Errorf("kafka: create consumer group %s: %w", consumerGroup, err)
	}
	k.mu.Lock()
	k.groups = append(k.groups, group)
	k.mu.Unlock()

	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		for err := range group.Errors() {
			k.logger.Error("kafka consumer group error",
				"event", "kafka_group_error",
				"module", moduleName,
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"error", err.Error(),
			)
		}
	}()
	go func() {
		defer k.wg.Done()
		k.consume(ctx, group, topic, consumerGroup, handler)
	}()
	return nil
}

func (k *Kafka) consume(
	ctx context.Context,
	group sarama.ConsumerGroup,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	claims := &claimHandler{topic: topic, consumerGroup: consumerGroup, handler: handler, logger: k.logger}
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{topic}, claims)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil {
			k.logger.Warn("kafka consume session ended",
				"event", "kafka_consume_retry",
				"module", moduleName,
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"error", err.Error(),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(defaultConsumeBackoff):
			}
		}
	}
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	groups := k.groups
	k.groups = nil
	k.mu.Unlock()

	var errs []error
	for _, group := range groups {
		if err := group.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	k.wg.Wait()
	if err := k.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type claimHandler struct {
	topic         string
	consumerGroup string
	handler       func(context.Context, contractsv1.Envelope) error
	logger        *slog.Logger
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("kafka consumer group joined",
		"event", "kafka_group_setup",
		"module", moduleName,
		"layer", "platform",
		"topic", h.topic,
		"consumer_group", h.consumerGroup,
	)
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		envelope, err := DecodeEnvelope(msg.Value)
		if err != nil {
			// Redelivery cannot fix a malformed record.
			h.logger.Warn("kafka record skipped",
				"event", "kafka_record_invalid",
				"module", moduleName,
				"layer", "platform",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err.Error(),
			)
			session.MarkMessage(msg, "")
			continue
		}
		if envelope.TenantID == "" {
			envelope.TenantID = headerValue(msg.Headers, headerTenantID)
		}
		if err := h.handler(session.Context(), envelope); err != nil {
			return fmt.Errorf("handle %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func defaultConfig(clientID string) *sarama.Config {
	if clientID == "" {
		clientID = defaultClientID
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = clientID

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	cfg.Consumer.Group.Session.Timeout = defaultSessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = defaultHeartbeat
	cfg.Consumer.Group.Rebalance.Timeout = defaultRebalanceTimeout
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	return cfg
}

func partitionKey(event contractsv1.Envelope) string {
	if event.TenantID != "" {
		return event.TenantID
	}
	return event.PartitionKey
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, header := range headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
