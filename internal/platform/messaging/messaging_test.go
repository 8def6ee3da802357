package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	contractsv1 "agora/contracts/gen/events/v1"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan contractsv1.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, "chat.commands", "cg", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, "chat.commands", contractsv1.Envelope{EventID: "evt-1", EventType: "chat.post_message"}))

	select {
	case event := <-received:
		require.Equal(t, "evt-1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDecodeEnvelopeReadsCanonicalFields(t *testing.T) {
	occurred := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	raw, err := EncodeEnvelope(contractsv1.Envelope{
		EventID:          "evt-9",
		EventType:        "chat.post_message",
		TenantID:         "tenant-a",
		Priority:         3,
		OccurredAt:       occurred,
		SourceService:    "gateway",
		SchemaVersion:    1,
		PartitionKeyPath: "tenant_id",
		PartitionKey:     "tenant-a",
		Data:             json.RawMessage(`{"content":"hi","nested":{"n":1}}`),
	})
	require.NoError(t, err)

	envelope, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, "evt-9", envelope.EventID)
	require.Equal(t, "tenant-a", envelope.TenantID)
	require.Equal(t, 3, envelope.Priority)
	require.True(t, occurred.Equal(envelope.OccurredAt))
	require.JSONEq(t, `{"content":"hi","nested":{"n":1}}`, string(envelope.Data))
}

func TestDecodeEnvelopeRejectsMalformedInput(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"event_id":`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = DecodeEnvelope([]byte(`{"event_id":"evt-1"}`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = DecodeEnvelope([]byte(`{"event_type":"x","occurred_at":"yesterday"}`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKafkaPublishEncodesEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		envelope, err := DecodeEnvelope(value)
		if err != nil {
			return err
		}
		if envelope.EventID != "evt-1" || envelope.TenantID != "tenant-a" {
			return errors.New("unexpected envelope")
		}
		return nil
	})
	kafka := newKafka(producer, nil, nil)

	err := kafka.Publish(context.Background(), "chat.commands.dlq", contractsv1.Envelope{
		EventID:   "evt-1",
		EventType: "ledger.message.dead_lettered",
		TenantID:  "tenant-a",
	})
	require.NoError(t, err)
	require.NoError(t, kafka.Close())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(values ...string) *fakeClaim {
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(values))}
	for i, value := range values {
		claim.messages <- &sarama.ConsumerMessage{
			Topic:  "chat.commands",
			Offset: int64(i),
			Value:  []byte(value),
			Headers: []*sarama.RecordHeader{
				{Key: []byte(headerTenantID), Value: []byte("tenant-from-header")},
			},
		}
	}
	close(claim.messages)
	return claim
}

func TestConsumeClaimMarksHandledAndMalformedRecords(t *testing.T) {
	var seen []contractsv1.Envelope
	handler := &claimHandler{
		topic:  "chat.commands",
		logger: NewBus(nil).logger,
		handler: func(_ context.Context, event contractsv1.Envelope) error {
			seen = append(seen, event)
			return nil
		},
	}
	session := &fakeSession{ctx: context.Background()}

	err := handler.ConsumeClaim(session, newClaim(
		`{"event_id":"evt-1","event_type":"chat.post_message","data":{}}`,
		`not json`,
	))
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, session.marked)
	require.Len(t, seen, 1)
	require.Equal(t, "tenant-from-header", seen[0].TenantID)
}

func TestConsumeClaimStopsWithoutMarkingOnHandlerError(t *testing.T) {
	handler := &claimHandler{
		topic:  "chat.commands",
		logger: NewBus(nil).logger,
		handler: func(context.Context, contractsv1.Envelope) error {
			return errors.New("ledger unavailable")
		},
	}
	session := &fakeSession{ctx: context.Background()}

	err := handler.ConsumeClaim(session, newClaim(
		`{"event_id":"evt-1","event_type":"chat.post_message"}`,
		`{"event_id":"evt-2","event_type":"chat.post_message"}`,
	))
	require.ErrorContains(t, err, "ledger unavailable")
	require.Empty(t, session.marked)
}
