package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"agora/contexts/platform-ops/message-ledger/adapters/memory"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	"agora/contexts/platform-ops/message-ledger/application/queries"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/domain/services"
	"agora/contexts/platform-ops/message-ledger/ports"
	"agora/internal/shared/mediator"
)

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedRandom float64

func (r fixedRandom) Float64() float64 { return float64(r) }

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type postNote struct {
	Text string `json:"text"`
}

func (postNote) RequestName() string { return "notes.post" }

func (n postNote) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Text, validation.Required, validation.Length(1, 20)),
	)
}

// orphanNote has a decoder but no handler.
type orphanNote struct{}

func (orphanNote) RequestName() string { return "notes.orphan" }

type harness struct {
	store     *memory.Store
	clock     *testClock
	publisher *recordingPublisher
	processor MessageProcessor
	handled   *atomic.Int32
}

func newHarness(t *testing.T, maxAttempts int, handler func(ctx context.Context, n postNote) (string, error)) harness {
	t.Helper()
	store := memory.NewStore(nil)
	clock := &testClock{now: start}
	publisher := &recordingPublisher{}
	handled := &atomic.Int32{}

	registry := mediator.NewRegistry()
	registry.Use(mediator.Recovery(nil), mediator.Validation())
	err := mediator.RegisterCommand[postNote, string](registry, mediator.HandlerFunc[postNote, string](
		func(ctx context.Context, n postNote) (string, error) {
			handled.Add(1)
			return handler(ctx, n)
		}))
	if err != nil {
		t.Fatalf("register handler: %v", err)
	}
	codec := mediator.NewCodec()
	if err := mediator.RegisterJSON[postNote](codec); err != nil {
		t.Fatalf("register codec: %v", err)
	}
	if err := mediator.RegisterJSON[orphanNote](codec); err != nil {
		t.Fatalf("register codec: %v", err)
	}

	fail := commands.FailProcessingUseCase{
		Repository: store,
		Clock:      clock,
		Random:     fixedRandom(0.5),
		Backoff:    services.DefaultBackoffPolicy(),
		Publisher:  publisher,
	}
	processor := MessageProcessor{
		IsProcessed: queries.IsProcessedUseCase{Repository: store},
		Register: commands.RegisterMessageUseCase{
			Repository:  store,
			IDGenerator: store,
			Clock:       clock,
			MaxAttempts: maxAttempts,
		},
		StartProcessing:  commands.StartProcessingUseCase{Repository: store, Clock: clock, WorkerID: "worker-1"},
		Complete:         commands.CompleteProcessingUseCase{Repository: store, Clock: clock},
		Fail:             fail,
		MarkDeadLettered: commands.MarkDeadLetteredUseCase{Repository: store, Clock: clock, Publisher: publisher},
		PermanentlyFail:  commands.PermanentlyFailUseCase{Repository: store, Clock: clock},
		Decoder:          codec,
		Dispatcher:       registry.Build(),
		Clock:            clock,
	}
	return harness{store: store, clock: clock, publisher: publisher, processor: processor, handled: handled}
}

func inbound(messageID string, messageType string, payload string) ports.InboundMessage {
	return ports.InboundMessage{
		TenantID:    "tenant-a",
		MessageID:   messageID,
		MessageType: messageType,
		SourceTopic: "notes.commands",
		Payload:     []byte(payload),
		ReceivedAt:  start,
	}
}

func mustGet(t *testing.T, h harness, messageID string) entities.ProcessingRecord {
	t.Helper()
	record, err := h.store.Get(context.Background(), "tenant-a", messageID)
	if err != nil {
		t.Fatalf("get %s: %v", messageID, err)
	}
	return record
}

func TestCompletedMessageIsSkippedOnRedelivery(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	msg := inbound("m-1", "notes.post", `{"text":"hello"}`)

	outcome, err := h.processor.Process(context.Background(), msg)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	outcome, err = h.processor.Process(context.Background(), msg)
	if err != nil || outcome != OutcomeAlreadyProcessed {
		t.Fatalf("expected already processed, got %s %v", outcome, err)
	}
	if h.handled.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", h.handled.Load())
	}
	record := mustGet(t, h, "m-1")
	if record.Status != entities.StatusCompleted || record.ProcessingCompletedAt == nil {
		t.Fatalf("expected completed record, got %+v", record)
	}
}

func TestFailingMessageBacksOffThenDeadLetters(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) {
		return "", errors.New("downstream unavailable")
	})
	scheduler := RetryScheduler{Repository: h.store, Processor: h.processor, Clock: h.clock, Concurrency: 2}
	ctx := context.Background()

	outcome, err := h.processor.Process(ctx, inbound("m-1", "notes.post", `{"text":"hello"}`))
	if err != nil || outcome != OutcomeRetryScheduled {
		t.Fatalf("expected retry scheduled, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "m-1")
	if record.Status != entities.StatusPending || record.AttemptCount != 1 {
		t.Fatalf("expected pending after first failure, got %s attempts=%d", record.Status, record.AttemptCount)
	}
	wait := record.NextRetryAt.Sub(start)
	if wait < 30*time.Second || wait > 33*time.Second {
		t.Fatalf("expected first retry in [30s, 33s], got %s", wait)
	}

	// Not yet due: nothing is dispatched.
	h.clock.Advance(10 * time.Second)
	if count, err := scheduler.RunOnce(ctx); err != nil || count != 0 {
		t.Fatalf("expected no dispatch before due time, got %d %v", count, err)
	}

	h.clock.Advance(25 * time.Second)
	if count, err := scheduler.RunOnce(ctx); err != nil || count != 1 {
		t.Fatalf("expected one retry dispatch, got %d %v", count, err)
	}
	record = mustGet(t, h, "m-1")
	if record.AttemptCount != 2 || record.Status != entities.StatusPending {
		t.Fatalf("expected second attempt recorded, got %s attempts=%d", record.Status, record.AttemptCount)
	}
	wait = record.NextRetryAt.Sub(h.clock.Now())
	if wait < 60*time.Second || wait > 66*time.Second {
		t.Fatalf("expected second retry in [60s, 66s], got %s", wait)
	}

	h.clock.Advance(2 * time.Minute)
	if _, err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	record = mustGet(t, h, "m-1")
	if record.Status != entities.StatusDeadLettered || !record.IsDeadLettered || record.AttemptCount != 3 {
		t.Fatalf("expected dead-lettered after 3 attempts, got %s attempts=%d", record.Status, record.AttemptCount)
	}
	if record.NextRetryAt != nil {
		t.Fatal("dead-lettered record must not keep a retry time")
	}
	if len(h.publisher.topics) != 1 || h.publisher.topics[0] != "notes.commands.dlq" {
		t.Fatalf("expected one DLQ publish to notes.commands.dlq, got %v", h.publisher.topics)
	}
	if h.handled.Load() != 3 {
		t.Fatalf("expected three handler invocations, got %d", h.handled.Load())
	}

	h.clock.Advance(time.Hour)
	if count, _ := scheduler.RunOnce(ctx); count != 0 {
		t.Fatalf("dead-lettered record must not be retried, dispatched %d", count)
	}
}

func TestUnknownMessageTypeIsDeadLetteredWithoutAttempt(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })

	outcome, err := h.processor.Process(context.Background(), inbound("m-1", "notes.archive", `{}`))
	if err != nil || outcome != OutcomeDeadLettered {
		t.Fatalf("expected dead-lettered, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "m-1")
	if record.AttemptCount != 0 || !strings.Contains(record.DeadLetterReason, "no handler") {
		t.Fatalf("expected configuration dead letter without attempts, got attempts=%d reason=%q",
			record.AttemptCount, record.DeadLetterReason)
	}
	if h.handled.Load() != 0 {
		t.Fatal("no handler may run for an unknown type")
	}
}

func TestDecodableTypeWithoutHandlerIsDeadLettered(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })

	outcome, err := h.processor.Process(context.Background(), inbound("m-1", "notes.orphan", `{}`))
	if err != nil || outcome != OutcomeDeadLettered {
		t.Fatalf("expected dead-lettered, got %s %v", outcome, err)
	}
	if len(h.publisher.topics) != 1 {
		t.Fatalf("expected DLQ publish, got %v", h.publisher.topics)
	}
}

func TestInvalidPayloadsArePermanentlyFailed(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	ctx := context.Background()

	outcome, err := h.processor.Process(ctx, inbound("bad-json", "notes.post", `{"text":`))
	if err != nil || outcome != OutcomePermanentlyFailed {
		t.Fatalf("expected permanent failure for undecodable payload, got %s %v", outcome, err)
	}
	outcome, err = h.processor.Process(ctx, inbound("bad-field", "notes.post", `{"text":""}`))
	if err != nil || outcome != OutcomePermanentlyFailed {
		t.Fatalf("expected permanent failure for invalid request, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "bad-field")
	if record.AttemptCount != 0 || !strings.Contains(record.ErrorMessage, "text: cannot be blank") {
		t.Fatalf("expected field failure without attempts, got attempts=%d error=%q", record.AttemptCount, record.ErrorMessage)
	}
	if h.handled.Load() != 0 {
		t.Fatal("handler must not run for invalid requests")
	}
}

func TestCancelledDispatchIsRescheduledWithoutConsumingAttempt(t *testing.T) {
	h := newHarness(t, 3, func(ctx context.Context, _ postNote) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome, err := h.processor.Process(ctx, inbound("m-1", "notes.post", `{"text":"hello"}`))
	if err != nil || outcome != OutcomeRescheduled {
		t.Fatalf("expected rescheduled, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "m-1")
	if record.Status != entities.StatusPending || record.AttemptCount != 0 {
		t.Fatalf("expected pending without attempts, got %s attempts=%d", record.Status, record.AttemptCount)
	}
	if !record.IsDue(h.clock.Now()) {
		t.Fatal("cancelled record must be due immediately")
	}
}

func TestStaleProcessingRecordIsReaped(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	ctx := context.Background()
	registered, err := h.processor.Register.Execute(ctx, inbound("m-1", "notes.post", `{"text":"hello"}`))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := h.processor.StartProcessing.ExecuteRecord(ctx, registered.Record); err != nil {
		t.Fatalf("claim: %v", err)
	}

	reaper := StaleProcessingReaper{Repository: h.store, Fail: h.processor.Fail, Clock: h.clock, LeaseTimeout: 5 * time.Minute}
	if reaped, err := reaper.RunOnce(ctx); err != nil || reaped != 0 {
		t.Fatalf("expected nothing to reap inside the lease, got %d %v", reaped, err)
	}
	h.clock.Advance(6 * time.Minute)
	if reaped, err := reaper.RunOnce(ctx); err != nil || reaped != 1 {
		t.Fatalf("expected one reaped record, got %d %v", reaped, err)
	}
	record := mustGet(t, h, "m-1")
	if record.Status != entities.StatusPending || record.AttemptCount != 1 || record.ErrorMessage != commands.LeaseExpiredReason {
		t.Fatalf("expected lease expiry to count as an attempt, got %+v", record)
	}
}

func TestConcurrentDeliveriesDispatchOnce(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) {
		<-release
		return "ok", nil
	})
	msg := inbound("m-1", "notes.post", `{"text":"hello"}`)

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := h.processor.Process(context.Background(), msg)
			if err != nil {
				t.Errorf("process: %v", err)
			}
			outcomes <- outcome
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(outcomes)

	completed := 0
	for outcome := range outcomes {
		if outcome == OutcomeCompleted {
			completed++
		}
	}
	if completed != 1 || h.handled.Load() != 1 {
		t.Fatalf("expected exactly one completion and dispatch, got %d completions %d dispatches", completed, h.handled.Load())
	}
}

func TestDuplicateContentIsCancelledWhenDetectionEnabled(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	h.processor.Register.DetectContentDuplicates = true
	ctx := context.Background()

	if _, err := h.processor.Process(ctx, inbound("m-1", "notes.post", `{"text":"same"}`)); err != nil {
		t.Fatalf("first: %v", err)
	}
	outcome, err := h.processor.Process(ctx, inbound("m-2", "notes.post", `{"text":"same"}`))
	if err != nil || outcome != OutcomeDuplicateContent {
		t.Fatalf("expected duplicate content, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "m-2")
	if record.Status != entities.StatusCancelled || record.ErrorMessage != "duplicate content of m-1" {
		t.Fatalf("expected cancelled duplicate, got %s %q", record.Status, record.ErrorMessage)
	}
	if h.handled.Load() != 1 {
		t.Fatalf("expected one dispatch, got %d", h.handled.Load())
	}
}

func TestProcessRejectsMessagesWithoutIdentity(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	_, err := h.processor.Process(context.Background(), ports.InboundMessage{TenantID: "tenant-a", MessageType: "notes.post"})
	if !errors.Is(err, domainerrors.ErrInvalidMessage) {
		t.Fatalf("expected invalid message, got %v", err)
	}
}

func TestRetentionCleanerDeletesOnlyOldTerminalRecords(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	ctx := context.Background()
	if _, err := h.processor.Process(ctx, inbound("done", "notes.post", `{"text":"a"}`)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := h.processor.Register.Execute(ctx, inbound("waiting", "notes.post", `{"text":"b"}`)); err != nil {
		t.Fatalf("register: %v", err)
	}

	cleaner := RetentionCleaner{
		Repository:    h.store,
		Cleanup:       commands.CleanupRecordsUseCase{Repository: h.store, Clock: h.clock},
		RetentionDays: 30,
	}
	h.clock.Advance(29 * 24 * time.Hour)
	if deleted, err := cleaner.RunOnce(ctx); err != nil || deleted != 0 {
		t.Fatalf("expected nothing deleted inside the window, got %d %v", deleted, err)
	}
	h.clock.Advance(2 * 24 * time.Hour)
	if deleted, err := cleaner.RunOnce(ctx); err != nil || deleted != 1 {
		t.Fatalf("expected one deletion, got %d %v", deleted, err)
	}
	mustGet(t, h, "waiting")
}

type stubSubscriber struct {
	handlers map[string]func(context.Context, ports.EventEnvelope) error
}

func (s *stubSubscriber) Subscribe(
	_ context.Context,
	topic string,
	_ string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.handlers[topic] = handler
	return nil
}

func TestMessageConsumerMapsEnvelopes(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	subscriber := &stubSubscriber{handlers: map[string]func(context.Context, ports.EventEnvelope) error{}}
	consumer := MessageConsumer{
		Subscriber:  subscriber,
		Processor:   h.processor,
		Topics:      []string{"notes.commands"},
		Concurrency: 2,
		Clock:       h.clock,
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := subscriber.handlers["notes.commands"]
	if handler == nil {
		t.Fatal("expected subscription for notes.commands")
	}
	err := handler(context.Background(), ports.EventEnvelope{
		EventID:          "evt-1",
		EventType:        "notes.post",
		PartitionKeyPath: "tenant_id",
		PartitionKey:     "tenant-a",
		Priority:         4,
		Data:             []byte(`{"text":"from broker"}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	record := mustGet(t, h, "evt-1")
	if record.Status != entities.StatusCompleted || record.SourceTopic != "notes.commands" || record.Priority != 4 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestMessageConsumerAcknowledgesEnvelopesWithoutIdentity(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	subscriber := &stubSubscriber{handlers: map[string]func(context.Context, ports.EventEnvelope) error{}}
	consumer := MessageConsumer{Subscriber: subscriber, Processor: h.processor, Topics: []string{"notes.commands"}, Clock: h.clock}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := subscriber.handlers["notes.commands"](context.Background(), ports.EventEnvelope{
		EventType: "notes.post",
		Data:      []byte(`{"text":"orphan"}`),
	})
	if err != nil {
		t.Fatalf("expected identity-less envelope to be acknowledged, got %v", err)
	}
	if h.handled.Load() != 0 {
		t.Fatalf("expected no dispatch, got %d", h.handled.Load())
	}
}

type tenantNote struct {
	TenantID string `json:"tenant_id"`
	Text     string `json:"text"`
}

func (tenantNote) RequestName() string { return "notes.tenant" }

func (n tenantNote) Tenant() string { return n.TenantID }

type unavailableLookups struct {
	ports.Repository
}

func (unavailableLookups) Get(context.Context, string, string) (entities.ProcessingRecord, error) {
	return entities.ProcessingRecord{}, errors.New("connection reset")
}

func TestPayloadNamingAnotherTenantIsPermanentlyFailed(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	written := map[string]int{}
	registry := mediator.NewRegistry()
	err := mediator.RegisterCommand[tenantNote, string](registry, mediator.HandlerFunc[tenantNote, string](
		func(_ context.Context, n tenantNote) (string, error) {
			written[n.TenantID]++
			return "ok", nil
		}))
	if err != nil {
		t.Fatalf("register handler: %v", err)
	}
	codec := mediator.NewCodec()
	if err := mediator.RegisterJSON[tenantNote](codec); err != nil {
		t.Fatalf("register codec: %v", err)
	}
	h.processor.Decoder = codec
	h.processor.Dispatcher = registry.Build()
	ctx := context.Background()

	outcome, err := h.processor.Process(ctx, inbound("m-1", "notes.tenant", `{"tenant_id":"tenant-b","text":"x"}`))
	if err != nil || outcome != OutcomePermanentlyFailed {
		t.Fatalf("expected permanently failed, got %s %v", outcome, err)
	}
	record := mustGet(t, h, "m-1")
	if record.Status != entities.StatusPermanentlyFailed || !strings.Contains(record.ErrorMessage, "tenant-b") {
		t.Fatalf("expected tenant mismatch failure, got %s %q", record.Status, record.ErrorMessage)
	}
	if len(written) != 0 {
		t.Fatalf("expected no handler call, got %v", written)
	}

	outcome, err = h.processor.Process(ctx, inbound("m-2", "notes.tenant", `{"tenant_id":"tenant-a","text":"x"}`))
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if written["tenant-a"] != 1 {
		t.Fatalf("expected one write for tenant-a, got %v", written)
	}
}

func TestProcessingProceedsWhenProcessedCheckFails(t *testing.T) {
	h := newHarness(t, 3, func(context.Context, postNote) (string, error) { return "ok", nil })
	h.processor.IsProcessed = queries.IsProcessedUseCase{Repository: unavailableLookups{Repository: h.store}}

	outcome, err := h.processor.Process(context.Background(), inbound("m-1", "notes.post", `{"text":"hello"}`))
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if h.handled.Load() != 1 {
		t.Fatalf("expected one dispatch, got %d", h.handled.Load())
	}
}

func TestResendAfterPermanentFailureIsNotTreatedAsDuplicate(t *testing.T) {
	h := newHarness(t, 3, func(_ context.Context, n postNote) (string, error) {
		if n.Text == "broken" {
			return "", mediator.Reject(errors.New("unsupported"))
		}
		return "ok", nil
	})
	h.processor.Register.DetectContentDuplicates = true
	ctx := context.Background()

	outcome, err := h.processor.Process(ctx, inbound("m-1", "notes.post", `{"text":"broken"}`))
	if err != nil || outcome != OutcomePermanentlyFailed {
		t.Fatalf("expected permanently failed, got %s %v", outcome, err)
	}
	outcome, err = h.processor.Process(ctx, inbound("m-2", "notes.post", `{"text":"broken"}`))
	if err != nil || outcome == OutcomeDuplicateContent {
		t.Fatalf("expected the resend to be dispatched, got %s %v", outcome, err)
	}
	if h.handled.Load() != 2 {
		t.Fatalf("expected two dispatches, got %d", h.handled.Load())
	}
}
