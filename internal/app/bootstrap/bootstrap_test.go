package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"agora/contexts/community-experience/chat-service/application"
	"agora/contexts/community-experience/chat-service/ports"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	contractsv1 "agora/contracts/gen/events/v1"
	"agora/internal/platform/config"
)

func testConfig() config.Config {
	return config.Config{
		ServiceName:        "agora-test",
		HTTPPort:           "0",
		LogLevel:           "error",
		LogFormat:          "text",
		KafkaConsumerGroup: "test-cg",
		KafkaTopics:        []string{"chat.commands"},
		Ledger: config.LedgerConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			MaxDelay:       time.Minute,
			LeaseTimeout:   time.Minute,
			RetentionDays:  7,
			RetryBatchSize: 10,
		},
		Worker: config.WorkerConfig{
			Concurrency:  2,
			PollInterval: 10 * time.Millisecond,
		},
		EnableRetryScheduler:   true,
		EnableStaleReaper:      true,
		EnableRetentionCleaner: true,
	}
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9090":  ":9090",
		":7070": ":7070",
	}
	for input, want := range cases {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "chatty"
	if _, err := newLogger(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "info"
	cfg.LogFormat = "json"
	var out bytes.Buffer
	logger, err := newLogger(cfg, &out)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", "event", "test_event")
	if !strings.Contains(out.String(), `"event":"test_event"`) {
		t.Fatalf("expected json output, got %s", out.String())
	}
}

func TestBuildRuntimeRegistersChatOnMediator(t *testing.T) {
	rt, err := buildRuntime(testConfig(), "test", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer func() { _ = rt.close() }()

	for _, name := range []string{
		application.PostMessageName,
		application.EditMessageName,
		application.DeleteMessageName,
		application.ListMessagesName,
	} {
		if !rt.mediator.Has(name) {
			t.Fatalf("expected %s to be routed", name)
		}
	}
	types := rt.codec.MessageTypes()
	if len(types) != 3 {
		t.Fatalf("expected decoders for the three chat commands, got %v", types)
	}
	if rt.ledger.Store == nil || rt.chat.Store == nil {
		t.Fatalf("expected in-memory stores without POSTGRES_DSN")
	}
}

func TestWorkerProcessesBrokerCommandsThroughLedger(t *testing.T) {
	rt, err := buildRuntime(testConfig(), "worker", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer func() { _ = rt.close() }()
	worker := newWorkerApp(rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	payload, _ := json.Marshal(application.PostMessage{
		TenantID:  "tenant-a",
		ChannelID: "general",
		UserID:    "alice",
		Content:   "from the broker",
	})
	event := contractsv1.Envelope{
		EventID:    "evt-1",
		EventType:  application.PostMessageName,
		TenantID:   "tenant-a",
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}

	deadline := time.Now().Add(2 * time.Second)
	var record entities.ProcessingRecord
	for time.Now().Before(deadline) {
		// Subscription happens inside Run; republishing is harmless because
		// the ledger deduplicates on (tenant, message id).
		_ = rt.broker.Publish(ctx, "chat.commands", event)
		record, err = rt.ledger.Store.Get(ctx, "tenant-a", "evt-1")
		if err == nil && record.Status == entities.StatusCompleted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if record.Status != entities.StatusCompleted {
		t.Fatalf("expected completed ledger record, got %+v (err=%v)", record, err)
	}

	messages, err := rt.chat.Store.ListMessages(ctx, ports.ListMessagesInput{
		TenantID:  "tenant-a",
		ChannelID: "general",
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected exactly one posted message, got %d", len(messages))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestWorkerRefusesCommandsForAnotherTenant(t *testing.T) {
	rt, err := buildRuntime(testConfig(), "worker", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer func() { _ = rt.close() }()
	worker := newWorkerApp(rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	payload, _ := json.Marshal(application.PostMessage{
		TenantID:  "tenant-b",
		ChannelID: "general",
		UserID:    "mallory",
		Content:   "crossing tenants",
	})
	event := contractsv1.Envelope{
		EventID:    "evt-2",
		EventType:  application.PostMessageName,
		TenantID:   "tenant-a",
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}

	deadline := time.Now().Add(2 * time.Second)
	var record entities.ProcessingRecord
	for time.Now().Before(deadline) {
		_ = rt.broker.Publish(ctx, "chat.commands", event)
		record, err = rt.ledger.Store.Get(ctx, "tenant-a", "evt-2")
		if err == nil && record.Status == entities.StatusPermanentlyFailed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if record.Status != entities.StatusPermanentlyFailed {
		t.Fatalf("expected permanently failed ledger record, got %+v (err=%v)", record, err)
	}

	for _, tenant := range []string{"tenant-a", "tenant-b"} {
		messages, err := rt.chat.Store.ListMessages(ctx, ports.ListMessagesInput{
			TenantID:  tenant,
			ChannelID: "general",
			Limit:     10,
		})
		if err != nil {
			t.Fatalf("list messages for %s: %v", tenant, err)
		}
		if len(messages) != 0 {
			t.Fatalf("expected no messages for %s, got %d", tenant, len(messages))
		}
	}

	cancel()
	<-done
}
