package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGER_MAX_ATTEMPTS", "")
	t.Setenv("KAFKA_TOPICS", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.MaxAttempts != 5 || cfg.Ledger.BaseDelay != 30*time.Second || cfg.Ledger.MaxDelay != time.Hour {
		t.Fatalf("unexpected ledger defaults %+v", cfg.Ledger)
	}
	if cfg.Ledger.LeaseTimeout != 5*time.Minute || cfg.Ledger.RetentionDays != 30 {
		t.Fatalf("unexpected lease/retention defaults %+v", cfg.Ledger)
	}
	if len(cfg.KafkaTopics) != 1 || cfg.KafkaTopics[0] != "chat.commands" {
		t.Fatalf("unexpected topics %v", cfg.KafkaTopics)
	}
	if !cfg.EnableRetryScheduler || !cfg.EnableStaleReaper {
		t.Fatal("expected sweeps enabled by default")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_TOPICS", "chat.commands,billing.commands")
	t.Setenv("LEDGER_MAX_ATTEMPTS", "3")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("ENABLE_RETENTION_CLEANER", "off")
	t.Setenv("LEDGER_DETECT_CONTENT_DUPLICATES", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if len(cfg.KafkaTopics) != 2 || cfg.Ledger.MaxAttempts != 3 || cfg.Worker.Concurrency != 16 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.EnableRetentionCleaner || !cfg.Ledger.DetectContentDuplicates {
		t.Fatalf("boolean overrides not applied: %+v", cfg)
	}
}

func TestLoadCollectsInvalidValues(t *testing.T) {
	t.Setenv("LEDGER_MAX_ATTEMPTS", "many")
	t.Setenv("WORKER_CONCURRENCY", "-1")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, key := range []string{"LEDGER_MAX_ATTEMPTS", "WORKER_CONCURRENCY", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err.Error())
		}
	}
}
