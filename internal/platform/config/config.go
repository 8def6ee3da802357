package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	KafkaBrokers       []string
	KafkaConsumerGroup string
	KafkaTopics        []string

	Ledger LedgerConfig
	Worker WorkerConfig

	EnableRetryScheduler   bool
	EnableStaleReaper      bool
	EnableRetentionCleaner bool
}

type LedgerConfig struct {
	MaxAttempts             int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	LeaseTimeout            time.Duration
	RetentionDays           int
	RetryBatchSize          int
	DetectContentDuplicates bool
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

// Load reads an optional .env file and then the process environment.
// Every malformed value is reported in one error.
func Load() (Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}
	cfg := Config{
		ServiceName: ldr.getString("SERVICE_NAME", "agora"),
		HTTPPort:    ldr.getString("HTTP_PORT", "8080"),
		PostgresDSN: ldr.getString("POSTGRES_DSN", ""),
		LogLevel:    strings.ToLower(ldr.getString("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(ldr.getString("LOG_FORMAT", "json")),

		KafkaBrokers:       ldr.getStringSlice("KAFKA_BROKERS"),
		KafkaConsumerGroup: ldr.getString("KAFKA_CONSUMER_GROUP", "message-ledger-cg"),
		KafkaTopics:        ldr.getStringSlice("KAFKA_TOPICS"),

		Ledger: LedgerConfig{
			MaxAttempts:             ldr.getPositiveInt("LEDGER_MAX_ATTEMPTS", 5),
			BaseDelay:               ldr.getSeconds("LEDGER_BASE_DELAY_SECONDS", 30),
			MaxDelay:                ldr.getSeconds("LEDGER_MAX_DELAY_SECONDS", 3600),
			LeaseTimeout:            ldr.getSeconds("LEDGER_LEASE_TIMEOUT_SECONDS", 300),
			RetentionDays:           ldr.getPositiveInt("LEDGER_RETENTION_DAYS", 30),
			RetryBatchSize:          ldr.getPositiveInt("LEDGER_RETRY_BATCH_SIZE", 100),
			DetectContentDuplicates: envBool("LEDGER_DETECT_CONTENT_DUPLICATES", false),
		},
		Worker: WorkerConfig{
			Concurrency:  ldr.getPositiveInt("WORKER_CONCURRENCY", 8),
			PollInterval: ldr.getSeconds("WORKER_POLL_INTERVAL_SECONDS", 2),
		},

		EnableRetryScheduler:   envBool("ENABLE_RETRY_SCHEDULER", true),
		EnableStaleReaper:      envBool("ENABLE_STALE_REAPER", true),
		EnableRetentionCleaner: envBool("ENABLE_RETENTION_CLEANER", true),
	}
	if len(cfg.KafkaTopics) == 0 {
		cfg.KafkaTopics = []string{"chat.commands"}
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		ldr.addError("LOG_FORMAT must be json or text")
	}
	if cfg.Ledger.MaxDelay < cfg.Ledger.BaseDelay {
		ldr.addError("LEDGER_MAX_DELAY_SECONDS must not be below LEDGER_BASE_DELAY_SECONDS")
	}

	if err := ldr.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) addError(msg string) {
	l.errs = append(l.errs, msg)
}

func (l *envLoader) getString(key string, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func (l *envLoader) getStringSlice(key string) []string {
	var out []string
	for _, value := range strings.Split(os.Getenv(key), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func (l *envLoader) getPositiveInt(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		l.addError(fmt.Sprintf("%s must be a positive integer", key))
		return def
	}
	return i
}

func (l *envLoader) getSeconds(key string, def int) time.Duration {
	return time.Duration(l.getPositiveInt(key, def)) * time.Second
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
