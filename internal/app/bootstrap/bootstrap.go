package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	chatservice "agora/contexts/community-experience/chat-service"
	chatmemory "agora/contexts/community-experience/chat-service/adapters/memory"
	chatpostgres "agora/contexts/community-experience/chat-service/adapters/postgres"
	messageledger "agora/contexts/platform-ops/message-ledger"
	ledgermemory "agora/contexts/platform-ops/message-ledger/adapters/memory"
	ledgerpostgres "agora/contexts/platform-ops/message-ledger/adapters/postgres"
	"agora/contexts/platform-ops/message-ledger/domain/services"
	"agora/contexts/platform-ops/message-ledger/ports"
	"agora/internal/platform/config"
	"agora/internal/platform/db"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/messaging"
	"agora/internal/shared/mediator"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	moduleName = "internal/app/bootstrap"

	slowRequestThreshold = 500 * time.Millisecond
	retentionInterval    = time.Hour
)

type broker interface {
	ports.EventPublisher
	ports.EventSubscriber
}

// runtime is everything both processes share: one mediator with the chat
// handlers registered, the ledger wired to the same storage and broker.
type runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	postgres    *db.Postgres
	broker      broker
	closeBroker func() error
	mediator    *mediator.Mediator
	codec       *mediator.Codec
	chat        chatservice.Module
	ledger      messageledger.Module
}

type APIApp struct {
	runtime *runtime
	server  *httpserver.Server
	logger  *slog.Logger
}

type WorkerApp struct {
	runtime      *runtime
	ledger       messageledger.Module
	pollInterval time.Duration
	flags        sweepFlags
	logger       *slog.Logger
}

type sweepFlags struct {
	retries   bool
	stale     bool
	retention bool
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := buildRuntime(cfg, "api", os.Stdout)
	if err != nil {
		return nil, err
	}
	server := httpserver.New(rt.ledger, rt.chat.HTTPHandler(rt.mediator), rt.logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		runtime: rt,
		server:  server,
		logger:  rt.logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rt, err := buildRuntime(cfg, "worker", os.Stdout)
	if err != nil {
		return nil, err
	}
	return newWorkerApp(rt), nil
}

// BuildLedger exposes the wired ledger to operator tooling without starting
// any server or consumer.
func BuildLedger(logOutput io.Writer) (messageledger.Module, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return messageledger.Module{}, nil, err
	}
	rt, err := buildRuntime(cfg, "cli", logOutput)
	if err != nil {
		return messageledger.Module{}, nil, err
	}
	return rt.ledger, rt.close, nil
}

func newWorkerApp(rt *runtime) *WorkerApp {
	return &WorkerApp{
		runtime:      rt,
		ledger:       rt.ledger,
		pollInterval: rt.cfg.Worker.PollInterval,
		flags: sweepFlags{
			retries:   rt.cfg.EnableRetryScheduler,
			stale:     rt.cfg.EnableStaleReaper,
			retention: rt.cfg.EnableRetentionCleaner,
		},
		logger: rt.logger,
	}
}

func buildRuntime(cfg config.Config, process string, logOutput io.Writer) (*runtime, error) {
	logger, err := newLogger(cfg, logOutput)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.ServiceName, "process", process)

	rt := &runtime{cfg: cfg, logger: logger}
	rt.broker, rt.closeBroker, err = newBroker(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		ledgerDeps messageledger.Dependencies
		chatDeps   chatservice.Dependencies
		ledgerMem  *ledgermemory.Store
		chatMem    *chatmemory.Store
	)
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores",
			"event", "bootstrap_in_memory_storage",
			"module", moduleName,
			"layer", "platform",
		)
		ledgerMem = ledgermemory.NewStore(logger)
		chatMem = chatmemory.NewStore()
		ledgerDeps = messageledger.Dependencies{
			Repository:  ledgerMem,
			Clock:       ledgerMem,
			IDGenerator: ledgerMem,
			Random:      ledgerMem,
		}
		chatDeps = chatservice.Dependencies{
			Repository:  chatMem,
			IDGenerator: chatMem,
			Clock:       chatMem,
		}
	} else {
		pg, err := db.Connect(cfg.PostgresDSN, db.Options{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			_ = rt.closeBroker()
			return nil, err
		}
		rt.postgres = pg
		if err := ledgerpostgres.Migrate(pg.DB); err != nil {
			_ = rt.close()
			return nil, fmt.Errorf("migrate message ledger: %w", err)
		}
		if err := chatpostgres.Migrate(pg.DB); err != nil {
			_ = rt.close()
			return nil, fmt.Errorf("migrate chat: %w", err)
		}
		ledgerDeps = messageledger.Dependencies{
			Repository:  ledgerpostgres.NewRepository(pg.DB, logger),
			Clock:       ledgerpostgres.SystemClock{},
			IDGenerator: ledgerpostgres.UUIDGenerator{},
			Random:      ledgerpostgres.JitterSource{},
		}
		chatDeps = chatservice.Dependencies{
			Repository:  chatpostgres.NewRepository(pg.DB, logger),
			IDGenerator: chatpostgres.UUIDGenerator{},
			Clock:       ledgerpostgres.SystemClock{},
		}
	}

	chatDeps.Logger = logger
	rt.chat = chatservice.NewModule(chatDeps)
	rt.chat.Store = chatMem

	rt.mediator, rt.codec, err = buildMediator(rt.chat, logger)
	if err != nil {
		_ = rt.close()
		return nil, err
	}

	ledgerDeps.Publisher = rt.broker
	ledgerDeps.Subscriber = rt.broker
	ledgerDeps.Dispatcher = rt.mediator
	ledgerDeps.Decoder = rt.codec
	ledgerDeps.WorkerID = workerID(process)
	ledgerDeps.Topics = cfg.KafkaTopics
	ledgerDeps.ConsumerGroup = cfg.KafkaConsumerGroup
	ledgerDeps.Concurrency = cfg.Worker.Concurrency
	ledgerDeps.MaxAttempts = cfg.Ledger.MaxAttempts
	ledgerDeps.Backoff = services.BackoffPolicy{
		BaseDelay:   cfg.Ledger.BaseDelay,
		MaxDelay:    cfg.Ledger.MaxDelay,
		JitterRatio: services.DefaultJitterRatio,
	}
	ledgerDeps.LeaseTimeout = cfg.Ledger.LeaseTimeout
	ledgerDeps.RetentionDays = cfg.Ledger.RetentionDays
	ledgerDeps.RetryBatchSize = cfg.Ledger.RetryBatchSize
	ledgerDeps.DetectContentDuplicates = cfg.Ledger.DetectContentDuplicates
	ledgerDeps.Logger = logger
	rt.ledger = messageledger.NewModule(ledgerDeps)
	rt.ledger.Store = ledgerMem
	return rt, nil
}

// buildMediator registers every bounded context's handlers behind one
// pipeline. Recovery is outermost so a panicking behavior is still reported.
func buildMediator(chat chatservice.Module, logger *slog.Logger) (*mediator.Mediator, *mediator.Codec, error) {
	registry := mediator.NewRegistry()
	registry.Use(
		mediator.Recovery(logger),
		mediator.Logging(logger),
		mediator.Validation(),
		mediator.Performance(logger, slowRequestThreshold),
	)
	codec := mediator.NewCodec()
	if err := chat.Register(registry, codec); err != nil {
		return nil, nil, fmt.Errorf("register chat handlers: %w", err)
	}
	return registry.Build(), codec, nil
}

func newBroker(cfg config.Config, logger *slog.Logger) (broker, func() error, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, using in-process bus",
			"event", "bootstrap_in_process_bus",
			"module", moduleName,
			"layer", "platform",
		)
		return messaging.NewBus(logger), func() error { return nil }, nil
	}
	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, cfg.ServiceName, logger)
	if err != nil {
		return nil, nil, err
	}
	return kafka, kafka.Close, nil
}

func newLogger(cfg config.Config, output io.Writer) (*slog.Logger, error) {
	if output == nil {
		output = os.Stdout
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(output, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(output, opts)), nil
}

func workerID(process string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%s-%d", host, process, os.Getpid())
}

func (rt *runtime) close() error {
	var errs []error
	if rt.closeBroker != nil {
		errs = append(errs, rt.closeBroker())
	}
	if rt.postgres != nil {
		errs = append(errs, rt.postgres.Close())
	}
	return errors.Join(errs...)
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", moduleName,
		"layer", "platform",
	)
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (a *APIApp) Close() error {
	return a.runtime.close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.ledger.Consumer.Start(ctx); err != nil {
		return err
	}

	pollInterval := w.pollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", moduleName,
		"layer", "platform",
		"poll_interval", pollInterval.String(),
	)

	var lastRetention time.Time
	for {
		lastRetention = w.sweep(ctx, lastRetention)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sweep runs one pass of the periodic jobs. Failures are logged and retried
// on the next tick; the broker consumer keeps running either way.
func (w *WorkerApp) sweep(ctx context.Context, lastRetention time.Time) time.Time {
	if w.flags.stale {
		if _, err := w.ledger.StaleReaper.RunOnce(ctx); err != nil {
			w.logSweepFailure("stale_reaper", err)
		}
	}
	if w.flags.retries {
		if _, err := w.ledger.RetryScheduler.RunOnce(ctx); err != nil {
			w.logSweepFailure("retry_scheduler", err)
		}
	}
	if w.flags.retention && time.Since(lastRetention) >= retentionInterval {
		if _, err := w.ledger.RetentionCleaner.RunOnce(ctx); err != nil {
			w.logSweepFailure("retention_cleaner", err)
			return lastRetention
		}
		return time.Now()
	}
	return lastRetention
}

func (w *WorkerApp) logSweepFailure(job string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	w.logger.Error("worker sweep failed",
		"event", "bootstrap_worker_sweep_failed",
		"module", moduleName,
		"layer", "platform",
		"job", job,
		"error", err.Error(),
	)
}

func (w *WorkerApp) Close() error {
	return w.runtime.close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
