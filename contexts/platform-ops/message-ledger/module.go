package messageledger

import (
	"log/slog"
	"time"

	httpadapter "agora/contexts/platform-ops/message-ledger/adapters/http"
	"agora/contexts/platform-ops/message-ledger/adapters/memory"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	"agora/contexts/platform-ops/message-ledger/application/queries"
	"agora/contexts/platform-ops/message-ledger/application/workers"
	"agora/contexts/platform-ops/message-ledger/domain/services"
	"agora/contexts/platform-ops/message-ledger/ports"
)

// Module is the composition surface for the message ledger. The HTTP server
// consumes Handler; the worker process runs Consumer and the periodic sweeps.
type Module struct {
	Handler          httpadapter.Handler
	Processor        workers.MessageProcessor
	Consumer         workers.MessageConsumer
	RetryScheduler   workers.RetryScheduler
	StaleReaper      workers.StaleProcessingReaper
	RetentionCleaner workers.RetentionCleaner
	Store            *memory.Store
}

type Dependencies struct {
	Repository              ports.Repository
	Clock                   ports.Clock
	IDGenerator             ports.IDGenerator
	Random                  ports.RandomSource
	Publisher               ports.EventPublisher
	Subscriber              ports.EventSubscriber
	Dispatcher              ports.Dispatcher
	Decoder                 ports.RequestDecoder
	WorkerID                string
	Topics                  []string
	ConsumerGroup           string
	Concurrency             int
	MaxAttempts             int
	Backoff                 services.BackoffPolicy
	LeaseTimeout            time.Duration
	RetentionDays           int
	RetryBatchSize          int
	DetectContentDuplicates bool
	Logger                  *slog.Logger
}

// NewModule wires the ledger use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	isProcessed := queries.IsProcessedUseCase{Repository: deps.Repository, Logger: deps.Logger}
	register := commands.RegisterMessageUseCase{
		Repository:              deps.Repository,
		IDGenerator:             deps.IDGenerator,
		Clock:                   deps.Clock,
		MaxAttempts:             deps.MaxAttempts,
		DetectContentDuplicates: deps.DetectContentDuplicates,
		Logger:                  deps.Logger,
	}
	startProcessing := commands.StartProcessingUseCase{
		Repository: deps.Repository,
		Clock:      deps.Clock,
		WorkerID:   deps.WorkerID,
		Logger:     deps.Logger,
	}
	complete := commands.CompleteProcessingUseCase{Repository: deps.Repository, Clock: deps.Clock, Logger: deps.Logger}
	fail := commands.FailProcessingUseCase{
		Repository: deps.Repository,
		Clock:      deps.Clock,
		Random:     deps.Random,
		Backoff:    deps.Backoff,
		Publisher:  deps.Publisher,
		Logger:     deps.Logger,
	}
	markDeadLettered := commands.MarkDeadLetteredUseCase{
		Repository: deps.Repository,
		Clock:      deps.Clock,
		Publisher:  deps.Publisher,
		Logger:     deps.Logger,
	}
	retryDeadLettered := commands.RetryDeadLetteredUseCase{Repository: deps.Repository, Clock: deps.Clock, Logger: deps.Logger}
	permanentlyFail := commands.PermanentlyFailUseCase{Repository: deps.Repository, Clock: deps.Clock, Logger: deps.Logger}
	cancel := commands.CancelMessageUseCase{Repository: deps.Repository, Clock: deps.Clock, Logger: deps.Logger}
	cleanup := commands.CleanupRecordsUseCase{Repository: deps.Repository, Clock: deps.Clock, Logger: deps.Logger}

	processor := workers.MessageProcessor{
		IsProcessed:      isProcessed,
		Register:         register,
		StartProcessing:  startProcessing,
		Complete:         complete,
		Fail:             fail,
		MarkDeadLettered: markDeadLettered,
		PermanentlyFail:  permanentlyFail,
		Decoder:          deps.Decoder,
		Dispatcher:       deps.Dispatcher,
		Clock:            deps.Clock,
		Logger:           deps.Logger,
	}

	handler := httpadapter.Handler{
		GetRecord:         queries.GetRecordUseCase{Repository: deps.Repository},
		IsProcessed:       isProcessed,
		ReadyForRetry:     queries.GetReadyForRetryUseCase{Repository: deps.Repository, Clock: deps.Clock},
		DeadLettered:      queries.GetDeadLetteredUseCase{Repository: deps.Repository},
		Statistics:        queries.GetStatisticsUseCase{Repository: deps.Repository},
		ContentLookup:     queries.FindByContentHashUseCase{Repository: deps.Repository},
		MarkDeadLettered:  markDeadLettered,
		RetryDeadLettered: retryDeadLettered,
		PermanentlyFail:   permanentlyFail,
		Cancel:            cancel,
		Cleanup:           cleanup,
		Logger:            deps.Logger,
	}

	return Module{
		Handler:   handler,
		Processor: processor,
		Consumer: workers.MessageConsumer{
			Subscriber:    deps.Subscriber,
			Processor:     processor,
			Topics:        deps.Topics,
			ConsumerGroup: deps.ConsumerGroup,
			Concurrency:   deps.Concurrency,
			Clock:         deps.Clock,
			Logger:        deps.Logger,
		},
		RetryScheduler: workers.RetryScheduler{
			Repository:  deps.Repository,
			Processor:   processor,
			Clock:       deps.Clock,
			BatchSize:   deps.RetryBatchSize,
			Concurrency: deps.Concurrency,
			Logger:      deps.Logger,
		},
		StaleReaper: workers.StaleProcessingReaper{
			Repository:   deps.Repository,
			Fail:         fail,
			Clock:        deps.Clock,
			LeaseTimeout: deps.LeaseTimeout,
			BatchSize:    deps.RetryBatchSize,
			Logger:       deps.Logger,
		},
		RetentionCleaner: workers.RetentionCleaner{
			Repository:    deps.Repository,
			Cleanup:       cleanup,
			RetentionDays: deps.RetentionDays,
			Logger:        deps.Logger,
		},
	}
}

// NewInMemoryModule wires the ledger against the in-memory store. Used by
// tests and by local runs without POSTGRES_DSN.
func NewInMemoryModule(
	dispatcher ports.Dispatcher,
	decoder ports.RequestDecoder,
	bus interface {
		ports.EventPublisher
		ports.EventSubscriber
	},
	logger *slog.Logger,
) Module {
	store := memory.NewStore(logger)
	deps := Dependencies{
		Repository:  store,
		Clock:       store,
		IDGenerator: store,
		Random:      store,
		Dispatcher:  dispatcher,
		Decoder:     decoder,
		WorkerID:    "local",
		MaxAttempts: services.DefaultMaxAttempts,
		Backoff:     services.DefaultBackoffPolicy(),
		Logger:      logger,
	}
	if bus != nil {
		deps.Publisher = bus
		deps.Subscriber = bus
	}
	module := NewModule(deps)
	module.Store = store
	return module
}
