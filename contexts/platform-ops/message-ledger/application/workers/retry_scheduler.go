package workers

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const defaultRetryBatchSize = 100

// RetryScheduler re-dispatches due pending records from their stored payload,
// so retries do not depend on broker redelivery.
type RetryScheduler struct {
	Repository  ports.Repository
	Processor   MessageProcessor
	Clock       ports.Clock
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
}

func (s RetryScheduler) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	tenants, err := s.Repository.ListTenants(ctx)
	if err != nil {
		logger.Error("retry sweep failed listing tenants",
			"event", "ledger_retry_sweep_tenants_failed",
			"module", moduleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	var dispatched atomic.Int64
	for _, tenantID := range tenants {
		records, err := s.Repository.ListReadyForRetry(ctx, tenantID, currentTime(s.Clock), s.batchSize())
		if err != nil {
			logger.Error("retry sweep failed listing records",
				"event", "ledger_retry_sweep_list_failed",
				"module", moduleName,
				"layer", "worker",
				"tenant_id", tenantID,
				"error", err.Error(),
			)
			return int(dispatched.Load()), err
		}
		if len(records) == 0 {
			continue
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.concurrency())
		for _, record := range records {
			group.Go(func() error {
				outcome, err := s.Processor.Execute(groupCtx, record)
				if err != nil {
					logger.Error("retry dispatch failed",
						"event", "ledger_retry_dispatch_failed",
						"module", moduleName,
						"layer", "worker",
						"tenant_id", record.TenantID,
						"message_id", record.MessageID,
						"error", err.Error(),
					)
					return nil
				}
				if outcome != OutcomeInFlight && outcome != OutcomeNotDue {
					dispatched.Add(1)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return int(dispatched.Load()), err
		}
	}

	if count := dispatched.Load(); count > 0 {
		logger.Info("retry sweep completed",
			"event", "ledger_retry_sweep_completed",
			"module", moduleName,
			"layer", "worker",
			"dispatched_count", count,
		)
	}
	return int(dispatched.Load()), ctx.Err()
}

func (s RetryScheduler) batchSize() int {
	if s.BatchSize <= 0 {
		return defaultRetryBatchSize
	}
	return s.BatchSize
}

func (s RetryScheduler) concurrency() int {
	if s.Concurrency <= 0 {
		return defaultConcurrency
	}
	return s.Concurrency
}
