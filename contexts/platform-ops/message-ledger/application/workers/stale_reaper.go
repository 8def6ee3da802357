package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const defaultLeaseTimeout = 5 * time.Minute

// StaleProcessingReaper fails records whose worker stopped reporting. An
// expired lease counts as an attempt, so a message that keeps crashing its
// worker still reaches the dead-letter queue.
type StaleProcessingReaper struct {
	Repository   ports.Repository
	Fail         commands.FailProcessingUseCase
	Clock        ports.Clock
	LeaseTimeout time.Duration
	BatchSize    int
	Logger       *slog.Logger
}

func (r StaleProcessingReaper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	startedBefore := currentTime(r.Clock).Add(-r.leaseTimeout())
	batch := r.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatchSize
	}

	stale, err := r.Repository.ListStaleProcessing(ctx, startedBefore, batch)
	if err != nil {
		logger.Error("stale processing sweep failed",
			"event", "ledger_stale_sweep_failed",
			"module", moduleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	reaped := 0
	for _, record := range stale {
		_, err := r.Fail.ExecuteRecord(ctx, record, commands.FailProcessingCommand{
			TenantID:     record.TenantID,
			MessageID:    record.MessageID,
			ErrorMessage: commands.LeaseExpiredReason,
		})
		if err != nil {
			if errors.Is(err, domainerrors.ErrStatusConflict) {
				// The worker finished after all.
				continue
			}
			logger.Error("stale processing record could not be released",
				"event", "ledger_stale_release_failed",
				"module", moduleName,
				"layer", "worker",
				"tenant_id", record.TenantID,
				"message_id", record.MessageID,
				"error", err.Error(),
			)
			continue
		}
		reaped++
		logger.Warn("processing lease expired",
			"event", "ledger_lease_expired",
			"module", moduleName,
			"layer", "worker",
			"tenant_id", record.TenantID,
			"message_id", record.MessageID,
			"claimed_by", record.ClaimedBy,
		)
	}
	return reaped, nil
}

func (r StaleProcessingReaper) leaseTimeout() time.Duration {
	if r.LeaseTimeout <= 0 {
		return defaultLeaseTimeout
	}
	return r.LeaseTimeout
}
