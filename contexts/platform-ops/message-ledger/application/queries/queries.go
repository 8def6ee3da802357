package queries

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/domain/entities"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const (
	moduleName = application.ModuleName

	defaultRetryBatch     = 100
	maxRetryBatch         = 1000
	defaultDeadLetterTake = 50
	maxDeadLetterTake     = 500
)

// IsProcessedUseCase answers whether a message already completed. It fails
// open: a storage error is logged and reported as not processed, since the
// claim step still prevents double completion.
type IsProcessedUseCase struct {
	Repository ports.Repository
	Logger     *slog.Logger
}

func (u IsProcessedUseCase) Execute(ctx context.Context, tenantID string, messageID string) bool {
	logger := application.ResolveLogger(u.Logger)
	record, err := u.Repository.Get(ctx, tenantID, messageID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrRecordNotFound) {
			logger.Warn("processed check failed open",
				"event", "ledger_is_processed_failed_open",
				"module", moduleName,
				"layer", "application",
				"tenant_id", tenantID,
				"message_id", messageID,
				"error", err.Error(),
			)
		}
		return false
	}
	return record.Status == entities.StatusCompleted
}

type GetRecordUseCase struct {
	Repository ports.Repository
}

func (u GetRecordUseCase) Execute(ctx context.Context, tenantID string, messageID string) (entities.ProcessingRecord, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(messageID) == "" {
		return entities.ProcessingRecord{}, domainerrors.ErrInvalidRequest
	}
	return u.Repository.Get(ctx, tenantID, messageID)
}

// GetReadyForRetryUseCase lists due pending records, most urgent first.
type GetReadyForRetryUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
}

func (u GetReadyForRetryUseCase) Execute(ctx context.Context, tenantID string, maxCount int) ([]entities.ProcessingRecord, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domainerrors.ErrInvalidRequest
	}
	if maxCount <= 0 {
		maxCount = defaultRetryBatch
	}
	if maxCount > maxRetryBatch {
		maxCount = maxRetryBatch
	}
	return u.Repository.ListReadyForRetry(ctx, tenantID, currentTime(u.Clock), maxCount)
}

type GetDeadLetteredUseCase struct {
	Repository ports.Repository
}

func (u GetDeadLetteredUseCase) Execute(ctx context.Context, filter ports.DeadLetterFilter) ([]entities.ProcessingRecord, error) {
	if strings.TrimSpace(filter.TenantID) == "" || filter.Skip < 0 {
		return nil, domainerrors.ErrInvalidRequest
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, domainerrors.ErrInvalidRequest
	}
	if filter.Take <= 0 {
		filter.Take = defaultDeadLetterTake
	}
	if filter.Take > maxDeadLetterTake {
		filter.Take = maxDeadLetterTake
	}
	return u.Repository.ListDeadLettered(ctx, filter)
}

type GetStatisticsUseCase struct {
	Repository ports.Repository
}

func (u GetStatisticsUseCase) Execute(ctx context.Context, tenantID string) (entities.Statistics, error) {
	if strings.TrimSpace(tenantID) == "" {
		return entities.Statistics{}, domainerrors.ErrInvalidRequest
	}
	return u.Repository.Statistics(ctx, tenantID)
}

type FindByContentHashUseCase struct {
	Repository ports.Repository
}

func (u FindByContentHashUseCase) Execute(ctx context.Context, tenantID string, contentHash string) (entities.ProcessingRecord, bool, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(contentHash) == "" {
		return entities.ProcessingRecord{}, false, domainerrors.ErrInvalidRequest
	}
	return u.Repository.FindByContentHash(ctx, tenantID, strings.ToLower(contentHash))
}

// IsContentProcessed reports whether any completed record carries the hash.
func (u FindByContentHashUseCase) IsContentProcessed(ctx context.Context, tenantID string, contentHash string) (bool, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(contentHash) == "" {
		return false, domainerrors.ErrInvalidRequest
	}
	_, found, err := u.Repository.FindByContentHash(ctx, tenantID, strings.ToLower(contentHash), entities.StatusCompleted)
	return found, err
}

func currentTime(clock ports.Clock) time.Time {
	if clock != nil {
		return clock.Now().UTC()
	}
	return time.Now().UTC()
}
