package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	"agora/contexts/platform-ops/message-ledger/ports"
)

type CleanupRecordsResult struct {
	TenantID string
	Cutoff   time.Time
	Deleted  int64
}

// CleanupRecordsUseCase deletes terminal records older than the retention
// window. Pending, processing and failed records are never touched.
type CleanupRecordsUseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u CleanupRecordsUseCase) Execute(ctx context.Context, tenantID string, retentionDays int) (CleanupRecordsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(tenantID) == "" {
		return CleanupRecordsResult{}, domainerrors.ErrInvalidRequest
	}
	if retentionDays <= 0 {
		return CleanupRecordsResult{}, domainerrors.ErrInvalidRetention
	}
	cutoff := currentTime(u.Clock).Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err := u.Repository.DeleteTerminalBefore(ctx, tenantID, cutoff)
	if err != nil {
		logger.Error("retention cleanup failed",
			"event", "ledger_cleanup_failed",
			"module", moduleName,
			"layer", "application",
			"tenant_id", tenantID,
			"error", err.Error(),
		)
		return CleanupRecordsResult{}, err
	}
	logger.Info("retention cleanup finished",
		"event", "ledger_cleanup_finished",
		"module", moduleName,
		"layer", "application",
		"tenant_id", tenantID,
		"retention_days", retentionDays,
		"deleted", deleted,
	)
	return CleanupRecordsResult{TenantID: tenantID, Cutoff: cutoff, Deleted: deleted}, nil
}
