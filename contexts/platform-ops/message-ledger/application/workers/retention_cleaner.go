package workers

import (
	"context"
	"log/slog"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/application/commands"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const defaultRetentionDays = 30

type RetentionCleaner struct {
	Repository    ports.Repository
	Cleanup       commands.CleanupRecordsUseCase
	RetentionDays int
	Logger        *slog.Logger
}

func (c RetentionCleaner) RunOnce(ctx context.Context) (int64, error) {
	logger := application.ResolveLogger(c.Logger)
	days := c.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	tenants, err := c.Repository.ListTenants(ctx)
	if err != nil {
		logger.Error("retention sweep failed listing tenants",
			"event", "ledger_retention_tenants_failed",
			"module", moduleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	var total int64
	for _, tenantID := range tenants {
		result, err := c.Cleanup.Execute(ctx, tenantID, days)
		if err != nil {
			return total, err
		}
		total += result.Deleted
	}
	return total, nil
}
