package application

import "log/slog"

const ModuleName = "platform-ops/message-ledger"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
