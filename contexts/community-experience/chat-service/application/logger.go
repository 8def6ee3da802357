package application

import "log/slog"

const moduleName = "community-experience/chat-service"

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
