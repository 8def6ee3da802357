package commands

import (
	"time"

	application "agora/contexts/platform-ops/message-ledger/application"
	"agora/contexts/platform-ops/message-ledger/ports"
)

const moduleName = application.ModuleName

func currentTime(clock ports.Clock) time.Time {
	if clock != nil {
		return clock.Now().UTC()
	}
	return time.Now().UTC()
}
