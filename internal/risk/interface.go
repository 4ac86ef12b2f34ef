package risk

import (
	"context"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
)

// Gate approves or rejects a single candidate trade
type Gate interface {
	// Evaluate returns an error only for malformed input; breached limits are
	// reported as Decision.Violations.
	Evaluate(req Request) (Decision, error)
}

// KillSwitchReader is the read side of the kill switch consulted by the gate
type KillSwitchReader interface {
	IsActive() (bool, string)
}

// KillSwitch is what the threshold monitor needs from the kill switch
type KillSwitch interface {
	KillSwitchReader
	Activate(reason string) error
}

// AlertSender forwards risk events to the alert dispatcher
type AlertSender interface {
	Send(ctx context.Context, req alerts.Request) (bool, error)
}
