package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const hookTimeout = 10 * time.Second

// CircuitBreakerObserver turns breaker transitions into alerts. Delivery runs
// on its own goroutine so the breaker's caller never waits on a channel.
func CircuitBreakerObserver(d *Dispatcher) safety.StateObserver {
	return func(name string, from, to safety.CircuitBreakerState) {
		priority := PriorityMedium
		switch to {
		case safety.StateOpen:
			priority = PriorityHigh
		case safety.StateClosed:
			priority = PriorityLow
		}
		req := Request{
			Category: CategoryCircuitBreaker,
			Priority: priority,
			Title:    fmt.Sprintf("Circuit %s %s", name, to),
			Message:  fmt.Sprintf("circuit breaker %s moved from %s to %s", name, from, to),
			Metadata: map[string]string{"name": name, "from": from.String(), "to": to.String()},
		}
		d.sendAsync(req)
	}
}

// KillSwitchObserver alerts on every kill switch change
func KillSwitchObserver(d *Dispatcher) safety.KillSwitchObserver {
	return func(state safety.KillSwitchState) {
		req := Request{
			Category: CategoryKillSwitch,
			Priority: PriorityCritical,
			Title:    "Kill switch deactivated",
			Message:  "trading resumed",
		}
		if state.Active {
			req.Title = "Kill switch activated"
			req.Message = fmt.Sprintf("trading halted: %s", state.Reason)
			req.Metadata = map[string]string{
				"reason":       state.Reason,
				"triggered_at": state.TriggeredAt.Format(time.RFC3339),
			}
		}
		d.sendAsync(req)
	}
}

// sendAsync delivers req on its own goroutine, tracked for Drain
func (d *Dispatcher) sendAsync(req Request) {
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if _, err := d.Send(ctx, req); err != nil {
			d.log.LogError("alert hook", err)
		}
	}()
}

// Drain waits for alerts raised by the breaker and kill switch hooks to be
// delivered, or for ctx to end
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
