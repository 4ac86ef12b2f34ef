package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
)

const storeTimeout = 2 * time.Second

// KillSwitchState is the global trading halt flag
type KillSwitchState struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
}

// KillSwitchStore persists the kill switch across restarts and processes
type KillSwitchStore interface {
	Load(ctx context.Context) (KillSwitchState, error)
	Save(ctx context.Context, state KillSwitchState) error
}

// KillSwitchObserver is notified after every activate or deactivate
type KillSwitchObserver func(state KillSwitchState)

// KillSwitch is the process-wide trading halt. All transitions are serialized
// by one mutex. When a store is configured it is the source of truth, and any
// failure to read it reports the switch as active.
type KillSwitch struct {
	mu       sync.Mutex
	state    KillSwitchState
	store    KillSwitchStore
	observer KillSwitchObserver
	log      *logger.Logger
	now      func() time.Time

	// set when an activation could not be written to the store
	unpersisted bool
}

// NewKillSwitch creates an inactive kill switch. store may be nil.
func NewKillSwitch(store KillSwitchStore, log *logger.Logger) *KillSwitch {
	return &KillSwitch{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// SetObserver sets the state change observer
func (k *KillSwitch) SetObserver(observer KillSwitchObserver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.observer = observer
}

// Restore loads the persisted state, keeping a halted system halted after a restart
func (k *KillSwitch) Restore(ctx context.Context) error {
	if k.store == nil {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	state, err := k.store.Load(ctx)
	if err != nil {
		k.state = KillSwitchState{Active: true, Reason: "state restore failed", TriggeredAt: k.now()}
		k.log.Audit("kill switch restore failed, halting: %v", err)
		return guarderrors.NewStorageError("kill_switch", "restore", err)
	}
	k.state = state
	if state.Active {
		k.log.Audit("kill switch restored active: %s (since %s)", state.Reason, state.TriggeredAt.Format(time.RFC3339))
	}
	return nil
}

// Activate halts trading. Re-activating an active switch updates the reason and
// keeps the original trigger time. The switch is active in memory even when
// persisting fails; the persistence error is returned.
func (k *KillSwitch) Activate(reason string) error {
	if reason == "" {
		reason = "manual"
	}

	k.mu.Lock()
	if k.state.Active {
		k.state.Reason = reason
	} else {
		k.state = KillSwitchState{Active: true, Reason: reason, TriggeredAt: k.now()}
	}
	state := k.state
	err := k.persist(state)
	k.unpersisted = err != nil
	observer := k.observer
	k.mu.Unlock()

	k.log.Audit("kill switch ACTIVATED: %s", reason)
	if err != nil {
		k.log.LogError("kill switch persist", err)
	}
	if observer != nil {
		observer(state)
	}
	return err
}

// Deactivate clears the halt. It never happens implicitly. If the cleared state
// cannot be persisted the switch stays active and the error is returned.
func (k *KillSwitch) Deactivate() error {
	k.mu.Lock()
	previous := k.state
	cleared := KillSwitchState{}
	if err := k.persist(cleared); err != nil {
		k.mu.Unlock()
		k.log.LogError("kill switch deactivate", err)
		return err
	}
	k.state = cleared
	k.unpersisted = false
	observer := k.observer
	k.mu.Unlock()

	k.log.Audit("kill switch DEACTIVATED (was: %q)", previous.Reason)
	if observer != nil {
		observer(cleared)
	}
	return nil
}

// IsActive reports whether trading is halted. An unreadable store counts as halted.
func (k *KillSwitch) IsActive() (bool, string) {
	state, err := k.Status()
	if err != nil {
		return true, fmt.Sprintf("state unavailable: %v", err)
	}
	return state.Active, state.Reason
}

// Status returns the current state. On a store read error the returned state is
// active and the error is non-nil.
func (k *KillSwitch) Status() (KillSwitchState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.store == nil || k.unpersisted {
		return k.state, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	state, err := k.store.Load(ctx)
	if err != nil {
		return KillSwitchState{Active: true, Reason: "state unavailable", TriggeredAt: k.now()},
			fmt.Errorf("%w: %v", guarderrors.ErrKillSwitchUnavailable, err)
	}
	k.state = state
	return state, nil
}

// persist must be called with the mutex held
func (k *KillSwitch) persist(state KillSwitchState) error {
	if k.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := k.store.Save(ctx, state); err != nil {
		return guarderrors.NewStorageError("kill_switch", "save", err)
	}
	return nil
}
