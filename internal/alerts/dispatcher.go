package alerts

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const component = "alerts"

// Outcome explains what the dispatcher did with a request
type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeForced      Outcome = "forced"
	OutcomeBelowMin    Outcome = "below_min_priority"
	OutcomeQuietHours  Outcome = "quiet_hours"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRateLimited Outcome = "rate_limited"
)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Rules       map[Category]Rule
	QuietHours  QuietHours
	HistorySize int
}

// DefaultDispatcherConfig uses the built-in rules, no quiet hours and a 1000 entry history
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Rules:       DefaultRules(),
		HistorySize: 1000,
	}
}

// categoryState serializes the filter-and-record step for one category
type categoryState struct {
	mu     sync.Mutex
	window *safety.SlidingWindow
}

// Dispatcher filters alerts by per-category rules and fans accepted ones out
// to every registered channel.
type Dispatcher struct {
	rules   map[Category]Rule
	quiet   QuietHours
	history *History
	log     *logger.Logger
	inst    monitoring.Instrumentation
	now     func() time.Time

	// in-flight hook deliveries, drained on shutdown
	pending sync.WaitGroup

	mu         sync.Mutex
	categories map[Category]*categoryState
	channels   []Channel
	outcomes   map[Outcome]int64
}

// NewDispatcher creates a dispatcher. inst may be nil.
func NewDispatcher(config DispatcherConfig, inst monitoring.Instrumentation, log *logger.Logger) *Dispatcher {
	rules := config.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	return &Dispatcher{
		rules:      rules,
		quiet:      config.QuietHours,
		history:    NewHistory(config.HistorySize),
		log:        log,
		inst:       monitoring.OrNop(inst),
		now:        time.Now,
		categories: make(map[Category]*categoryState),
		outcomes:   make(map[Outcome]int64),
	}
}

// AddChannel registers a delivery channel
func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Rule returns the effective rule for category
func (d *Dispatcher) Rule(category Category) Rule {
	if rule, ok := d.rules[category]; ok {
		return rule
	}
	return DefaultRule()
}

// History returns the accepted alert history
func (d *Dispatcher) History() *History {
	return d.history
}

// Outcomes returns a copy of the per-outcome counters
func (d *Dispatcher) Outcomes() map[Outcome]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Outcome]int64, len(d.outcomes))
	for k, v := range d.outcomes {
		out[k] = v
	}
	return out
}

// Send filters req and, when accepted, records and delivers it. The boolean
// reports acceptance; a non-nil error means at least one channel failed to
// deliver an accepted alert.
func (d *Dispatcher) Send(ctx context.Context, req Request) (bool, error) {
	if !req.Priority.Valid() {
		return false, guarderrors.NewGuardError(guarderrors.ErrorCategoryValidation, component, "send",
			fmt.Sprintf("invalid priority %d", int(req.Priority)))
	}

	now := d.now()
	alert := Alert{
		Category:  req.Category,
		Priority:  req.Priority,
		Title:     req.Title,
		Message:   req.Message,
		Metadata:  copyMetadata(req.Metadata),
		Timestamp: now,
		DedupeKey: DedupeKey(req.Category, req.Title),
		Forced:    req.Force || req.Priority == PriorityCritical,
	}

	outcome := d.admit(alert)
	d.count(outcome)
	accepted := outcome == OutcomeDelivered || outcome == OutcomeForced
	d.inst.AlertProcessed(string(alert.Category), alert.Priority.String(), accepted)

	if !accepted {
		d.log.Info("alert suppressed (%s): [%s/%s] %s", outcome, alert.Category, alert.Priority, alert.Title)
		return false, nil
	}

	return true, d.deliver(ctx, alert)
}

// admit runs the filters and records the alert when it passes
func (d *Dispatcher) admit(alert Alert) Outcome {
	state := d.category(alert.Category)
	state.mu.Lock()
	defer state.mu.Unlock()

	key := string(alert.Category)
	if !alert.Forced {
		rule := d.Rule(alert.Category)
		switch {
		case alert.Priority < rule.MinPriority:
			return OutcomeBelowMin
		case rule.RespectQuietHours && alert.Priority < PriorityHigh && d.quiet.Contains(alert.Timestamp):
			return OutcomeQuietHours
		case rule.DedupeWindow > 0 && d.history.SeenSince(alert.DedupeKey, alert.Timestamp.Add(-rule.DedupeWindow)):
			return OutcomeDuplicate
		case !state.window.Allow(key, rule.MaxPerHour, alert.Timestamp):
			return OutcomeRateLimited
		}
	}

	d.history.Add(alert)
	state.window.Record(key, alert.Timestamp)
	if alert.Forced {
		return OutcomeForced
	}
	return OutcomeDelivered
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) error {
	d.mu.Lock()
	channels := append([]Channel(nil), d.channels...)
	d.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		if err := ch.Deliver(ctx, alert); err != nil {
			d.log.LogError(fmt.Sprintf("alert channel %s", ch.Name()), err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return guarderrors.WrapError(stderrors.Join(errs...), guarderrors.ErrorCategoryNotification, component, "deliver")
}

func (d *Dispatcher) category(c Category) *categoryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.categories[c]
	if !ok {
		state = &categoryState{window: safety.NewSlidingWindow(time.Hour)}
		d.categories[c] = state
	}
	return state
}

func (d *Dispatcher) count(outcome Outcome) {
	d.mu.Lock()
	d.outcomes[outcome]++
	d.mu.Unlock()
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
