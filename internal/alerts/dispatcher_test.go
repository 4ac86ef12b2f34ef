package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu     sync.Mutex
	name   string
	alerts []Alert
	err    error
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(ctx context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDispatcher(t *testing.T, config DispatcherConfig) (*Dispatcher, *recordingChannel, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
	d := NewDispatcher(config, nil, logger.Nop())
	d.now = clock.now
	ch := &recordingChannel{name: "test"}
	d.AddChannel(ch)
	return d, ch, clock
}

func TestDispatcherDeduplicatesWithinWindow(t *testing.T) {
	d, ch, clock := newTestDispatcher(t, DefaultDispatcherConfig())
	ctx := context.Background()
	req := Request{Category: CategoryRisk, Priority: PriorityHigh, Title: "Exposure high", Message: "95%"}

	ok, err := d.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.advance(time.Minute)
	ok, err = d.Send(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, ch.count(), "same key inside the window delivers once")

	critical := req
	critical.Priority = PriorityCritical
	ok, err = d.Send(ctx, critical)
	require.NoError(t, err)
	assert.True(t, ok, "critical bypasses dedupe")
	assert.Equal(t, 2, ch.count())

	clock.advance(d.Rule(CategoryRisk).DedupeWindow + time.Second)
	ok, _ = d.Send(ctx, req)
	assert.True(t, ok, "window expired")
}

func TestDispatcherForceBypassesFilters(t *testing.T) {
	d, ch, _ := newTestDispatcher(t, DefaultDispatcherConfig())

	ok, err := d.Send(context.Background(), Request{
		Category: CategorySystem,
		Priority: PriorityLow,
		Title:    "manual note",
		Force:    true,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, 1, ch.count())
	assert.True(t, ch.alerts[0].Forced)
	assert.Equal(t, 1, d.History().Len(), "forced alerts are still recorded")
	assert.Equal(t, int64(1), d.Outcomes()[OutcomeForced])
}

func TestDispatcherMinPriority(t *testing.T) {
	d, ch, _ := newTestDispatcher(t, DefaultDispatcherConfig())

	ok, err := d.Send(context.Background(), Request{Category: CategorySystem, Priority: PriorityMedium, Title: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, ch.count())
	assert.Equal(t, int64(1), d.Outcomes()[OutcomeBelowMin])
}

func TestDispatcherHourlyLimit(t *testing.T) {
	config := DefaultDispatcherConfig()
	config.Rules = map[Category]Rule{
		CategoryTrade: {MinPriority: PriorityLow, MaxPerHour: 3},
	}
	d, ch, clock := newTestDispatcher(t, config)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := d.Send(ctx, Request{Category: CategoryTrade, Priority: PriorityLow, Title: string(rune('a' + i))})
		assert.True(t, ok)
		clock.advance(time.Minute)
	}

	ok, _ := d.Send(ctx, Request{Category: CategoryTrade, Priority: PriorityLow, Title: "d"})
	assert.False(t, ok, "fourth alert in the hour is rate limited")
	assert.Equal(t, int64(1), d.Outcomes()[OutcomeRateLimited])

	// other categories have their own counters
	ok, _ = d.Send(ctx, Request{Category: CategoryRisk, Priority: PriorityHigh, Title: "d"})
	assert.True(t, ok)

	clock.advance(time.Hour)
	ok, _ = d.Send(ctx, Request{Category: CategoryTrade, Priority: PriorityLow, Title: "e"})
	assert.True(t, ok, "window slid past the first alerts")
	assert.Equal(t, 5, ch.count())
}

func TestDispatcherQuietHours(t *testing.T) {
	config := DefaultDispatcherConfig()
	quiet, err := ParseQuietHours("22:00", "07:00", time.UTC)
	require.NoError(t, err)
	config.QuietHours = quiet

	d, _, clock := newTestDispatcher(t, config)
	clock.t = time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	ctx := context.Background()

	ok, _ := d.Send(ctx, Request{Category: CategoryRisk, Priority: PriorityMedium, Title: "late"})
	assert.False(t, ok)
	assert.Equal(t, int64(1), d.Outcomes()[OutcomeQuietHours])

	ok, _ = d.Send(ctx, Request{Category: CategoryRisk, Priority: PriorityHigh, Title: "late high"})
	assert.True(t, ok, "HIGH is delivered during quiet hours")

	// circuit breaker rule ignores quiet hours
	ok, _ = d.Send(ctx, Request{Category: CategoryCircuitBreaker, Priority: PriorityMedium, Title: "half open"})
	assert.True(t, ok)
}

func TestDispatcherChannelErrors(t *testing.T) {
	d, good, _ := newTestDispatcher(t, DefaultDispatcherConfig())
	bad := &recordingChannel{name: "broken", err: errors.New("connection refused")}
	d.AddChannel(bad)

	ok, err := d.Send(context.Background(), Request{Category: CategoryRisk, Priority: PriorityCritical, Title: "halt"})
	assert.True(t, ok, "accepted even when a channel fails")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	var ge *guarderrors.GuardError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, guarderrors.ErrorCategoryNotification, ge.Category)
	assert.Equal(t, 1, good.count(), "other channels still receive the alert")
}

func TestDispatcherRejectsInvalidPriority(t *testing.T) {
	d, _, _ := newTestDispatcher(t, DefaultDispatcherConfig())
	_, err := d.Send(context.Background(), Request{Category: CategoryRisk, Title: "x"})
	assert.True(t, guarderrors.IsValidation(err))
}

func TestDispatcherConcurrentSendsDeliverOnce(t *testing.T) {
	d, ch, _ := newTestDispatcher(t, DefaultDispatcherConfig())
	req := Request{Category: CategoryRisk, Priority: PriorityHigh, Title: "same"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Send(context.Background(), req)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ch.count())
	assert.Equal(t, int64(49), d.Outcomes()[OutcomeDuplicate])
}

func TestCircuitBreakerObserverSendsAlert(t *testing.T) {
	d, ch, _ := newTestDispatcher(t, DefaultDispatcherConfig())
	observer := CircuitBreakerObserver(d)

	observer("bybit", safety.StateClosed, safety.StateOpen)

	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, CategoryCircuitBreaker, ch.alerts[0].Category)
	assert.Equal(t, PriorityHigh, ch.alerts[0].Priority)
	assert.Equal(t, "OPEN", ch.alerts[0].Metadata["to"])
}

func TestKillSwitchObserverSendsCritical(t *testing.T) {
	d, ch, _ := newTestDispatcher(t, DefaultDispatcherConfig())
	observer := KillSwitchObserver(d)

	observer(safety.KillSwitchState{Active: true, Reason: "daily loss", TriggeredAt: time.Now()})

	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, PriorityCritical, ch.alerts[0].Priority)
	assert.Equal(t, "daily loss", ch.alerts[0].Metadata["reason"])
}

type blockingChannel struct {
	recordingChannel
	release chan struct{}
}

func (c *blockingChannel) Deliver(ctx context.Context, a Alert) error {
	<-c.release
	return c.recordingChannel.Deliver(ctx, a)
}

func TestDrainWaitsForHookAlerts(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), nil, logger.Nop())
	ch := &blockingChannel{recordingChannel: recordingChannel{name: "slow"}, release: make(chan struct{})}
	d.AddChannel(ch)

	KillSwitchObserver(d)(safety.KillSwitchState{Active: true, Reason: "shutdown", TriggeredAt: time.Now()})
	CircuitBreakerObserver(d)("bybit", safety.StateClosed, safety.StateOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)

	close(ch.release)
	require.NoError(t, d.Drain(context.Background()))
	assert.Equal(t, 2, ch.count(), "both alerts delivered before Drain returns")
}
