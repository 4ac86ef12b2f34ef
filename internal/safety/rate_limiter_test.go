package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(time.Hour)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow("risk", 3, start.Add(time.Duration(i)*time.Minute)))
		sw.Record("risk", start.Add(time.Duration(i)*time.Minute))
	}
	assert.False(t, sw.Allow("risk", 3, start.Add(30*time.Minute)))
	assert.True(t, sw.Allow("system", 3, start.Add(30*time.Minute)), "keys are independent")
	assert.True(t, sw.Allow("risk", 0, start), "zero limit is unlimited")

	// first event falls out of the trailing hour
	assert.True(t, sw.Allow("risk", 3, start.Add(time.Hour+time.Second)))
	assert.Equal(t, 2, sw.Count("risk", start.Add(time.Hour+time.Second)))
	assert.Equal(t, 0, sw.Count("risk", start.Add(3*time.Hour)))
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter("telegram", 2, 1)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter("telegram", 1, 1)
	assert.True(t, rl.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}
