package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Add(Alert{Title: fmt.Sprintf("a%d", i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Equal(t, 3, h.Len())
	recent := h.Recent(0)
	titles := make([]string, 0, len(recent))
	for _, a := range recent {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"a4", "a3", "a2"}, titles)
	assert.Len(t, h.Recent(2), 2)
}

func TestHistorySeenSince(t *testing.T) {
	h := NewHistory(10)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Add(Alert{DedupeKey: "risk:1", Timestamp: base})
	h.Add(Alert{DedupeKey: "risk:2", Timestamp: base.Add(10 * time.Minute)})

	assert.True(t, h.SeenSince("risk:1", base))
	assert.False(t, h.SeenSince("risk:1", base.Add(time.Second)))
	assert.True(t, h.SeenSince("risk:2", base.Add(5*time.Minute)))
	assert.False(t, h.SeenSince("risk:3", base))
}

func TestDedupeKey(t *testing.T) {
	a := DedupeKey(CategoryRisk, "Exposure high")
	assert.Equal(t, a, DedupeKey(CategoryRisk, "Exposure high"))
	assert.NotEqual(t, a, DedupeKey(CategoryTrade, "Exposure high"))
	assert.NotEqual(t, a, DedupeKey(CategoryRisk, "Exposure low"))
	assert.Regexp(t, `^risk:[0-9a-f]+$`, a)
}
