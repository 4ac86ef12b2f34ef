package alerts

import (
	"sync"
	"time"
)

// History is a bounded ring buffer of accepted alerts; the oldest entry is
// overwritten once the buffer is full.
type History struct {
	mu    sync.RWMutex
	buf   []Alert
	next  int
	count int
}

// NewHistory creates a history holding at most size alerts
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1000
	}
	return &History{buf: make([]Alert, size)}
}

// Add records an alert
func (h *History) Add(a Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = a
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of retained alerts
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the buffer capacity
func (h *History) Cap() int {
	return len(h.buf)
}

// Recent returns up to n alerts, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Alert, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// SeenSince reports whether an alert with key was recorded at or after since
func (h *History) SeenSince(key string, since time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := 1; i <= h.count; i++ {
		a := h.buf[(h.next-i+len(h.buf))%len(h.buf)]
		if a.DedupeKey == key && !a.Timestamp.Before(since) {
			return true
		}
	}
	return false
}
