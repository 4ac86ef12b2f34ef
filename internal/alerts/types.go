package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Priority orders alerts: CRITICAL > HIGH > MEDIUM > LOW
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority name
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority accepts a priority name in any case
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Category groups alerts for rule lookup
type Category string

const (
	CategoryRisk           Category = "risk"
	CategoryKillSwitch     Category = "kill_switch"
	CategoryCircuitBreaker Category = "circuit_breaker"
	CategoryTrade          Category = "trade"
	CategoryPortfolio      Category = "portfolio"
	CategorySystem         Category = "system"
)

// Alert is a dispatched risk or safety event
type Alert struct {
	Category  Category          `json:"category"`
	Priority  Priority          `json:"priority"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	DedupeKey string            `json:"dedupe_key"`
	Forced    bool              `json:"forced,omitempty"`
}

// Request is the input to Dispatcher.Send
type Request struct {
	Category Category
	Priority Priority
	Title    string
	Message  string
	Metadata map[string]string

	// Force bypasses every filter
	Force bool
}

// Channel delivers accepted alerts to the outside world
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert Alert) error
}

// DedupeKey derives the duplicate-detection key from category and title
func DedupeKey(category Category, title string) string {
	return string(category) + ":" + strconv.FormatUint(xxhash.Sum64String(title), 16)
}
