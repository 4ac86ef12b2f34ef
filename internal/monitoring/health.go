package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/safety"
)

// KillSwitchStatus is the read side of the kill switch
type KillSwitchStatus interface {
	Status() (safety.KillSwitchState, error)
}

// CircuitStatus lists open circuit breakers
type CircuitStatus interface {
	OpenCircuits() []string
}

// HealthChecker serves the gate's readiness as JSON
type HealthChecker struct {
	killSwitch KillSwitchStatus
	circuits   CircuitStatus
	startTime  time.Time

	mu        sync.RWMutex
	lastCheck time.Time
	errors    []string
}

// HealthStatus is the JSON body of the health endpoint
type HealthStatus struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Uptime           string    `json:"uptime"`
	KillSwitchActive bool      `json:"kill_switch_active"`
	KillSwitchReason string    `json:"kill_switch_reason,omitempty"`
	OpenCircuits     []string  `json:"open_circuits,omitempty"`
	LastCheck        time.Time `json:"last_check,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
}

const maxHealthErrors = 20

// NewHealthChecker creates a health checker; either dependency may be nil
func NewHealthChecker(killSwitch KillSwitchStatus, circuits CircuitStatus) *HealthChecker {
	return &HealthChecker{
		killSwitch: killSwitch,
		circuits:   circuits,
		startTime:  time.Now(),
		errors:     make([]string, 0),
	}
}

// RecordCheck marks a completed gate evaluation
func (h *HealthChecker) RecordCheck(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCheck = at
}

// RecordError keeps the most recent errors for the health body
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > maxHealthErrors {
		h.errors = h.errors[len(h.errors)-maxHealthErrors:]
	}
}

// Check builds the current health status
func (h *HealthChecker) Check() HealthStatus {
	h.mu.RLock()
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		LastCheck: h.lastCheck,
		Errors:    append([]string(nil), h.errors...),
	}
	h.mu.RUnlock()

	if h.circuits != nil {
		status.OpenCircuits = h.circuits.OpenCircuits()
		if len(status.OpenCircuits) > 0 {
			status.Status = "degraded"
		}
	}

	if h.killSwitch != nil {
		ks, err := h.killSwitch.Status()
		status.KillSwitchActive = ks.Active
		status.KillSwitchReason = ks.Reason
		if err != nil {
			status.Errors = append(status.Errors, err.Error())
		}
		if ks.Active {
			status.Status = "halted"
		}
	}
	return status
}

// ServeHTTP writes the health status; 503 when trading is halted
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "halted" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}
