// Package operations exposes the risk computations as named operations
// taking and returning JSON, for the CLI and other thin front ends.
package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/ducminhle1904/trade-guard/internal/monitoring"
)

const component = "operations"

// Operation is one named computation
type Operation interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params json.RawMessage) (any, error)
}

// Registry resolves operations by name. Registration happens once at
// startup; Execute is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	ops  map[string]Operation
	inst monitoring.Instrumentation
}

// NewRegistry creates an empty registry. inst may be nil.
func NewRegistry(inst monitoring.Instrumentation) *Registry {
	return &Registry{
		ops:  make(map[string]Operation),
		inst: monitoring.OrNop(inst),
	}
}

// Register adds op; names must be unique
func (r *Registry) Register(op Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name()]; exists {
		return guarderrors.NewConfigurationError(component, "register",
			fmt.Sprintf("operation %q already registered", op.Name()))
	}
	r.ops[op.Name()] = op
	return nil
}

// Get returns the operation registered as name
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names lists the registered operations in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named operation
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (any, error) {
	op, ok := r.Get(name)
	if !ok {
		return nil, guarderrors.NewValidationError(component, "execute", guarderrors.ErrUnknownOperation, "%q", name)
	}

	start := time.Now()
	result, err := op.Execute(ctx, params)
	r.inst.OperationCompleted(name, err, time.Since(start))
	return result, err
}

// decode strictly unmarshals params into v. Empty params decode as {}.
func decode(operation string, params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return guarderrors.NewValidationError(component, operation, guarderrors.ErrInvalidParams, "%v", err)
	}
	return nil
}
