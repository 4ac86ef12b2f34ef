// Package storage keeps the position book on disk as JSON so a portfolio
// snapshot can be served without a broker connection.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/portfolio"
	"github.com/shopspring/decimal"
)

// Holdings is the on-disk position book
type Holdings struct {
	Positions   []portfolio.Position `json:"positions"`
	Cash        decimal.Decimal      `json:"cash"`
	LastUpdated time.Time            `json:"last_updated"`
}

// HoldingsFile reads and writes a Holdings JSON file. It implements
// portfolio.Provider; every Snapshot re-reads the file so external edits
// are picked up.
type HoldingsFile struct {
	mu   sync.RWMutex
	path string
}

var _ portfolio.Provider = (*HoldingsFile)(nil)

// NewHoldingsFile creates the parent directory if needed
func NewHoldingsFile(path string) (*HoldingsFile, error) {
	if path == "" {
		path = "data/holdings.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create holdings directory: %w", err)
		}
	}
	return &HoldingsFile{path: path}, nil
}

// Path returns the file location
func (f *HoldingsFile) Path() string {
	return f.path
}

// Load reads the holdings. A missing file is an error: trading against an
// empty book would understate exposure.
func (f *HoldingsFile) Load() (Holdings, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Holdings{}, fmt.Errorf("holdings file does not exist: %s", f.path)
	}
	if err != nil {
		return Holdings{}, fmt.Errorf("failed to read holdings file: %w", err)
	}

	var h Holdings
	if err := json.Unmarshal(data, &h); err != nil {
		return Holdings{}, fmt.Errorf("failed to unmarshal holdings: %w", err)
	}
	return h, nil
}

// Save validates and atomically writes the holdings
func (f *HoldingsFile) Save(h Holdings) error {
	if _, err := portfolio.NewSnapshot(h.Positions, h.Cash); err != nil {
		return fmt.Errorf("invalid holdings: %w", err)
	}
	h.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary holdings file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit holdings file: %w", err)
	}
	return nil
}

// Snapshot loads the file and validates it into a portfolio snapshot
func (f *HoldingsFile) Snapshot(ctx context.Context) (portfolio.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return portfolio.Snapshot{}, err
	}
	h, err := f.Load()
	if err != nil {
		return portfolio.Snapshot{}, err
	}
	snap, err := portfolio.NewSnapshot(h.Positions, h.Cash)
	if err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("invalid holdings in %s: %w", f.path, err)
	}
	return snap, nil
}
