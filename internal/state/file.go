// Package state persists the kill switch so a halted system stays halted
// across restarts.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const stateVersion = "1"

type fileState struct {
	Version string                 `json:"version"`
	State   safety.KillSwitchState `json:"state"`
}

// FileStore keeps the kill switch state in a JSON file. Writes go to a
// temporary file first and are renamed into place; the previous file is kept
// as <path>.bak.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore creates a file store, creating the parent directory
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = "kill_switch.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Path returns the state file path
func (f *FileStore) Path() string {
	return f.path
}

// Load implements safety.KillSwitchStore. A missing file is an inactive
// switch; an unreadable or corrupt file is an error.
func (f *FileStore) Load(ctx context.Context) (safety.KillSwitchState, error) {
	if err := ctx.Err(); err != nil {
		return safety.KillSwitchState{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return safety.KillSwitchState{}, nil
	}
	if err != nil {
		return safety.KillSwitchState{}, fmt.Errorf("failed to read kill switch state: %w", err)
	}

	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		return safety.KillSwitchState{}, fmt.Errorf("failed to parse kill switch state %s: %w", f.path, err)
	}
	if fs.Version != stateVersion {
		return safety.KillSwitchState{}, fmt.Errorf("unsupported kill switch state version %q", fs.Version)
	}
	return fs.State, nil
}

// Save implements safety.KillSwitchStore
func (f *FileStore) Save(ctx context.Context, state safety.KillSwitchState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fileState{Version: stateVersion, State: state}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal kill switch state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, err := os.ReadFile(f.path); err == nil {
		// best effort
		_ = os.WriteFile(f.path+".bak", prev, 0644)
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tempFile, f.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to commit state file: %w", err)
	}
	return nil
}
