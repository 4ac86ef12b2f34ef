package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ducminhle1904/trade-guard/internal/risk"
)

// LoadLimitsProfile reads a limits profile. A bare name is looked up in the
// configs/ directory and ".json" is appended when missing. Fields absent
// from the file keep their default value.
func LoadLimitsProfile(name string) (risk.Limits, error) {
	path := name
	if !strings.ContainsAny(path, "/\\") {
		path = filepath.Join("configs", path)
	}
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return risk.Limits{}, fmt.Errorf("failed to read limits profile %s: %w", path, err)
	}

	limits := risk.DefaultLimits()
	if err := json.Unmarshal(data, &limits); err != nil {
		return risk.Limits{}, fmt.Errorf("failed to parse limits profile %s: %w", path, err)
	}
	if err := limits.Validate(); err != nil {
		return risk.Limits{}, fmt.Errorf("limits profile %s: %w", path, err)
	}
	return limits, nil
}

// SaveLimitsProfile writes limits as indented JSON
func SaveLimitsProfile(limits risk.Limits, path string) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create profile directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(limits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
