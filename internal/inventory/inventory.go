// Package inventory defines the normalized service descriptor consumed by
// the monitor and loads the declared fleet from a YAML file. Discovery
// collaborators (see internal/discovery) produce the same descriptor shape.
package inventory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CheckType selects the probe used for a service
type CheckType string

const (
	CheckHTTP      CheckType = "http"
	CheckTCP       CheckType = "tcp"
	CheckContainer CheckType = "container"
	CheckUnit      CheckType = "unit"
	CheckCustom    CheckType = "custom"
)

// ValidCheckTypes lists every supported check type
func ValidCheckTypes() []CheckType {
	return []CheckType{CheckHTTP, CheckTCP, CheckContainer, CheckUnit, CheckCustom}
}

// Service is a single monitored entity. Immutable after load; reconfiguration
// replaces the whole slice through the monitor.
type Service struct {
	ID                 string    `yaml:"id"`
	Name               string    `yaml:"name"`
	Check              CheckType `yaml:"check"`
	Target             string    `yaml:"target"`
	RestartCommand     string    `yaml:"restart_command"`
	DependsOn          []string  `yaml:"depends_on"`
	MaxRestartAttempts int       `yaml:"max_restart_attempts"` // 0 = fleet default
	Group              string    `yaml:"group"`
}

// HasRemediation reports whether the service can be auto-restarted
func (s *Service) HasRemediation() bool {
	return s.RestartCommand != ""
}

// DisplayName returns the human-facing name, falling back to the id
func (s *Service) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// File is the on-disk inventory layout
type File struct {
	Services []Service `yaml:"services"`
}

// Load reads and validates the YAML inventory at path
func Load(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates inventory YAML
func Parse(data []byte) ([]Service, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if err := Validate(f.Services); err != nil {
		return nil, err
	}
	return f.Services, nil
}

// Validate checks descriptor invariants: unique non-empty ids, known check
// types, non-empty targets, non-negative attempt budgets
func Validate(services []Service) error {
	seen := make(map[string]bool, len(services))
	for i, s := range services {
		if s.ID == "" {
			return fmt.Errorf("service %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("service %q: duplicate id", s.ID)
		}
		seen[s.ID] = true

		if !isValidCheck(s.Check) {
			return fmt.Errorf("service %q: unknown check type %q", s.ID, s.Check)
		}
		if s.Target == "" {
			return fmt.Errorf("service %q: target is required", s.ID)
		}
		if s.MaxRestartAttempts < 0 {
			return fmt.Errorf("service %q: max_restart_attempts must not be negative", s.ID)
		}
	}
	return nil
}

func isValidCheck(c CheckType) bool {
	for _, v := range ValidCheckTypes() {
		if c == v {
			return true
		}
	}
	return false
}

// Merge combines declared and discovered services. Declared descriptors win
// on id collision; the result is sorted by id so downstream ordering is
// deterministic.
func Merge(declared, discovered []Service) []Service {
	byID := make(map[string]Service, len(declared)+len(discovered))
	for _, s := range discovered {
		byID[s.ID] = s
	}
	for _, s := range declared {
		byID[s.ID] = s
	}

	merged := make([]Service, 0, len(byID))
	for _, s := range byID {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}
