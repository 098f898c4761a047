// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package task loads and validates research task descriptors. A descriptor is
// a YAML or JSON file (JSON is accepted as a YAML subset) decoded into
// types.TaskSpec.
package task

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Load reads the descriptor at path, applies defaults, and validates it.
func Load(path string) (types.TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TaskSpec{}, fmt.Errorf("reading task: %w", err)
	}
	return Parse(data)
}

// Parse decodes a descriptor, applies defaults, and validates it. An absent
// max_revisions gets types.DefaultMaxRevisions; an explicit 0 is kept.
func Parse(data []byte) (types.TaskSpec, error) {
	var spec types.TaskSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return types.TaskSpec{}, fmt.Errorf("parsing task: %w", err)
	}
	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return types.TaskSpec{}, fmt.Errorf("parsing task: %w", err)
	}
	if _, ok := keys["max_revisions"]; !ok {
		spec.MaxRevisions = types.DefaultMaxRevisions
	}
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return types.TaskSpec{}, fmt.Errorf("invalid task: %w", err)
	}
	return spec, nil
}

// Override holds command-line values that replace descriptor fields when set.
type Override struct {
	Query       string
	Tone        string
	MaxSections int

	// MaxRevisions replaces the budget when non-nil, including with 0.
	MaxRevisions  *int
	HumanFeedback string
}

// Apply returns a copy of spec with the set fields of o applied, then
// revalidates it.
func (o Override) Apply(spec types.TaskSpec) (types.TaskSpec, error) {
	if q := strings.TrimSpace(o.Query); q != "" {
		spec.Query = q
	}
	if o.Tone != "" {
		spec.Tone = types.Tone(strings.ToLower(o.Tone))
	}
	if o.MaxSections > 0 {
		spec.MaxSections = o.MaxSections
	}
	if o.MaxRevisions != nil {
		spec.MaxRevisions = *o.MaxRevisions
	}
	if o.HumanFeedback != "" {
		spec.HumanFeedback = o.HumanFeedback
		spec.IncludeHumanFeedback = true
	}
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return types.TaskSpec{}, fmt.Errorf("invalid task: %w", err)
	}
	return spec, nil
}
