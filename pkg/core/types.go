package core

import "github.com/deskstep/deskstep/pkg/types"

type ProviderConfig = types.ProviderConfig

type Input struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
	Secret   bool   `yaml:"secret,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// EnvironmentConfig locates the remote desktop server for a run.
type EnvironmentConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds each environment HTTP request, e.g. "90s". A stuck
	// remote desktop must not hold an episode past this ceiling.
	Timeout string `yaml:"timeout,omitempty"`
}

// Task is one evaluation episode definition.
type Task struct {
	ID          string `yaml:"id"`
	Instruction string `yaml:"instruction"`
	Provider    string `yaml:"provider"`

	// DemoFile points at a recorded demonstration to condition the
	// model with, relative to the suite file.
	DemoFile string `yaml:"demo_file,omitempty"`

	MaxSteps *int `yaml:"max_steps,omitempty"`

	// Setup is the precondition array forwarded verbatim to the
	// environment's /setup endpoint.
	Setup []map[string]any `yaml:"setup,omitempty"`

	// Evaluator selects how the task is scored: "native" (the default)
	// asks the environment's evaluator, "none" skips scoring and records
	// the score as unavailable.
	Evaluator string `yaml:"evaluator,omitempty"`

	// AccessibilityTree requests the tree with every observation,
	// enabling element-addressed actions.
	AccessibilityTree bool `yaml:"accessibility_tree,omitempty"`
}

// Suite is the top-level evaluation configuration file.
type Suite struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Inputs      []Input           `yaml:"inputs,omitempty"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Environment EnvironmentConfig `yaml:"environment"`
	OutputDir   string            `yaml:"output_dir,omitempty"`
	Tasks       []Task            `yaml:"tasks"`
}

// DefaultMaxSteps bounds episodes whose task does not set its own
// budget.
const DefaultMaxSteps = 15
