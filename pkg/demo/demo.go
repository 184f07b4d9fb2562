// Package demo loads recorded demonstration trajectories and formats
// them into per-step prompts. The demo text is attached to every step's
// prompt, not only the first: models without persistent memory lose the
// demonstrated pattern after one turn, which shows up as perfect
// first-action accuracy and zero episode success.
package demo

import (
	"fmt"
	"os"
	"strings"

	"github.com/deskstep/deskstep/pkg/types"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a demo YAML file and validates its steps. Steps
// with an empty action are a recording-quality defect (e.g. a TYPE("")
// standing in for a toggle click); they are dropped with a warning
// rather than silently handed to the model. A file with no valid steps
// left is rejected.
func LoadFromFile(path string, logger types.Logger) (*types.Demo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading demo file %q: %w", path, err)
	}

	var d types.Demo
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing demo YAML from %q: %w", path, err)
	}

	valid := d.Steps[:0]
	for i, step := range d.Steps {
		if strings.TrimSpace(step.Action) == "" {
			if logger != nil {
				logger.Warn().
					Str("demo", path).
					Int("step", i).
					Msg("Demo step has no action text, dropping it")
			}
			continue
		}
		valid = append(valid, step)
	}
	d.Steps = valid

	if len(d.Steps) == 0 {
		return nil, fmt.Errorf("demo file %q contains no usable steps", path)
	}
	return &d, nil
}

// Format renders the demo as numbered steps for prompt inclusion.
func Format(d *types.Demo) string {
	var b strings.Builder
	b.WriteString("Here is a demonstration of a similar task:\n")
	for i, step := range d.Steps {
		fmt.Fprintf(&b, "Step %d:\n", i+1)
		if step.Instruction != "" {
			fmt.Fprintf(&b, "  Goal: %s\n", step.Instruction)
		}
		if step.Reasoning != "" {
			fmt.Fprintf(&b, "  Reasoning: %s\n", step.Reasoning)
		}
		fmt.Fprintf(&b, "  Action: %s\n", step.Action)
	}
	return b.String()
}

// BuildPrompt assembles the per-step instruction text. The demo, when
// present, is included on every call regardless of stepIndex.
func BuildPrompt(instruction string, d *types.Demo, stepIndex int) string {
	var b strings.Builder
	if d != nil {
		b.WriteString(Format(d))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Task: %s\n", instruction)
	if stepIndex > 0 {
		fmt.Fprintf(&b, "You are at step %d of this task. The current screen is attached.\n", stepIndex+1)
	} else {
		b.WriteString("This is the first step. The current screen is attached.\n")
	}
	b.WriteString("Respond with exactly one action.")
	return b.String()
}
