package types

// DemoStep is one step of a recorded demonstration trajectory.
type DemoStep struct {
	Instruction string `yaml:"instruction"`
	Reasoning   string `yaml:"reasoning,omitempty"`
	Action      string `yaml:"action"`
}

// Demo is an ordered demonstration trajectory, immutable once loaded
// and shared read-only across all steps of one episode.
type Demo struct {
	Name  string     `yaml:"name,omitempty"`
	Steps []DemoStep `yaml:"steps"`
}

// DemoPlacement says which prompt role carries the demo text. This is
// a per-model contract, not a stylistic choice: a model tuned with
// demonstrations in the system prompt loses them if they arrive as a
// user turn.
type DemoPlacement string

const (
	DemoPlacementSystem DemoPlacement = "system"
	DemoPlacementUser   DemoPlacement = "user"
)
