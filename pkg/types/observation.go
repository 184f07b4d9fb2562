package types

import "time"

// Observation is a single environment snapshot. It is produced once per
// reset/step by the environment adapter and owned by the runner for the
// duration of one step.
type Observation struct {
	// Screenshot holds the raw PNG bytes returned by the environment.
	Screenshot []byte

	// Width and Height are the screenshot dimensions in pixels, decoded
	// from the image itself. Remote VM resolution varies across
	// deployments, so these are never hard-coded or cached across steps.
	Width  int
	Height int

	// AccessibilityTree is the optional raw tree (XML or JSON) for
	// element-addressed actions. Empty when the task does not request it.
	AccessibilityTree string

	// StepIndex is the monotonically increasing step counter within the
	// episode, starting at 0 for the reset observation.
	StepIndex int
}

// AgentMetadata carries per-step diagnostics emitted by the agent:
// extracted reasoning text, token counts, and the parse strategy that
// produced the canonical action.
type AgentMetadata struct {
	Think         string `json:"think,omitempty"`
	ParseStrategy string `json:"parse_strategy,omitempty"`
	InputTokens   int64  `json:"input_tokens,omitempty"`
	OutputTokens  int64  `json:"output_tokens,omitempty"`
	ToolLoopIters int    `json:"tool_loop_iters,omitempty"`
	LoopAdjusted  bool   `json:"loop_adjusted,omitempty"`
}

// HistoryEntry is one step of the trajectory: the action taken at a
// given observation plus the agent diagnostics for that step.
type HistoryEntry struct {
	StepIndex      int           `json:"step_index"`
	Action         Action        `json:"action"`
	Meta           AgentMetadata `json:"meta"`
	ScreenshotPath string        `json:"screenshot_path,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// ScoreStatus distinguishes a genuine score from a missing evaluator.
type ScoreStatus string

const (
	ScoreStatusScored ScoreStatus = "scored"

	// ScoreStatusUnavailable means the environment's native evaluator
	// could not score the task. This is recorded as-is and never folded
	// into 0.0, which would silently corrupt aggregate metrics.
	ScoreStatusUnavailable ScoreStatus = "unavailable"
)

// Score is the evaluation outcome for one task.
type Score struct {
	Status ScoreStatus `json:"status"`
	Value  float64     `json:"value"`
}

// TerminalStatus records how an episode ended.
type TerminalStatus string

const (
	// TerminalDone means the agent signaled completion.
	TerminalDone TerminalStatus = "done"
	// TerminalBudget means the step budget ran out. This is a normal
	// terminal state, not an error.
	TerminalBudget TerminalStatus = "budget"
	// TerminalInfra means the environment became unavailable mid-episode.
	TerminalInfra TerminalStatus = "infra"
	// TerminalCancelled means the run was interrupted; the partial
	// trajectory is flushed before teardown.
	TerminalCancelled TerminalStatus = "cancelled"
)
