// Package agent defines the model-facing interface of the harness and
// the registry through which provider implementations plug in.
package agent

import (
	"context"

	"github.com/deskstep/deskstep/pkg/types"
)

// Decision is one resolved agent step: the canonical action plus the
// diagnostics recorded in the trajectory.
type Decision struct {
	Action types.Action
	Meta   types.AgentMetadata
	// Prompt is the exact prompt text sent for this step, kept for
	// trace replay.
	Prompt string
}

// Agent produces one action per observation. Implementations own their
// conversation state; the runner treats them as opaque. An Agent
// instance serves exactly one episode at a time: Reset must be called
// between tasks and implementations are not safe for concurrent use.
type Agent interface {
	// Validate checks the episode configuration before the first
	// environment call, mirroring the load-time validation pass.
	Validate() error

	// NextAction returns the next action for the given observation.
	// History covers the episode so far. Parse failures do not error;
	// they surface as an unknown-kind action for the runner to handle.
	NextAction(ctx context.Context, obs *types.Observation, history []types.HistoryEntry) (*Decision, error)

	// Reset discards all per-episode state (conversation log, demo
	// bindings). Called at task boundaries.
	Reset()
}
