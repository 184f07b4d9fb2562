package core

import (
	"context"

	"github.com/deskstep/deskstep/pkg/types"
)

type Logger = types.Logger

// Environment is the adapter surface the engine drives. The live
// implementation is envclient.Client; tests substitute a scripted fake.
type Environment interface {
	// Reset prepares the environment for a task (probe, setup) and
	// returns the initial observation.
	Reset(ctx context.Context, setup []map[string]any) (*types.Observation, error)
	// Step executes one action and returns the next observation.
	Step(ctx context.Context, action types.Action, prev *types.Observation) (*types.Observation, error)
	// Evaluate runs the environment's native scorer for the task.
	Evaluate(ctx context.Context, taskID string) (types.Score, error)
}
