package types

import "errors"

// ErrEnvironmentUnavailable marks an environment HTTP failure or
// timeout. Episodes ending with this error are recorded as
// failed-infrastructure, distinct from failed-task, and the run moves
// on to the next task.
var ErrEnvironmentUnavailable = errors.New("environment unavailable")

// ErrEvaluatorUnavailable marks a missing or failing native scoring
// endpoint. The score is recorded as unavailable, never as 0.0.
var ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
