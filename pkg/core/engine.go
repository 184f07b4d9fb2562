package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deskstep/deskstep/pkg/agent"
	"github.com/deskstep/deskstep/pkg/demo"
	"github.com/deskstep/deskstep/pkg/loopguard"
	"github.com/deskstep/deskstep/pkg/trace"
	"github.com/deskstep/deskstep/pkg/types"
)

// EnvFactory yields the environment adapter for one task. The live
// factory builds an envclient.Client against the suite's base URL.
type EnvFactory func(task Task) Environment

// EvalEngine drives episodes: one sequential control flow per task,
// observe -> prompt -> parse -> loop-guard -> step, until the agent
// signals done or the step budget runs out.
type EvalEngine struct {
	Logger   Logger
	RunID    string
	NewEnv   EnvFactory
	Writer   *trace.Writer
	SuiteDir string
}

func NewEvalEngine(logger Logger, runID string, newEnv EnvFactory, writer *trace.Writer, suiteDir string) *EvalEngine {
	return &EvalEngine{
		Logger:   logger,
		RunID:    runID,
		NewEnv:   newEnv,
		Writer:   writer,
		SuiteDir: suiteDir,
	}
}

// ExecuteSuite runs every task of the suite in order. Per-task failures
// (including infrastructure ones) are recorded and the run moves on to
// the next task; only context cancellation stops the whole run.
func (e *EvalEngine) ExecuteSuite(ctx context.Context, s *Suite, providers map[string]ProviderConfig) ([]*trace.Trajectory, error) {
	var trajectories []*trace.Trajectory

	for _, task := range s.Tasks {
		e.Logger.Info().Msgf("Running task %q (provider=%s)", task.ID, task.Provider)

		provider, found := providers[task.Provider]
		if !found {
			return trajectories, fmt.Errorf("task %q references provider %q, which is not resolved", task.ID, task.Provider)
		}

		traj, err := e.runTask(ctx, task, provider)
		if traj != nil {
			trajectories = append(trajectories, traj)
		}
		if err != nil {
			if ctx.Err() != nil {
				return trajectories, ctx.Err()
			}
			e.Logger.Error().Err(err).Msgf("Task %q failed, continuing with next task", task.ID)
			continue
		}

		e.Logger.Info().
			Str("task_id", task.ID).
			Str("terminal", string(traj.Terminal)).
			Interface("score", traj.Score).
			Msg("Task finished")
	}

	return trajectories, nil
}

func (e *EvalEngine) runTask(ctx context.Context, task Task, provider ProviderConfig) (traj *trace.Trajectory, err error) {
	logger := e.Logger.With().Str("task_id", task.ID).Logger()

	var d *types.Demo
	if task.DemoFile != "" {
		d, err = demo.LoadFromFile(ResolvePathFromSuite(e.SuiteDir, task.DemoFile), logger)
		if err != nil {
			return nil, fmt.Errorf("loading demo for task %q: %w", task.ID, err)
		}
	}

	execCtx := types.ExecutionContext{
		TaskID:      task.ID,
		Instruction: task.Instruction,
		Provider:    provider,
		Demo:        d,
		Logger:      logger,
	}
	a, err := agent.GetAgent(execCtx)
	if err != nil {
		return nil, fmt.Errorf("getting agent for task %q: %w", task.ID, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("validating task %q: %w", task.ID, err)
	}
	defer a.Reset()

	env := e.NewEnv(task)
	detector := loopguard.New(loopguard.DefaultThreshold, logger)

	traj = &trace.Trajectory{
		RunID:       e.RunID,
		TaskID:      task.ID,
		Instruction: task.Instruction,
		Provider:    provider.Name,
		Score:       types.Score{Status: types.ScoreStatusUnavailable},
		StartedAt:   time.Now(),
	}
	// Flush whatever we have on every exit path, including
	// cancellation: partial progress must not be lost at teardown.
	defer func() {
		traj.FinishedAt = time.Now()
		if e.Writer != nil {
			if werr := e.Writer.Write(traj); werr != nil {
				logger.Error().Err(werr).Msg("Failed to persist trajectory")
			}
		}
	}()

	obs, err := env.Reset(ctx, task.Setup)
	if err != nil {
		traj.Terminal = types.TerminalInfra
		traj.Error = err.Error()
		return traj, fmt.Errorf("resetting environment for task %q: %w", task.ID, err)
	}
	logger.Info().Int("width", obs.Width).Int("height", obs.Height).Msg("Environment ready")

	maxSteps := DefaultMaxSteps
	if task.MaxSteps != nil {
		maxSteps = *task.MaxSteps
	}

	traj.Terminal = types.TerminalBudget
	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			traj.Terminal = types.TerminalCancelled
			return traj, ctx.Err()
		}

		start := time.Now()
		decision, err := a.NextAction(ctx, obs, traj.Steps)
		if err != nil {
			if ctx.Err() != nil {
				traj.Terminal = types.TerminalCancelled
				return traj, ctx.Err()
			}
			traj.Terminal = types.TerminalInfra
			traj.Error = err.Error()
			return traj, fmt.Errorf("agent call failed on step %d of task %q: %w", step, task.ID, err)
		}

		action := decision.Action
		if action.Kind == types.ActionUnknown {
			// Parse failures are absorbed, never fatal: a no-op wait
			// keeps the episode alive and the next screenshot usually
			// gets the model back on track.
			logger.Warn().Str("raw", action.Raw).Msg("Unparseable model output, treating as wait")
			action.Kind = types.ActionWait
		}

		action, adjusted := detector.Intercept(action)
		decision.Meta.LoopAdjusted = adjusted

		if action.Kind == types.ActionDone {
			traj.Terminal = types.TerminalDone
			traj.FinalMessage = action.Message
			logger.Info().Int("steps", len(traj.Steps)).Msg("Agent signaled completion")
			break
		}

		next, stepErr := env.Step(ctx, action, obs)

		entry := types.HistoryEntry{
			StepIndex: obs.StepIndex,
			Action:    action,
			Meta:      decision.Meta,
			Duration:  time.Since(start),
		}
		if e.Writer != nil {
			if path, serr := e.Writer.SaveScreenshot(task.ID, obs.StepIndex, obs.Screenshot); serr != nil {
				logger.Warn().Err(serr).Msg("Failed to save step screenshot")
			} else {
				entry.ScreenshotPath = path
			}
		}
		traj.Steps = append(traj.Steps, entry)

		if stepErr != nil {
			if ctx.Err() != nil {
				traj.Terminal = types.TerminalCancelled
				return traj, ctx.Err()
			}
			traj.Terminal = types.TerminalInfra
			traj.Error = stepErr.Error()
			return traj, fmt.Errorf("environment step %d of task %q: %w", step, task.ID, stepErr)
		}
		obs = next
	}

	if task.Evaluator == "none" {
		logger.Info().Msg("Task scoring disabled, recording score as unavailable")
		return traj, nil
	}

	score, err := env.Evaluate(ctx, task.ID)
	if err != nil {
		if errors.Is(err, types.ErrEvaluatorUnavailable) {
			logger.Warn().Err(err).Msg("Evaluator unavailable, score recorded as such")
		} else {
			logger.Error().Err(err).Msg("Evaluation failed, score recorded as unavailable")
		}
		score = types.Score{Status: types.ScoreStatusUnavailable}
	}
	traj.Score = score

	return traj, nil
}
