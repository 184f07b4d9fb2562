package core

import (
	"fmt"

	"github.com/deskstep/deskstep/pkg/agent"
	"github.com/deskstep/deskstep/pkg/demo"
	"github.com/deskstep/deskstep/pkg/types"
)

// ValidateSuiteStructure checks fields at the suite level, validating
// suite name, input types/uniqueness, provider references, and task
// uniqueness.
func ValidateSuiteStructure(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("suite is missing 'name'")
	}
	if s.Environment.BaseURL == "" {
		return fmt.Errorf("suite is missing 'environment.base_url'")
	}

	validInputTypes := map[string]bool{
		"string":  true,
		"file":    true,
		"number":  true,
		"boolean": true,
	}

	inputNames := make(map[string]bool)
	for i, input := range s.Inputs {
		if input.Name == "" {
			return fmt.Errorf("input %d is missing 'name'", i)
		}
		if inputNames[input.Name] {
			return fmt.Errorf("duplicate input name: %q", input.Name)
		}
		inputNames[input.Name] = true

		if !validInputTypes[input.Type] {
			return fmt.Errorf("input %q has invalid type %q", input.Name, input.Type)
		}
	}

	providerNames := make(map[string]bool)
	for i, provider := range s.Providers {
		if provider.Name == "" {
			return fmt.Errorf("provider %d is missing 'name'", i)
		}
		if providerNames[provider.Name] {
			return fmt.Errorf("duplicate provider name: %q", provider.Name)
		}
		providerNames[provider.Name] = true

		if provider.Type == "" {
			return fmt.Errorf("provider %q is missing 'type'", provider.Name)
		}
	}

	taskIDs := make(map[string]bool)
	for i, task := range s.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task %d is missing 'id'", i)
		}
		if taskIDs[task.ID] {
			return fmt.Errorf("duplicate task id: %q", task.ID)
		}
		taskIDs[task.ID] = true

		if task.Instruction == "" {
			return fmt.Errorf("task %q is missing 'instruction'", task.ID)
		}
		if task.Provider == "" {
			return fmt.Errorf("task %q is missing 'provider'", task.ID)
		}
		if !providerNames[task.Provider] {
			return fmt.Errorf("task %q references provider %q, which is not defined", task.ID, task.Provider)
		}
		if task.MaxSteps != nil && *task.MaxSteps <= 0 {
			return fmt.Errorf("task %q: max_steps must be greater than 0", task.ID)
		}
		switch task.Evaluator {
		case "", "native", "none":
		default:
			return fmt.Errorf("task %q has invalid evaluator %q", task.ID, task.Evaluator)
		}
	}

	return nil
}

func ValidateRequiredInputs(s *Suite, varCtx VarContext) error {
	for _, input := range s.Inputs {
		if input.Required {
			if _, exists := varCtx[input.Name]; !exists && input.Default == "" {
				return fmt.Errorf("required input %q is missing from the varfile and no default value is provided", input.Name)
			}
		}
	}
	return nil
}

// ValidateSuiteAgents instantiates each task's agent and runs its
// Validate pass, and loads each referenced demo file so recording
// defects surface at lint time, not mid-episode.
func ValidateSuiteAgents(s *Suite, suiteDir string, providers map[string]ProviderConfig, logger types.Logger) error {
	for _, task := range s.Tasks {
		provider, ok := providers[task.Provider]
		if !ok {
			return fmt.Errorf("task %q references provider %q, which is not resolved", task.ID, task.Provider)
		}

		var d *types.Demo
		if task.DemoFile != "" {
			path := ResolvePathFromSuite(suiteDir, task.DemoFile)
			var err error
			d, err = demo.LoadFromFile(path, logger)
			if err != nil {
				return fmt.Errorf("task %q: %w", task.ID, err)
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
			return fmt.Errorf("getting agent for task %q: %w", task.ID, err)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("validating task %q: %w", task.ID, err)
		}
	}

	return nil
}
