package cli

import (
	"fmt"
	"path/filepath"

	"github.com/deskstep/deskstep/pkg/core"
	"github.com/deskstep/deskstep/pkg/log"
	"github.com/deskstep/deskstep/pkg/log/sinks"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	// Ensure all agent implementations are initialized
	_ "github.com/deskstep/deskstep/pkg/agent/agents"
)

type LintCmd struct {
	Varfile string `help:"The YAML varfile for input variables." default:"dsvars.yml"`
	Suite   string `help:"The evaluation suite configuration file." default:"deskstep.yml"`
}

func (l *LintCmd) Run() error {
	consoleSink := sinks.NewConsoleSink()

	logRouter := log.NewRouter()
	logRouter.AddSink(consoleSink)

	baseZerologInstance := zerolog.New(logRouter).With().Timestamp().Logger()
	cmdLogger := log.NewZerologAdapter(baseZerologInstance)

	cmdLogger.Info().Msgf("Validating %s using %s", l.Suite, l.Varfile)

	if err := godotenv.Load(); err != nil {
		cmdLogger.Warn().Err(err).Msgf("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	s, err := core.LoadSuiteFromFile(l.Suite)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load suite file %s", l.Suite)
		return fmt.Errorf("loading suite file %q: %w", l.Suite, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded suite: %s", s.Name)

	suiteAbsPath, err := filepath.Abs(l.Suite)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Could not determine absolute path for suite file %s", l.Suite)
		return fmt.Errorf("determining absolute path for suite file %q: %w", l.Suite, err)
	}
	suiteDir := filepath.Dir(suiteAbsPath)

	varCtx, err := loadVarContext(l.Varfile, cmdLogger)
	if err != nil {
		return err
	}

	for _, input := range s.Inputs {
		if _, exists := varCtx[input.Name]; !exists && input.Default != "" {
			varCtx[input.Name] = input.Default
		}
	}

	if err := core.ValidateRequiredInputs(s, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msgf("Required input validation failed")
		return fmt.Errorf("validating required inputs: %w", err)
	}
	cmdLogger.Info().Msgf("Required input validation passed")

	cmdLogger.Info().Msgf("Validating providers...")
	resolvedProviders := make(map[string]core.ProviderConfig)
	for _, p := range s.Providers {
		resolvedP, err := core.ResolveProviderVariables(&p, varCtx)
		if err != nil {
			cmdLogger.Error().Err(err).Msgf("Provider %q has a configuration issue", p.Name)
			return fmt.Errorf("resolving variables for provider %q: %w", p.Name, err)
		}
		resolvedProviders[p.Name] = *resolvedP
	}
	cmdLogger.Info().Msgf("Provider validation passed")

	if _, err := core.ResolveStringWithContext(s.Environment.BaseURL, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msg("Environment base_url has a configuration issue")
		return fmt.Errorf("resolving environment.base_url: %w", err)
	}

	cmdLogger.Info().Msgf("Validating tasks...")
	for i := range s.Tasks {
		resolved, err := core.ResolveTaskVariables(&s.Tasks[i], varCtx)
		if err != nil {
			cmdLogger.Error().Err(err).Msgf("Task %q has a configuration issue", s.Tasks[i].ID)
			return fmt.Errorf("resolving variables for task %q: %w", s.Tasks[i].ID, err)
		}
		s.Tasks[i] = *resolved
	}

	if err := core.ValidateSuiteAgents(s, suiteDir, resolvedProviders, cmdLogger); err != nil {
		cmdLogger.Error().Err(err).Msg("Task validation failed")
		return fmt.Errorf("validating tasks: %w", err)
	}

	cmdLogger.Info().Msg("Successfully validated suite configuration ✅")
	return nil
}
