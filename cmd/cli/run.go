package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deskstep/deskstep/pkg/core"
	"github.com/deskstep/deskstep/pkg/envclient"
	"github.com/deskstep/deskstep/pkg/log"
	"github.com/deskstep/deskstep/pkg/log/sinks"
	"github.com/deskstep/deskstep/pkg/security"
	"github.com/deskstep/deskstep/pkg/trace"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	// Ensure all agent implementations are initialized
	_ "github.com/deskstep/deskstep/pkg/agent/agents"
)

type RunCmd struct {
	Varfile string `help:"The YAML varfile for input variables." default:"dsvars.yml"`
	Suite   string `help:"The evaluation suite configuration file." default:"deskstep.yml"`
}

func getFallbackKey(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

func (r *RunCmd) Run() error {
	runID := uuid.New().String()

	consoleSink := sinks.NewConsoleSink()

	logsDir := ".deskstep/logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs directory %q: %w", logsDir, err)
	}
	logFilePath := filepath.Join(logsDir, fmt.Sprintf("%s.json", runID))
	fileSink, err := sinks.NewFileSink(logFilePath)
	if err != nil {
		return fmt.Errorf("creating file log sink: %w", err)
	}

	logRouter := log.NewRouter()
	logRouter.AddSink(consoleSink)
	logRouter.AddSink(fileSink)

	baseZerologInstance := zerolog.New(logRouter).With().Timestamp().Logger()
	cmdLogger := log.NewZerologAdapter(baseZerologInstance)

	cmdLogger.Info().Msgf("Starting evaluation run with ID: %s", runID)
	cmdLogger.Info().Msgf("Logs will be saved to %q", logFilePath)

	// Graceful shutdown of logging sinks
	defer func() {
		cmdLogger.Info().Msg("Shutting down logger...")
		if err := logRouter.Close(); err != nil {
			fmt.Printf("Error during log shutdown: %v", err)
		}
	}()

	if err := godotenv.Load(); err != nil {
		cmdLogger.Warn().Err(err).Msgf("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	s, err := core.LoadSuiteFromFile(r.Suite)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load suite file %s", r.Suite)
		return fmt.Errorf("loading suite file %q: %w", r.Suite, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded suite: %q", s.Name)

	suiteAbsPath, err := filepath.Abs(r.Suite)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Could not determine absolute path for suite file %s", r.Suite)
		return fmt.Errorf("determining absolute path for suite file %q: %w", r.Suite, err)
	}
	suiteDir := filepath.Dir(suiteAbsPath)

	varCtx, err := loadVarContext(r.Varfile, cmdLogger)
	if err != nil {
		return err
	}

	// Apply default values for inputs that are not provided in the varfile
	for _, input := range s.Inputs {
		if _, exists := varCtx[input.Name]; !exists && input.Default != "" {
			cmdLogger.Debug().Msgf("Using default value for input %q", input.Name)
			varCtx[input.Name] = input.Default
		}
	}

	// Validate required input variables
	if err := core.ValidateRequiredInputs(s, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msgf("Required input validation failed")
		return err
	}
	cmdLogger.Info().Msgf("Required input validation passed")

	// Resolve suite providers
	resolvedProviders := make(map[string]core.ProviderConfig)
	for _, p := range s.Providers {
		resolvedP, err := core.ResolveProviderVariables(&p, varCtx)
		if err != nil {
			cmdLogger.Error().Err(err).Msgf("Failed to resolve variables for provider %q", p.Name)
			return fmt.Errorf("resolving variables for provider %q: %w", p.Name, err)
		}
		resolvedProviders[p.Name] = *resolvedP
	}

	// Apply fallback API keys for providers with empty API keys. An
	// openai-type provider pointed at a local endpoint (vLLM) gets a
	// pass: those servers don't check credentials.
	for name, provider := range resolvedProviders {
		if provider.APIKey == "" {
			fallbackKey := getFallbackKey(provider.Type)
			if fallbackKey != "" {
				cmdLogger.Info().Msgf("API key for provider %q not set in the suite, using environment variable", provider.Name)
				provider.APIKey = fallbackKey
				resolvedProviders[name] = provider
			} else if provider.Type == "openai" && provider.BaseURL != "" {
				cmdLogger.Warn().Msgf("Provider %q has no API key; assuming endpoint %q does not require one", provider.Name, provider.BaseURL)
			} else {
				cmdLogger.Error().Msgf("API key for provider %q is not defined in the suite or the expected environment variable", provider.Name)
				return fmt.Errorf("API key for provider %q is not defined in the suite or the expected environment variable", provider.Name)
			}
		}
	}

	// Initialize and attach secrets redactor, covering secret inputs and
	// resolved provider keys
	providerList := make([]core.ProviderConfig, 0, len(resolvedProviders))
	for _, p := range resolvedProviders {
		providerList = append(providerList, p)
	}
	logRouter.Redactor = security.NewRedactor(s.Inputs, varCtx, providerList...)

	// Resolve templated task fields up front so validation and execution
	// see the same values
	for i := range s.Tasks {
		resolved, err := core.ResolveTaskVariables(&s.Tasks[i], varCtx)
		if err != nil {
			cmdLogger.Error().Err(err).Msgf("Failed to resolve variables for task %q", s.Tasks[i].ID)
			return fmt.Errorf("resolving variables for task %q: %w", s.Tasks[i].ID, err)
		}
		s.Tasks[i] = *resolved
	}

	if err := core.ValidateSuiteAgents(s, suiteDir, resolvedProviders, cmdLogger); err != nil {
		cmdLogger.Error().Err(err).Msg("Suite agent validation failed")
		return fmt.Errorf("validating suite agents: %w", err)
	}
	cmdLogger.Info().Msg("Suite validation passed")

	baseURL, err := core.ResolveStringWithContext(s.Environment.BaseURL, varCtx)
	if err != nil {
		return fmt.Errorf("resolving environment.base_url: %w", err)
	}
	var envTimeout time.Duration
	if s.Environment.Timeout != "" {
		envTimeout, err = time.ParseDuration(s.Environment.Timeout)
		if err != nil {
			return fmt.Errorf("parsing environment.timeout %q: %w", s.Environment.Timeout, err)
		}
	}

	outputDir := s.OutputDir
	if outputDir == "" {
		outputDir = "runs"
	}
	writer, err := trace.NewWriter(core.ResolvePathFromSuite(suiteDir, outputDir), runID)
	if err != nil {
		return fmt.Errorf("creating trace writer: %w", err)
	}
	cmdLogger.Info().Msgf("Trajectories will be saved to %q", writer.Dir())

	newEnv := func(task core.Task) core.Environment {
		return envclient.New(baseURL, envTimeout, task.AccessibilityTree, cmdLogger)
	}

	// Ctrl-C flushes partial trajectories instead of dropping them
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdLogger.Info().Msgf("Executing suite: %q", s.Name)

	engine := core.NewEvalEngine(cmdLogger, runID, newEnv, writer, suiteDir)
	trajectories, err := engine.ExecuteSuite(ctx, s, resolvedProviders)
	if err != nil {
		return err
	}

	var scored, unavailable int
	var total float64
	for _, traj := range trajectories {
		if traj.Score.Status == types.ScoreStatusScored {
			scored++
			total += traj.Score.Value
		} else {
			unavailable++
		}
	}
	cmdLogger.Info().
		Int("tasks", len(trajectories)).
		Int("scored", scored).
		Int("unscored", unavailable).
		Msgf("Suite completed. Trajectories can be found at %q", writer.Dir())
	if scored > 0 {
		cmdLogger.Info().Msgf("Mean score over scored tasks: %.3f", total/float64(scored))
	}
	return nil
}

// loadVarContext resolves the varfile, tolerating a missing file so
// suites that only use env interpolation still run.
func loadVarContext(path string, logger types.Logger) (core.VarContext, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		logger.Warn().Msgf("Varfile %s not found. Proceeding without global variables. Required inputs might fail validation if not in ENV.", path)
		return make(core.VarContext), nil
	}
	varCtx, err := core.ResolveVarfile(path)
	if err != nil {
		logger.Warn().Err(err).Msgf("Could not fully resolve varfile %q. Some variable validations might be affected.", path)
		if varCtx == nil {
			varCtx = make(core.VarContext)
		}
		return varCtx, nil
	}
	logger.Info().Msgf("Successfully loaded and resolved varfile: %s", path)
	return varCtx, nil
}
