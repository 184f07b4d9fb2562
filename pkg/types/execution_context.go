package types

// CoordSpace identifies the coordinate convention a model emits.
type CoordSpace string

const (
	// SpaceNormalized is [0,1] on both axes.
	SpaceNormalized CoordSpace = "normalized"
	// SpacePixel is raw screen pixels.
	SpacePixel CoordSpace = "pixel"
	// SpaceModel1000 is the [0,1000] convention some fine-tunes emit.
	SpaceModel1000 CoordSpace = "model_1000"
)

// ProviderConfig describes one model provider from the suite file.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint; for openai-type
	// providers this is how vLLM-served fine-tunes are reached.
	BaseURL string `yaml:"base_url,omitempty"`

	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`

	// CoordSpace is the model-native coordinate convention. Empty
	// defaults to model_1000 for openai-type and pixel for
	// anthropic-type providers.
	CoordSpace CoordSpace `yaml:"coord_space,omitempty"`

	// DemoPlacement is where demo text goes in the prompt. Empty
	// defaults to system placement.
	DemoPlacement DemoPlacement `yaml:"demo_placement,omitempty"`
}

// ExecutionContext contains everything an agent needs for one episode.
type ExecutionContext struct {
	TaskID      string
	Instruction string
	Provider    ProviderConfig
	Demo        *Demo
	Logger      Logger
}
