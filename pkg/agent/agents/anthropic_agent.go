package agents

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/deskstep/deskstep/pkg/actionparse"
	"github.com/deskstep/deskstep/pkg/agent"
	"github.com/deskstep/deskstep/pkg/demo"
	"github.com/deskstep/deskstep/pkg/types"
)

const anthropicSystemPrompt = `You are a GUI agent operating a remote Windows desktop through the computer tool. ` +
	`Work step by step towards the task; issue exactly one tool call per turn. ` +
	`Use the screenshot tool action only when you genuinely need a fresh look at the screen.`

// AnthropicAgent drives a tool-use model through the computer tool. All
// conversation state lives in the per-episode Session.
type AnthropicAgent struct {
	ExecCtx types.ExecutionContext

	client  *anthropic.Client
	session *Session
	parser  *actionparse.Parser
}

func init() {
	agent.RegisterFactory("anthropic", func(ctx types.ExecutionContext) (agent.Agent, error) {
		if ctx.Provider.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an API key", ctx.Provider.Name)
		}

		space := ctx.Provider.CoordSpace
		if space == "" {
			// The computer tool reports coordinates in pixels of the
			// screenshot it was shown.
			space = types.SpacePixel
		}
		parser := actionparse.NewParser(space, ctx.Logger)

		return &AnthropicAgent{
			ExecCtx: ctx,
			client:  anthropic.NewClient(option.WithAPIKey(ctx.Provider.APIKey)),
			session: newSession(parser, ctx.Logger),
			parser:  parser,
		}, nil
	})
}

func (a *AnthropicAgent) Validate() error {
	if a.ExecCtx.Provider.Model == "" {
		return fmt.Errorf("provider %q must define 'model'", a.ExecCtx.Provider.Name)
	}
	if a.ExecCtx.Instruction == "" {
		return fmt.Errorf("task %q has an empty instruction", a.ExecCtx.TaskID)
	}
	return nil
}

func (a *AnthropicAgent) NextAction(ctx context.Context, obs *types.Observation, history []types.HistoryEntry) (*agent.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultModelTimeout)
	defer cancel()

	system := anthropicSystemPrompt
	var promptDemo *types.Demo
	if a.ExecCtx.Provider.DemoPlacement == types.DemoPlacementUser {
		promptDemo = a.ExecCtx.Demo
	} else if a.ExecCtx.Demo != nil {
		system += "\n\n" + demo.Format(a.ExecCtx.Demo)
	}
	prompt := demo.BuildPrompt(a.ExecCtx.Instruction, promptDemo, obs.StepIndex)

	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		return a.client.Messages.New(ctx, a.newParams(system, messages, obs))
	}

	res, err := a.session.Step(ctx, prompt, obs, invoke)
	if err != nil {
		return nil, err
	}

	return &agent.Decision{
		Action: res.parsed.Action,
		Meta: types.AgentMetadata{
			Think:         res.parsed.Think,
			ParseStrategy: res.parsed.Strategy,
			InputTokens:   res.in,
			OutputTokens:  res.out,
			ToolLoopIters: res.toolIters,
		},
		Prompt: prompt,
	}, nil
}

func (a *AnthropicAgent) Reset() {
	a.session.Close()
	a.session = newSession(a.parser, a.ExecCtx.Logger)
}

func (a *AnthropicAgent) newParams(system string, messages []anthropic.MessageParam, obs *types.Observation) anthropic.MessageNewParams {
	maxTokens := a.ExecCtx.Provider.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.F(a.ExecCtx.Provider.Model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(system),
			},
		}),
		Messages: anthropic.F(messages),
		Tools:    anthropic.F(computerTool(obs.Width, obs.Height)),
	}
}

// computerTool defines the computer-use tool with the display size of
// the current observation, never a hard-coded resolution.
func computerTool(width, height int) []anthropic.ToolUnionUnionParam {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"left_click", "double_click", "right_click", "type", "key",
					"scroll", "left_click_drag", "mouse_move", "wait",
					"screenshot", "cursor_position",
				},
			},
			"coordinate": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "number"},
				"minItems": 2,
				"maxItems": 2,
			},
			"start_coordinate": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "number"},
				"minItems": 2,
				"maxItems": 2,
			},
			"text":             map[string]any{"type": "string"},
			"scroll_direction": map[string]any{"type": "string", "enum": []string{"up", "down"}},
			"scroll_amount":    map[string]any{"type": "integer"},
			"duration":         map[string]any{"type": "number"},
		},
		"required": []string{"action"},
	}

	return []anthropic.ToolUnionUnionParam{
		anthropic.ToolParam{
			Name: anthropic.F("computer"),
			Description: anthropic.F(fmt.Sprintf(
				"Control the remote desktop. The display is %dx%d pixels; coordinates are pixel positions on the attached screenshot.",
				width, height)),
			InputSchema: anthropic.F[any](schema),
		},
	}
}
