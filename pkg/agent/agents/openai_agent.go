package agents

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/deskstep/deskstep/pkg/actionparse"
	"github.com/deskstep/deskstep/pkg/agent"
	"github.com/deskstep/deskstep/pkg/demo"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// defaultModelTimeout bounds one model call so a hung inference server
// cannot stall the worker indefinitely.
const defaultModelTimeout = 120 * time.Second

const openaiSystemPrompt = `You are a GUI agent operating a remote Windows desktop. ` +
	`At each step you see a screenshot of the current screen and must respond with exactly one action call.

Available actions:
  click(x, y)          double_click(x, y)      right_click(x, y)
  type(text="...")     press(key)              hotkey(key1, key2, ...)
  scroll(direction, amount)                    drag(x1, y1, x2, y2)
  wait()               finished("final message")
When an accessibility tree is provided you may also use:
  click_element(id)    type_element(id, text="...")

Coordinates are on a 0-1000 grid over the screenshot. ` +
	`You may reason inside <think></think> tags before the action call.`

// OpenAIAgent drives any OpenAI-compatible chat-completions endpoint,
// including vLLM-served fine-tunes, with the screenshot attached as an
// image part and the action parsed from free text.
type OpenAIAgent struct {
	ExecCtx types.ExecutionContext

	client *openai.Client
	parser *actionparse.Parser
}

func init() {
	agent.RegisterFactory("openai", func(ctx types.ExecutionContext) (agent.Agent, error) {
		opts := []option.RequestOption{}
		if ctx.Provider.APIKey != "" {
			opts = append(opts, option.WithAPIKey(ctx.Provider.APIKey))
		}
		if ctx.Provider.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(ctx.Provider.BaseURL))
		}

		space := ctx.Provider.CoordSpace
		if space == "" {
			space = types.SpaceModel1000
		}

		return &OpenAIAgent{
			ExecCtx: ctx,
			client:  openai.NewClient(opts...),
			parser:  actionparse.NewParser(space, ctx.Logger),
		}, nil
	})
}

func (a *OpenAIAgent) Validate() error {
	if a.ExecCtx.Provider.Model == "" {
		return fmt.Errorf("provider %q must define 'model'", a.ExecCtx.Provider.Name)
	}
	if a.ExecCtx.Instruction == "" {
		return fmt.Errorf("task %q has an empty instruction", a.ExecCtx.TaskID)
	}
	return nil
}

func (a *OpenAIAgent) NextAction(ctx context.Context, obs *types.Observation, history []types.HistoryEntry) (*agent.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultModelTimeout)
	defer cancel()

	system := openaiSystemPrompt
	var promptDemo *types.Demo
	if a.ExecCtx.Provider.DemoPlacement == types.DemoPlacementUser {
		promptDemo = a.ExecCtx.Demo
	} else if a.ExecCtx.Demo != nil {
		// System placement: the system prompt is resent every call, so
		// the demo still reaches the model at every step.
		system += "\n\n" + demo.Format(a.ExecCtx.Demo)
	}

	prompt := demo.BuildPrompt(a.ExecCtx.Instruction, promptDemo, obs.StepIndex)
	if summary := historySummary(history); summary != "" {
		prompt = summary + "\n" + prompt
	}
	if obs.AccessibilityTree != "" {
		prompt += "\n\nAccessibility tree:\n" + obs.AccessibilityTree
	}

	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(obs.Screenshot)

	maxTokens := a.ExecCtx.Provider.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.F(a.ExecCtx.Provider.Model),
		MaxTokens: openai.F(int64(maxTokens)),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessageParts(
				openai.TextPart(prompt),
				openai.ImagePart(imageURL),
			),
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("calling chat completions endpoint: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	raw := completion.Choices[0].Message.Content
	parsed := a.parser.Parse(raw, obs.Width, obs.Height)

	return &agent.Decision{
		Action: parsed.Action,
		Meta: types.AgentMetadata{
			Think:         parsed.Think,
			ParseStrategy: parsed.Strategy,
			InputTokens:   completion.Usage.PromptTokens,
			OutputTokens:  completion.Usage.CompletionTokens,
		},
		Prompt: prompt,
	}, nil
}

func (a *OpenAIAgent) Reset() {
	// Each step is a fresh prompt; there is no cross-step state beyond
	// what the runner passes in as history.
}

// historySummary renders prior actions so a stateless chat model can
// see what it already tried.
func historySummary(history []types.HistoryEntry) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Actions taken so far:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "  %d. %s\n", h.StepIndex+1, describeAction(h.Action))
	}
	return b.String()
}

func describeAction(a types.Action) string {
	switch {
	case a.Pos != nil && a.DragTo != nil:
		return fmt.Sprintf("%s from (%.3f, %.3f) to (%.3f, %.3f)", a.Kind, a.Pos.X, a.Pos.Y, a.DragTo.X, a.DragTo.Y)
	case a.Pos != nil:
		return fmt.Sprintf("%s at (%.3f, %.3f)", a.Kind, a.Pos.X, a.Pos.Y)
	case a.Text != "":
		return fmt.Sprintf("%s %q", a.Kind, a.Text)
	case len(a.Keys) > 0:
		return fmt.Sprintf("%s %s", a.Kind, strings.Join(a.Keys, "+"))
	case a.ElementID != "":
		return fmt.Sprintf("%s element %s", a.Kind, a.ElementID)
	default:
		return string(a.Kind)
	}
}
