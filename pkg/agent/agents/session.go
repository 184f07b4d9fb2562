package agents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/deskstep/deskstep/pkg/actionparse"
	"github.com/deskstep/deskstep/pkg/types"
)

// toolLoopCap bounds the internal tool sub-loop. A model that keeps
// asking to "look again" burns one API call per iteration; past the cap
// the session forces a wait so the episode proceeds instead of spending
// unboundedly.
const toolLoopCap = 5

type sessionState int

const (
	stateAwaitingModel sessionState = iota
	stateModelResponded
	stateToolLoopPending
	stateActionReady
	stateDone
)

// invokeFunc sends the accumulated conversation to the model and
// returns its reply. Injected so the state machine is testable without
// a live API.
type invokeFunc func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error)

// Session is the per-episode conversation state machine for tool-use
// models. Non-terminal tool requests (screenshot, cursor position) are
// answered inside the session and re-invoke the model without
// surfacing a step to the runner: without this sub-loop, "model wants
// to look again" gets misread as "episode done" and valid episodes
// terminate after one real step.
//
// A Session serves exactly one episode and is discarded at task end.
type Session struct {
	state            sessionState
	messages         []anthropic.MessageParam
	pendingToolUseID string
	parser           *actionparse.Parser
	logger           types.Logger
}

func newSession(parser *actionparse.Parser, logger types.Logger) *Session {
	return &Session{state: stateAwaitingModel, parser: parser, logger: logger}
}

// stepResult is what one resolved conversation turn hands the agent.
type stepResult struct {
	parsed    actionparse.Result
	toolIters int
	in, out   int64
}

// Step runs the conversation forward by one environment step: it sends
// the observation in, loops internally over non-terminal tool requests,
// and returns once a terminal action is resolved.
func (s *Session) Step(ctx context.Context, prompt string, obs *types.Observation, invoke invokeFunc) (*stepResult, error) {
	if s.state == stateDone {
		return nil, fmt.Errorf("conversation session already terminated")
	}

	s.attachObservation(prompt, obs)

	res := &stepResult{}
	for {
		s.state = stateAwaitingModel
		msg, err := invoke(ctx, s.messages)
		if err != nil {
			return nil, fmt.Errorf("invoking model: %w", err)
		}
		s.state = stateModelResponded
		res.in += msg.Usage.InputTokens
		res.out += msg.Usage.OutputTokens

		block, text := splitReply(msg)
		if block == nil {
			// Pure text reply: parse it like a free-text model.
			s.appendAssistantText(text)
			s.pendingToolUseID = ""
			res.parsed = s.parser.Parse(text, obs.Width, obs.Height)
			s.state = stateActionReady
			return res, nil
		}

		input := decodeToolInput(block.Input)
		parsed := s.parser.ParseToolInput(input, obs.Width, obs.Height)
		parsed.Think = text
		parsed.Action.Raw = firstNonEmpty(parsed.Action.Raw, text)

		if parsed.ToolRequest == "" {
			// Terminal action: hand it to the runner and leave the tool
			// call pending; the next observation answers it.
			s.appendAssistantToolUse(block, text)
			s.pendingToolUseID = block.ID
			res.parsed = parsed
			s.state = stateActionReady
			return res, nil
		}

		// Non-terminal request. Answer it in-conversation, bounded.
		if res.toolIters >= toolLoopCap {
			if s.logger != nil {
				s.logger.Warn().
					Int("iterations", res.toolIters).
					Msg("Tool sub-loop cap reached, forcing a wait action")
			}
			s.appendAssistantToolUse(block, text)
			s.pendingToolUseID = block.ID
			res.parsed = actionparse.Result{
				Action:   types.Action{Kind: types.ActionWait, Raw: parsed.Action.Raw},
				Strategy: "tool",
				Think:    text,
			}
			s.state = stateActionReady
			return res, nil
		}
		s.state = stateToolLoopPending
		res.toolIters++
		s.appendAssistantToolUse(block, text)
		s.messages = append(s.messages, anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(block.ID, "Here is the current screen.", false),
			anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(obs.Screenshot)),
		))
	}
}

// Close marks the session terminal. Sessions are never reused across
// tasks.
func (s *Session) Close() {
	s.state = stateDone
}

// attachObservation appends the user turn for this step: either the
// opening prompt or the tool result answering the previous action's
// tool call, always with the fresh screenshot.
func (s *Session) attachObservation(prompt string, obs *types.Observation) {
	image := anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(obs.Screenshot))

	if s.pendingToolUseID != "" {
		s.messages = append(s.messages, anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(s.pendingToolUseID, "Action executed. The new screen is attached.", false),
			image,
		))
		s.pendingToolUseID = ""
		return
	}

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt), image}
	if obs.AccessibilityTree != "" {
		blocks = append(blocks, anthropic.NewTextBlock("Accessibility tree:\n"+obs.AccessibilityTree))
	}
	s.messages = append(s.messages, anthropic.NewUserMessage(blocks...))
}

func (s *Session) appendAssistantText(text string) {
	if text == "" {
		text = "(no output)"
	}
	s.messages = append(s.messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
}

// appendAssistantToolUse reconstructs the assistant turn including the
// tool_use block so the following tool_result stays paired.
func (s *Session) appendAssistantToolUse(block *anthropic.ContentBlock, text string) {
	var blocks []anthropic.ContentBlockParamUnion
	if text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	blocks = append(blocks, anthropic.ToolUseBlockParam{
		ID:    anthropic.F(block.ID),
		Name:  anthropic.F(block.Name),
		Input: anthropic.F[any](decodeToolInput(block.Input)),
		Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
	})
	s.messages = append(s.messages, anthropic.NewAssistantMessage(blocks...))
}

// splitReply separates the first tool_use block from the accumulated
// text of the reply.
func splitReply(msg *anthropic.Message) (*anthropic.ContentBlock, string) {
	var tool *anthropic.ContentBlock
	text := ""
	for i := range msg.Content {
		block := msg.Content[i]
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			if text != "" {
				text += "\n"
			}
			text += block.Text
		case anthropic.ContentBlockTypeToolUse:
			if tool == nil {
				tool = &msg.Content[i]
			}
		}
	}
	return tool, text
}

// decodeToolInput converts the SDK's tool input payload into a plain
// map via a JSON round-trip.
func decodeToolInput(input any) map[string]any {
	b, err := json.Marshal(input)
	if err != nil {
		return map[string]any{}
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
