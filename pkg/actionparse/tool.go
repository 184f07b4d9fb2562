package actionparse

import (
	"encoding/json"
	"strings"

	"github.com/deskstep/deskstep/pkg/coords"
	"github.com/deskstep/deskstep/pkg/types"
)

// Non-terminal computer-tool requests: the conversation session answers
// these itself and re-invokes the model; they never reach the
// environment as steps.
const (
	ToolRequestScreenshot     = "screenshot"
	ToolRequestCursorPosition = "cursor_position"
)

// ParseToolInput converts a computer-use tool invocation (the
// Anthropic-style {"action": ..., "coordinate": [x, y]} payload) into
// a Result. Tool coordinates arrive in pixels of the screenshot the
// model was shown.
func (p *Parser) ParseToolInput(input map[string]any, width, height int) Result {
	res := Result{Strategy: "tool"}
	if raw, err := json.Marshal(input); err == nil {
		res.Action.Raw = string(raw)
	}

	verb, _ := input["action"].(string)
	verb = strings.ToLower(verb)

	switch verb {
	case ToolRequestScreenshot, ToolRequestCursorPosition:
		res.ToolRequest = verb
		return res
	case "mouse_move":
		// Movement without a click has no observable effect on the WAA
		// side; treat it as a wait so the episode keeps moving.
		res.Action.Kind = types.ActionWait
		return res
	}

	point := func(key string) *types.Point {
		pair, ok := input[key].([]any)
		if !ok || len(pair) != 2 {
			return nil
		}
		x, xok := toFloat(pair[0])
		y, yok := toFloat(pair[1])
		if !xok || !yok {
			return nil
		}
		nx, ny := coords.ToNormalized(x, y, types.SpacePixel, width, height)
		return &types.Point{X: nx, Y: ny}
	}

	switch verb {
	case "left_click", "click":
		res.Action.Kind = types.ActionClick
		res.Action.Pos = point("coordinate")
	case "double_click":
		res.Action.Kind = types.ActionDoubleClick
		res.Action.Pos = point("coordinate")
	case "right_click":
		res.Action.Kind = types.ActionRightClick
		res.Action.Pos = point("coordinate")
	case "type":
		res.Action.Kind = types.ActionType
		res.Action.Text, _ = input["text"].(string)
	case "key":
		text, _ := input["text"].(string)
		if strings.Contains(text, "+") {
			res.Action.Kind = types.ActionHotkey
			res.Action.Keys = splitCombo(text)
		} else {
			res.Action.Kind = types.ActionKey
			res.Action.Keys = []string{strings.ToLower(text)}
		}
	case "scroll":
		res.Action.Kind = types.ActionScroll
		res.Action.Pos = point("coordinate")
		amount := 3
		if v, ok := toFloat(input["scroll_amount"]); ok {
			amount = int(v)
		}
		if dir, _ := input["scroll_direction"].(string); strings.EqualFold(dir, "up") {
			amount = -amount
		}
		res.Action.ScrollDy = amount
	case "left_click_drag":
		res.Action.Kind = types.ActionDrag
		res.Action.Pos = point("start_coordinate")
		res.Action.DragTo = point("coordinate")
		if res.Action.Pos == nil || res.Action.DragTo == nil {
			res.Action.Kind = types.ActionUnknown
		}
	case "wait":
		res.Action.Kind = types.ActionWait
	default:
		if p.logger != nil {
			p.logger.Warn().Str("verb", verb).Msg("Unrecognized computer tool action")
		}
		res.Action.Kind = types.ActionUnknown
	}

	if res.Action.Kind == types.ActionClick || res.Action.Kind == types.ActionDoubleClick || res.Action.Kind == types.ActionRightClick {
		if res.Action.Pos == nil {
			res.Action.Kind = types.ActionUnknown
		}
	}
	return res
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
