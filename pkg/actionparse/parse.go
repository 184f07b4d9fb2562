// Package actionparse turns one step of raw model output into the
// canonical Action. It accepts the call syntaxes different fine-tuned
// models emit (keyword arguments, positional arguments, bare verbs) as
// well as structured computer-use tool inputs, and resolves all of them
// to the same tagged variant.
package actionparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/deskstep/deskstep/pkg/coords"
	"github.com/deskstep/deskstep/pkg/types"
)

// Result is one parsed step: the canonical action, any reasoning text
// extracted from the output, and the strategy identifier recorded in
// trace metadata.
type Result struct {
	Action types.Action
	Think  string
	// Strategy is one of "kwargs", "positional", "bare", "tool".
	Strategy string
	// ToolRequest is set instead of a terminal action when a tool-use
	// model asked for something that must be answered inside the
	// conversation (e.g. "screenshot") rather than executed as a step.
	ToolRequest string
}

// Parser converts raw model output for a single model family. The
// configured coordinate space is the model-native convention; actual
// values are still auto-corrected when they clearly fit another range.
type Parser struct {
	space  types.CoordSpace
	logger types.Logger
}

func NewParser(space types.CoordSpace, logger types.Logger) *Parser {
	if space == "" {
		space = types.SpaceModel1000
	}
	return &Parser{space: space, logger: logger}
}

var (
	thinkRe     = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	thoughtRe   = regexp.MustCompile(`(?s)^\s*Thought:\s*(.*?)(?:\n\s*Action:|\n\n|$)`)
	actionRe    = regexp.MustCompile(`(?s)\n\s*Action:\s*`)
	callStartRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	kwargRe     = regexp.MustCompile(`(?s)^([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*(.*)$`)
)

// canonicalVerbs maps every accepted verb spelling onto an action kind.
var canonicalVerbs = map[string]types.ActionKind{
	"click":           types.ActionClick,
	"left_click":      types.ActionClick,
	"tap":             types.ActionClick,
	"double_click":    types.ActionDoubleClick,
	"doubleclick":     types.ActionDoubleClick,
	"right_click":     types.ActionRightClick,
	"rightclick":      types.ActionRightClick,
	"context_click":   types.ActionRightClick,
	"type":            types.ActionType,
	"type_text":       types.ActionType,
	"input_text":      types.ActionType,
	"write":           types.ActionType,
	"press":           types.ActionKey,
	"key":             types.ActionKey,
	"hotkey":          types.ActionHotkey,
	"key_combo":       types.ActionHotkey,
	"scroll":          types.ActionScroll,
	"drag":            types.ActionDrag,
	"drag_to":         types.ActionDrag,
	"left_click_drag": types.ActionDrag,
	"wait":            types.ActionWait,
	"sleep":           types.ActionWait,
	"done":            types.ActionDone,
	"finished":        types.ActionDone,
	"finish":          types.ActionDone,
	"terminate":       types.ActionDone,
	"stop":            types.ActionDone,
	"click_element":   types.ActionElementClick,
	"element_click":   types.ActionElementClick,
	"type_element":    types.ActionElementType,
	"element_type":    types.ActionElementType,
}

// Parse converts free-text model output into a Result. Unrecognized
// output yields an unknown action, never done: a catch-all that
// defaulted to done was observed to terminate episodes the moment a
// model emitted an unhandled verb.
func (p *Parser) Parse(raw string, width, height int) Result {
	res := Result{}
	res.Action.Raw = raw

	text := raw
	if m := thinkRe.FindStringSubmatch(text); m != nil {
		res.Think = strings.TrimSpace(m[1])
		text = thinkRe.ReplaceAllString(text, "")
	} else if m := thoughtRe.FindStringSubmatch(text); m != nil {
		res.Think = strings.TrimSpace(m[1])
	}
	text = actionRe.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)

	// Prefer the first call whose verb we recognize; models often wrap
	// the call in prose that contains stray parentheses.
	var unknownVerb string
	for _, loc := range callStartRe.FindAllStringSubmatchIndex(text, -1) {
		verb := strings.ToLower(text[loc[2]:loc[3]])
		kind, ok := canonicalVerbs[verb]
		if !ok {
			if unknownVerb == "" {
				unknownVerb = verb
			}
			continue
		}
		argstr, closed := callArgs(text[loc[1]:])
		if !closed {
			continue
		}
		return p.buildCall(res, kind, argstr, width, height)
	}

	// Bare verbs with no argument list ("wait", "DONE").
	bare := strings.ToLower(strings.TrimSpace(strings.Trim(text, ".!")))
	if kind, ok := canonicalVerbs[bare]; ok && (kind == types.ActionWait || kind == types.ActionDone) {
		res.Action.Kind = kind
		res.Strategy = "bare"
		return res
	}

	if unknownVerb != "" && p.logger != nil {
		p.logger.Warn().Str("verb", unknownVerb).Msg("Unrecognized action verb in model output")
	} else if p.logger != nil {
		p.logger.Warn().Msg("Model output matched no action grammar")
	}
	res.Action.Kind = types.ActionUnknown
	res.Strategy = "none"
	return res
}

func (p *Parser) buildCall(res Result, kind types.ActionKind, argstr string, width, height int) Result {
	args := splitArgs(argstr)

	kwargs := map[string]string{}
	var positional []string
	for _, a := range args {
		a = strings.TrimSpace(a)
		if m := kwargRe.FindStringSubmatch(a); m != nil {
			kwargs[strings.ToLower(m[1])] = unquote(strings.TrimSpace(m[2]))
		} else {
			positional = append(positional, unquote(strings.TrimSpace(a)))
		}
	}
	if len(kwargs) > 0 {
		res.Strategy = "kwargs"
	} else {
		res.Strategy = "positional"
	}

	res.Action.Kind = kind
	switch kind {
	case types.ActionClick, types.ActionDoubleClick, types.ActionRightClick:
		res.Action.Pos = p.point(kwargs, positional, "x", "y", width, height)
		if res.Action.Pos == nil {
			// A pointer verb without coordinates cannot be executed.
			res.Action.Kind = types.ActionUnknown
		}

	case types.ActionType:
		res.Action.Text = firstOf(kwargs, positional, 0, "text", "content", "value")

	case types.ActionKey:
		k := firstOf(kwargs, positional, 0, "key", "keys")
		if strings.Contains(k, "+") {
			res.Action.Kind = types.ActionHotkey
			res.Action.Keys = splitCombo(k)
		} else if k != "" {
			res.Action.Keys = []string{strings.ToLower(k)}
		} else {
			res.Action.Kind = types.ActionUnknown
		}

	case types.ActionHotkey:
		if len(positional) == 1 && strings.Contains(positional[0], "+") {
			res.Action.Keys = splitCombo(positional[0])
		} else if len(positional) > 0 {
			for _, k := range positional {
				res.Action.Keys = append(res.Action.Keys, strings.ToLower(k))
			}
		} else if k := firstOf(kwargs, nil, -1, "keys", "key"); k != "" {
			res.Action.Keys = splitCombo(k)
		} else {
			res.Action.Kind = types.ActionUnknown
		}

	case types.ActionScroll:
		res.Action.ScrollDy = scrollAmount(kwargs, positional)
		res.Action.Pos = p.point(kwargs, nil, "x", "y", width, height)

	case types.ActionDrag:
		from := p.point(kwargs, positional, "x", "y", width, height)
		to := p.point(kwargs, positional[min(2, len(positional)):], "to_x", "to_y", width, height)
		if to == nil {
			to = p.point(kwargs, nil, "x2", "y2", width, height)
		}
		if from == nil || to == nil {
			res.Action.Kind = types.ActionUnknown
		} else {
			res.Action.Pos = from
			res.Action.DragTo = to
		}

	case types.ActionWait:
		// Optional duration argument is advisory; the environment owns
		// the actual wait length.

	case types.ActionDone:
		res.Action.Message = firstOf(kwargs, positional, 0, "message", "answer", "status")

	case types.ActionElementClick:
		res.Action.ElementID = firstOf(kwargs, positional, 0, "id", "element_id", "element")
		if res.Action.ElementID == "" {
			res.Action.Kind = types.ActionUnknown
		}

	case types.ActionElementType:
		res.Action.ElementID = firstOf(kwargs, positional, 0, "id", "element_id", "element")
		res.Action.Text = firstOf(kwargs, positional, 1, "text", "content", "value")
		if res.Action.ElementID == "" {
			res.Action.Kind = types.ActionUnknown
		}
	}

	if res.Action.Kind == types.ActionUnknown && p.logger != nil {
		p.logger.Warn().Str("kind", string(kind)).Msg("Action call missing required arguments")
	}
	return res
}

// point resolves a coordinate pair from kwargs (xKey/yKey) or the first
// two numeric positional arguments, normalizing through the model's
// coordinate space.
func (p *Parser) point(kwargs map[string]string, positional []string, xKey, yKey string, width, height int) *types.Point {
	xs, xok := kwargs[xKey]
	ys, yok := kwargs[yKey]
	if !xok || !yok {
		var nums []float64
		for _, a := range positional {
			if v, err := strconv.ParseFloat(a, 64); err == nil {
				nums = append(nums, v)
			}
			if len(nums) == 2 {
				break
			}
		}
		if len(nums) < 2 {
			return nil
		}
		x, y := coords.ToNormalized(nums[0], nums[1], p.space, width, height)
		return &types.Point{X: x, Y: y}
	}
	x, errX := strconv.ParseFloat(xs, 64)
	y, errY := strconv.ParseFloat(ys, 64)
	if errX != nil || errY != nil {
		return nil
	}
	nx, ny := coords.ToNormalized(x, y, p.space, width, height)
	return &types.Point{X: nx, Y: ny}
}

func scrollAmount(kwargs map[string]string, positional []string) int {
	amount := 3
	dir := ""

	if v, ok := kwargs["dy"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return int(n)
		}
	}
	if v, ok := kwargs["amount"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			amount = int(n)
		}
	}
	if v, ok := kwargs["clicks"]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			amount = int(n)
		}
	}
	dir = kwargs["direction"]

	for _, a := range positional {
		if n, err := strconv.ParseFloat(a, 64); err == nil {
			amount = int(n)
		} else if dir == "" {
			dir = a
		}
	}

	if strings.EqualFold(dir, "up") {
		return -amount
	}
	return amount
}

// callArgs extracts the argument text up to the close paren matching
// an already-consumed open paren, honoring quotes, escapes, and nested
// parentheses so a ")" inside a quoted string does not end the call
// early. closed is false when the call is never closed.
func callArgs(s string) (string, bool) {
	depth := 1
	var quote rune
	escaped := false

	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 {
				return s[:i], true
			}
		}
	}
	return "", false
}

// splitArgs splits an argument list on top-level commas, honoring
// quotes, escapes, and nested brackets.
func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	depth := 0
	var quote rune
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
				cur.WriteRune(r)
			} else {
				cur.WriteRune(r)
				if r == quote {
					quote = 0
				}
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '(' || r == '[' || r == '{':
			depth++
			cur.WriteRune(r)
		case r == ')' || r == ']' || r == '}':
			depth--
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			args = append(args, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		args = append(args, cur.String())
	}
	return args
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			inner := s[1 : len(s)-1]
			r := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`, `\n`, "\n", `\t`, "\t")
			return r.Replace(inner)
		}
	}
	return s
}

func splitCombo(s string) []string {
	parts := strings.Split(s, "+")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// firstOf returns the first present kwarg among names, falling back to
// positional[idx] when idx is non-negative.
func firstOf(kwargs map[string]string, positional []string, idx int, names ...string) string {
	for _, n := range names {
		if v, ok := kwargs[n]; ok {
			return v
		}
	}
	if idx >= 0 && idx < len(positional) {
		return positional[idx]
	}
	return ""
}
