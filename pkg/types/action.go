package types

// ActionKind identifies one of the closed set of actions the remote
// desktop can execute. Every consumer switches on this tag; new kinds
// must be added here, never smuggled through as strings.
type ActionKind string

const (
	ActionClick        ActionKind = "click"
	ActionDoubleClick  ActionKind = "double_click"
	ActionRightClick   ActionKind = "right_click"
	ActionType         ActionKind = "type"
	ActionKey          ActionKind = "key"
	ActionHotkey       ActionKind = "hotkey"
	ActionScroll       ActionKind = "scroll"
	ActionDrag         ActionKind = "drag"
	ActionWait         ActionKind = "wait"
	ActionElementClick ActionKind = "element_click"
	ActionElementType  ActionKind = "element_type"
	ActionDone         ActionKind = "done"

	// ActionUnknown is returned when model output matched no recognized
	// grammar. It is never executed against the environment; the runner
	// decides whether to re-prompt or treat it as a wait.
	ActionUnknown ActionKind = "unknown"
)

// Point is a position in normalized [0,1] screen coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is the canonical, environment-executable instruction produced
// by the action parser. Coordinates are always normalized [0,1];
// denormalization to pixels happens at the environment boundary.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Pos is set for pointer kinds (click, double_click, right_click,
	// drag, scroll-at-position).
	Pos *Point `json:"pos,omitempty"`

	// Text is the payload for type/element_type.
	Text string `json:"text,omitempty"`

	// Keys is the ordered key sequence for key/hotkey. A single key
	// press is a one-element sequence.
	Keys []string `json:"keys,omitempty"`

	// DragTo is the drag target, set only for drag.
	DragTo *Point `json:"drag_to,omitempty"`

	// ScrollDy is the scroll amount in wheel notches; positive scrolls
	// down, negative scrolls up.
	ScrollDy int `json:"scroll_dy,omitempty"`

	// ElementID references a node of the last-observed accessibility
	// tree, set only for element_click/element_type.
	ElementID string `json:"element_id,omitempty"`

	// Message is the optional final message carried by done.
	Message string `json:"message,omitempty"`

	// Raw is the unmodified model output this action was parsed from,
	// retained for audit and trace replay.
	Raw string `json:"raw,omitempty"`
}

// IsPointer reports whether the action targets a screen position.
func (a Action) IsPointer() bool {
	return a.Pos != nil
}

// Same reports payload equality, ignoring Raw. Loop detection compares
// actions with Same so differing model phrasing of the same action
// still counts as a repeat.
func (a Action) Same(b Action) bool {
	if a.Kind != b.Kind || a.Text != b.Text || a.ElementID != b.ElementID || a.ScrollDy != b.ScrollDy {
		return false
	}
	if !samePoint(a.Pos, b.Pos) || !samePoint(a.DragTo, b.DragTo) {
		return false
	}
	if len(a.Keys) != len(b.Keys) {
		return false
	}
	for i := range a.Keys {
		if a.Keys[i] != b.Keys[i] {
			return false
		}
	}
	return true
}

func samePoint(p, q *Point) bool {
	if p == nil || q == nil {
		return p == q
	}
	return p.X == q.X && p.Y == q.Y
}
