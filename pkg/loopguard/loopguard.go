// Package loopguard breaks infinite action loops. Models without
// persistent memory routinely re-emit the same click forever once a
// target misses; the detector watches the episode's action history and
// substitutes a perturbed action when it sees a run of identical ones.
package loopguard

import (
	"github.com/deskstep/deskstep/pkg/coords"
	"github.com/deskstep/deskstep/pkg/types"
)

// DefaultThreshold is the run length that triggers a substitution.
const DefaultThreshold = 3

// baseOffset is the first positional nudge in normalized units
// (~13px at 1280 wide). Each further substitution grows the offset so
// repeated misses don't land on the same wrong pixel forever.
const baseOffset = 0.01

// Detector holds per-episode loop state. Construct one per task with
// New; it is not safe to share across episodes.
type Detector struct {
	threshold int
	window    []types.Action
	subs      int
	logger    types.Logger
}

func New(threshold int, logger types.Logger) *Detector {
	if threshold < 2 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold, logger: logger}
}

// Intercept records the proposed action and returns the action the
// runner should actually execute. When the proposal is the threshold-th
// identical action in a row, a substitute is returned instead:
//
//   - pointer actions get a positional offset that grows with every
//     further substitution, so a fixed miss cannot recur indefinitely;
//   - anything else becomes a wait. An escape key press here was
//     observed to destructively dismiss in-progress dialogs (a "Save
//     As" dialog, most memorably) on otherwise-succeeding episodes.
//
// The second return is true when a substitution happened.
func (d *Detector) Intercept(a types.Action) (types.Action, bool) {
	run := 1
	for i := len(d.window) - 1; i >= 0; i-- {
		if !d.window[i].Same(a) {
			break
		}
		run++
	}
	d.window = append(d.window, a)

	if run < d.threshold {
		return a, false
	}

	d.subs++
	if a.IsPointer() {
		offset := baseOffset * float64(d.subs)
		sub := a
		pos := *a.Pos
		pos.X = coords.Clamp01(pos.X + offset)
		pos.Y = coords.Clamp01(pos.Y + offset)
		sub.Pos = &pos
		if a.DragTo != nil {
			to := *a.DragTo
			to.X = coords.Clamp01(to.X + offset)
			to.Y = coords.Clamp01(to.Y + offset)
			sub.DragTo = &to
		}
		if d.logger != nil {
			d.logger.Warn().
				Int("run_length", run).
				Interface("offset", offset).
				Msg("Repeated pointer action detected, nudging position")
		}
		return sub, true
	}

	if d.logger != nil {
		d.logger.Warn().
			Int("run_length", run).
			Str("kind", string(a.Kind)).
			Msg("Repeated non-pointer action detected, substituting wait")
	}
	sub := types.Action{Kind: types.ActionWait, Raw: a.Raw}
	return sub, true
}
