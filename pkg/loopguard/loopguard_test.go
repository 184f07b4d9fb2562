package loopguard_test

import (
	"testing"

	"github.com/deskstep/deskstep/pkg/loopguard"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func click(x, y float64) types.Action {
	return types.Action{Kind: types.ActionClick, Pos: &types.Point{X: x, Y: y}}
}

func TestTriggersExactlyAtThreshold(t *testing.T) {
	d := loopguard.New(3, nil)

	first, sub := d.Intercept(click(0.5, 0.5))
	assert.False(t, sub)
	assert.Equal(t, click(0.5, 0.5), first)

	second, sub := d.Intercept(click(0.5, 0.5))
	assert.False(t, sub, "second repeat must not trigger")
	assert.Equal(t, click(0.5, 0.5), second)

	third, sub := d.Intercept(click(0.5, 0.5))
	require.True(t, sub, "third repeat must trigger")
	assert.NotEqual(t, 0.5, third.Pos.X)
}

func TestOffsetGrowsAcrossSubstitutions(t *testing.T) {
	d := loopguard.New(3, nil)

	d.Intercept(click(0.5, 0.5))
	d.Intercept(click(0.5, 0.5))
	firstSub, ok := d.Intercept(click(0.5, 0.5))
	require.True(t, ok)

	secondSub, ok := d.Intercept(click(0.5, 0.5))
	require.True(t, ok)

	assert.NotEqual(t, firstSub.Pos.X, secondSub.Pos.X,
		"a fixed offset can miss the same target forever; it must grow")
	assert.Greater(t, secondSub.Pos.X, firstSub.Pos.X)
}

func TestOffsetClampsAtScreenEdge(t *testing.T) {
	d := loopguard.New(3, nil)

	d.Intercept(click(0.999, 0.999))
	d.Intercept(click(0.999, 0.999))
	sub, ok := d.Intercept(click(0.999, 0.999))
	require.True(t, ok)
	assert.LessOrEqual(t, sub.Pos.X, 1.0)
	assert.LessOrEqual(t, sub.Pos.Y, 1.0)
}

func TestNonPointerRepeatBecomesWaitNotEscape(t *testing.T) {
	d := loopguard.New(3, nil)
	hk := types.Action{Kind: types.ActionHotkey, Keys: []string{"ctrl", "s"}}

	d.Intercept(hk)
	d.Intercept(hk)
	sub, ok := d.Intercept(hk)
	require.True(t, ok)

	assert.Equal(t, types.ActionWait, sub.Kind)
	assert.NotContains(t, sub.Keys, "escape",
		"an escape substitute dismisses in-progress dialogs")
}

func TestDistinctActionsDoNotTrigger(t *testing.T) {
	d := loopguard.New(3, nil)

	_, ok := d.Intercept(click(0.5, 0.5))
	assert.False(t, ok)
	_, ok = d.Intercept(click(0.6, 0.5))
	assert.False(t, ok)
	_, ok = d.Intercept(click(0.5, 0.5))
	assert.False(t, ok)
	_, ok = d.Intercept(click(0.6, 0.5))
	assert.False(t, ok)
}

func TestRawDifferenceStillCountsAsRepeat(t *testing.T) {
	d := loopguard.New(3, nil)

	a := click(0.5, 0.5)
	a.Raw = "click(500, 500)"
	b := click(0.5, 0.5)
	b.Raw = "click(x=500, y=500)"

	d.Intercept(a)
	d.Intercept(b)
	_, ok := d.Intercept(a)
	assert.True(t, ok)
}
