package demo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deskstep/deskstep/pkg/demo"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDemo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeDemo(t, `
name: notepad demo
steps:
  - instruction: open the start menu
    reasoning: the start button is bottom left
    action: click(10, 990)
  - instruction: search for notepad
    action: type(text="notepad")
`)

	d, err := demo.LoadFromFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "notepad demo", d.Name)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, "click(10, 990)", d.Steps[0].Action)
}

func TestLoadDropsEmptyActionSteps(t *testing.T) {
	path := writeDemo(t, `
steps:
  - instruction: toggle the checkbox
    action: ""
  - instruction: confirm
    action: click(500, 500)
`)

	d, err := demo.LoadFromFile(path, nil)
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, "confirm", d.Steps[0].Instruction)
}

func TestLoadRejectsDemoWithNoUsableSteps(t *testing.T) {
	path := writeDemo(t, `
steps:
  - instruction: broken
    action: ""
`)

	_, err := demo.LoadFromFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable steps")
}

func TestDemoPresentInEveryStepPrompt(t *testing.T) {
	d := &types.Demo{Steps: []types.DemoStep{
		{Instruction: "open start", Action: "click(10, 990)"},
		{Instruction: "search", Action: `type(text="notepad")`},
	}}

	demoText := demo.Format(d)
	for step := 0; step < 3; step++ {
		prompt := demo.BuildPrompt("open notepad", d, step)
		assert.Contains(t, prompt, demoText, "demo text missing at step %d", step)
		assert.Contains(t, prompt, "open notepad")
	}
}

func TestBuildPromptWithoutDemo(t *testing.T) {
	prompt := demo.BuildPrompt("open notepad", nil, 0)
	assert.Contains(t, prompt, "Task: open notepad")
	assert.NotContains(t, prompt, "demonstration")
}
