package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/deskstep/deskstep/pkg/actionparse"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeMessage(t *testing.T, body string) *anthropic.Message {
	t.Helper()
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	return &msg
}

func testObs() *types.Observation {
	return &types.Observation{
		Screenshot: []byte("not-a-real-png"),
		Width:      1280,
		Height:     720,
	}
}

const clickReply = `{
	"content": [
		{"type": "text", "text": "Clicking the start button."},
		{"type": "tool_use", "id": "tu_click", "name": "computer",
		 "input": {"action": "left_click", "coordinate": [640, 700]}}
	],
	"stop_reason": "tool_use",
	"usage": {"input_tokens": 100, "output_tokens": 20}
}`

const screenshotReply = `{
	"content": [
		{"type": "tool_use", "id": "tu_shot", "name": "computer",
		 "input": {"action": "screenshot"}}
	],
	"stop_reason": "tool_use",
	"usage": {"input_tokens": 50, "output_tokens": 10}
}`

func newTestSession() *Session {
	return newSession(actionparse.NewParser(types.SpacePixel, nil), nil)
}

func TestSessionResolvesTerminalAction(t *testing.T) {
	s := newTestSession()

	calls := 0
	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		calls++
		return fakeMessage(t, clickReply), nil
	}

	res, err := s.Step(context.Background(), "open notepad", testObs(), invoke)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, types.ActionClick, res.parsed.Action.Kind)
	require.NotNil(t, res.parsed.Action.Pos)
	assert.InDelta(t, 0.5, res.parsed.Action.Pos.X, 1e-9)
	assert.Equal(t, 0, res.toolIters)
	assert.Equal(t, int64(100), res.in)
	assert.Equal(t, "Clicking the start button.", res.parsed.Think)
}

func TestSessionAnswersScreenshotInternally(t *testing.T) {
	s := newTestSession()

	replies := []string{screenshotReply, clickReply}
	calls := 0
	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		body := replies[calls]
		calls++
		return fakeMessage(t, body), nil
	}

	res, err := s.Step(context.Background(), "open notepad", testObs(), invoke)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "screenshot request must be answered in-conversation")
	assert.Equal(t, types.ActionClick, res.parsed.Action.Kind)
	assert.Equal(t, 1, res.toolIters)
}

func TestSessionToolLoopBounded(t *testing.T) {
	s := newTestSession()

	calls := 0
	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		calls++
		return fakeMessage(t, screenshotReply), nil
	}

	res, err := s.Step(context.Background(), "open notepad", testObs(), invoke)
	require.NoError(t, err)

	// The cap bounds internal iterations; exceeding it forces a wait so
	// the episode proceeds instead of spending API calls forever.
	assert.Equal(t, types.ActionWait, res.parsed.Action.Kind)
	assert.Equal(t, toolLoopCap, res.toolIters)
	assert.Equal(t, toolLoopCap+1, calls)
}

func TestSessionCarriesConversationAcrossSteps(t *testing.T) {
	s := newTestSession()

	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		return fakeMessage(t, clickReply), nil
	}

	_, err := s.Step(context.Background(), "open notepad", testObs(), invoke)
	require.NoError(t, err)
	turnsAfterFirst := len(s.messages)

	obs2 := testObs()
	obs2.StepIndex = 1
	_, err = s.Step(context.Background(), "open notepad", obs2, invoke)
	require.NoError(t, err)

	// Step two appends the tool result answering step one plus the new
	// assistant turn; history is never discarded mid-episode.
	assert.Greater(t, len(s.messages), turnsAfterFirst)
}

func TestSessionFreeTextReply(t *testing.T) {
	s := newTestSession()

	textReply := `{
		"content": [{"type": "text", "text": "finished(\"the task is complete\")"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`
	invoke := func(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
		return fakeMessage(t, textReply), nil
	}

	res, err := s.Step(context.Background(), "open notepad", testObs(), invoke)
	require.NoError(t, err)
	assert.Equal(t, types.ActionDone, res.parsed.Action.Kind)
	assert.Equal(t, "the task is complete", res.parsed.Action.Message)
}

func TestClosedSessionRejectsSteps(t *testing.T) {
	s := newTestSession()
	s.Close()

	_, err := s.Step(context.Background(), "open notepad", testObs(), nil)
	require.Error(t, err)
}
