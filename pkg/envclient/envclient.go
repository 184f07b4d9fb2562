// Package envclient is the adapter over the remote desktop server's
// HTTP contract (probe, screenshot, accessibility, action, setup,
// evaluate). The contract is a fixed black box: any change to it is an
// external-interface break, not an internal one.
package envclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskstep/deskstep/pkg/coords"
	"github.com/deskstep/deskstep/pkg/types"
)

const defaultRequestTimeout = 90 * time.Second

// Client talks to one remote desktop instance. One client serves one
// episode at a time; concurrent episodes use separate instances.
type Client struct {
	baseURL string
	hc      *http.Client
	logger  types.Logger

	// withTree controls whether observations include the accessibility
	// tree. Fetching it costs a round trip, so it is opt-in per task.
	withTree bool
}

func New(baseURL string, timeout time.Duration, withTree bool, logger types.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		hc:       &http.Client{Timeout: timeout},
		logger:   logger,
		withTree: withTree,
	}
}

// Probe checks environment readiness.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.get(ctx, "/probe")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d: %w", resp.StatusCode, types.ErrEnvironmentUnavailable)
	}
	return nil
}

// Reset prepares the environment for a task: readiness probe, task
// preconditions, then the initial observation. Skipping the setup pass
// makes every file-dependent task fail unconditionally, so it runs
// before the first observation even when the config list is empty.
func (c *Client) Reset(ctx context.Context, setup []map[string]any) (*types.Observation, error) {
	if err := c.Probe(ctx); err != nil {
		return nil, err
	}
	if err := c.RunSetup(ctx, setup); err != nil {
		return nil, err
	}
	return c.Observe(ctx, 0)
}

// RunSetup executes the task precondition array (file downloads, app
// launches) on the remote side.
func (c *Client) RunSetup(ctx context.Context, configs []map[string]any) error {
	if len(configs) == 0 {
		return nil
	}
	resp, err := c.postJSON(ctx, "/setup", configs)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("setup returned status %d: %w", resp.StatusCode, types.ErrEnvironmentUnavailable)
	}
	if c.logger != nil {
		c.logger.Info().Int("configs", len(configs)).Msg("Task setup executed")
	}
	return nil
}

// Observe fetches a fresh snapshot. Screen dimensions are decoded from
// the screenshot bytes on every call; a stale cached resolution was
// once observed to silently corrupt every stored coordinate after a VM
// came up at a different size.
func (c *Client) Observe(ctx context.Context, stepIndex int) (*types.Observation, error) {
	resp, err := c.get(ctx, "/screenshot")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screenshot returned status %d: %w", resp.StatusCode, types.ErrEnvironmentUnavailable)
	}

	shot, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading screenshot body: %w", types.ErrEnvironmentUnavailable)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot dimensions: %v: %w", err, types.ErrEnvironmentUnavailable)
	}

	obs := &types.Observation{
		Screenshot: shot,
		Width:      cfg.Width,
		Height:     cfg.Height,
		StepIndex:  stepIndex,
	}

	if c.withTree {
		tree, err := c.accessibilityTree(ctx)
		if err != nil {
			// The tree is an enhancement; a missing one degrades the
			// prompt, not the episode.
			if c.logger != nil {
				c.logger.Warn().Err(err).Msg("Accessibility tree unavailable, continuing without it")
			}
		} else {
			obs.AccessibilityTree = tree
		}
	}
	return obs, nil
}

func (c *Client) accessibilityTree(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, "/accessibility")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("accessibility returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading accessibility body: %w", err)
	}
	return string(body), nil
}

// Step executes one canonical action and returns the next observation.
// Coordinates are denormalized to pixels here, against the dimensions
// of the observation the action was decided on.
func (c *Client) Step(ctx context.Context, action types.Action, prev *types.Observation) (*types.Observation, error) {
	wire, err := toWire(action, prev.Width, prev.Height)
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, "/action", wire)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("action returned status %d: %w", resp.StatusCode, types.ErrEnvironmentUnavailable)
	}

	return c.Observe(ctx, prev.StepIndex+1)
}

// Evaluate asks the environment's native scorer for the task outcome.
// A missing evaluator is reported as an unavailable score, never as
// 0.0: folding the two together silently corrupts aggregate metrics.
func (c *Client) Evaluate(ctx context.Context, taskID string) (types.Score, error) {
	resp, err := c.postJSON(ctx, "/evaluate", map[string]any{"task_id": taskID})
	if err != nil {
		return types.Score{Status: types.ScoreStatusUnavailable}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNotImplemented:
		if c.logger != nil {
			c.logger.Warn().Int("status_code", resp.StatusCode).Msg("Native evaluator unavailable for task")
		}
		return types.Score{Status: types.ScoreStatusUnavailable}, nil
	default:
		return types.Score{Status: types.ScoreStatusUnavailable},
			fmt.Errorf("evaluate returned status %d: %w", resp.StatusCode, types.ErrEvaluatorUnavailable)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Score{Status: types.ScoreStatusUnavailable},
			fmt.Errorf("decoding evaluate response: %v: %w", err, types.ErrEvaluatorUnavailable)
	}
	return types.Score{Status: types.ScoreStatusScored, Value: out.Score}, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", http.MethodGet, path, err, types.ErrEnvironmentUnavailable)
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling body for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", http.MethodPost, path, err, types.ErrEnvironmentUnavailable)
	}
	return resp, nil
}

// wireAction is the /action request body.
type wireAction struct {
	Type      string   `json:"action_type"`
	X         *int     `json:"x,omitempty"`
	Y         *int     `json:"y,omitempty"`
	EndX      *int     `json:"end_x,omitempty"`
	EndY      *int     `json:"end_y,omitempty"`
	Text      string   `json:"text,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	Dy        int      `json:"dy,omitempty"`
	ElementID string   `json:"element_id,omitempty"`
}

var wireTypes = map[types.ActionKind]string{
	types.ActionClick:        "CLICK",
	types.ActionDoubleClick:  "DOUBLE_CLICK",
	types.ActionRightClick:   "RIGHT_CLICK",
	types.ActionType:         "TYPE",
	types.ActionKey:          "KEY",
	types.ActionHotkey:       "HOTKEY",
	types.ActionScroll:       "SCROLL",
	types.ActionDrag:         "DRAG",
	types.ActionWait:         "WAIT",
	types.ActionElementClick: "ELEMENT_CLICK",
	types.ActionElementType:  "ELEMENT_TYPE",
}

func toWire(a types.Action, width, height int) (*wireAction, error) {
	wt, ok := wireTypes[a.Kind]
	if !ok {
		// done and unknown are runner-side concepts and never cross the
		// wire.
		return nil, fmt.Errorf("action kind %q is not executable", a.Kind)
	}

	w := &wireAction{
		Type:      wt,
		Text:      a.Text,
		Keys:      a.Keys,
		Dy:        a.ScrollDy,
		ElementID: a.ElementID,
	}
	if a.Pos != nil {
		x, y := coords.ToPixel(*a.Pos, width, height)
		w.X, w.Y = &x, &y
	}
	if a.DragTo != nil {
		x, y := coords.ToPixel(*a.DragTo, width, height)
		w.EndX, w.EndY = &x, &y
	}
	return w, nil
}
