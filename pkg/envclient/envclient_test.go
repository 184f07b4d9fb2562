package envclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deskstep/deskstep/pkg/envclient"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func screenshotPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type fakeWAA struct {
	shot       []byte
	actions    []map[string]any
	setups     [][]map[string]any
	evalStatus int
	evalScore  float64
}

func (f *fakeWAA) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /probe", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /screenshot", func(w http.ResponseWriter, r *http.Request) {
		w.Write(f.shot)
	})
	mux.HandleFunc("GET /accessibility", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<tree><node id="node-1">Start</node></tree>`))
	})
	mux.HandleFunc("POST /action", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.actions = append(f.actions, body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /setup", func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.setups = append(f.setups, body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /evaluate", func(w http.ResponseWriter, r *http.Request) {
		if f.evalStatus != 0 && f.evalStatus != http.StatusOK {
			w.WriteHeader(f.evalStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"score": f.evalScore})
	})
	return mux
}

func TestObserveDecodesScreenDimensions(t *testing.T) {
	waa := &fakeWAA{shot: screenshotPNG(t, 1280, 720)}
	srv := httptest.NewServer(waa.handler())
	defer srv.Close()

	c := envclient.New(srv.URL, 5*time.Second, false, nil)
	obs, err := c.Observe(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1280, obs.Width)
	assert.Equal(t, 720, obs.Height)
	assert.Equal(t, 0, obs.StepIndex)
	assert.Empty(t, obs.AccessibilityTree)
}

func TestObserveDimensionsFollowTheScreenshot(t *testing.T) {
	// The remote VM resolution can change between deployments; the
	// adapter must pick up whatever the screenshot actually is.
	waa := &fakeWAA{shot: screenshotPNG(t, 640, 480)}
	srv := httptest.NewServer(waa.handler())
	defer srv.Close()

	c := envclient.New(srv.URL, 5*time.Second, true, nil)
	obs, err := c.Observe(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 640, obs.Width)
	assert.Equal(t, 480, obs.Height)
	assert.Contains(t, obs.AccessibilityTree, "node-1")
}

func TestStepDenormalizesCoordinates(t *testing.T) {
	waa := &fakeWAA{shot: screenshotPNG(t, 1280, 720)}
	srv := httptest.NewServer(waa.handler())
	defer srv.Close()

	c := envclient.New(srv.URL, 5*time.Second, false, nil)
	prev, err := c.Observe(context.Background(), 0)
	require.NoError(t, err)

	action := types.Action{Kind: types.ActionClick, Pos: &types.Point{X: 0.5, Y: 0.5}}
	next, err := c.Step(context.Background(), action, prev)
	require.NoError(t, err)
	assert.Equal(t, 1, next.StepIndex)

	require.Len(t, waa.actions, 1)
	sent := waa.actions[0]
	assert.Equal(t, "CLICK", sent["action_type"])
	assert.Equal(t, float64(640), sent["x"])
	assert.Equal(t, float64(360), sent["y"])
}

func TestStepRejectsNonExecutableKinds(t *testing.T) {
	waa := &fakeWAA{shot: screenshotPNG(t, 1280, 720)}
	srv := httptest.NewServer(waa.handler())
	defer srv.Close()

	c := envclient.New(srv.URL, 5*time.Second, false, nil)
	prev := &types.Observation{Width: 1280, Height: 720}

	_, err := c.Step(context.Background(), types.Action{Kind: types.ActionDone}, prev)
	require.Error(t, err)
	_, err = c.Step(context.Background(), types.Action{Kind: types.ActionUnknown}, prev)
	require.Error(t, err)
	assert.Empty(t, waa.actions)
}

func TestResetRunsSetupBeforeObserving(t *testing.T) {
	waa := &fakeWAA{shot: screenshotPNG(t, 1280, 720)}
	srv := httptest.NewServer(waa.handler())
	defer srv.Close()

	c := envclient.New(srv.URL, 5*time.Second, false, nil)
	setup := []map[string]any{{"type": "download", "url": "http://example.test/doc.txt"}}

	obs, err := c.Reset(context.Background(), setup)
	require.NoError(t, err)
	assert.Equal(t, 0, obs.StepIndex)
	require.Len(t, waa.setups, 1)
	assert.Equal(t, "download", waa.setups[0][0]["type"])
}

func TestEvaluate(t *testing.T) {
	t.Run("scored", func(t *testing.T) {
		waa := &fakeWAA{shot: screenshotPNG(t, 8, 8), evalScore: 1.0}
		srv := httptest.NewServer(waa.handler())
		defer srv.Close()

		c := envclient.New(srv.URL, 5*time.Second, false, nil)
		score, err := c.Evaluate(context.Background(), "notepad_1")
		require.NoError(t, err)
		assert.Equal(t, types.ScoreStatusScored, score.Status)
		assert.Equal(t, 1.0, score.Value)
	})

	t.Run("missing evaluator is unavailable, not zero", func(t *testing.T) {
		waa := &fakeWAA{shot: screenshotPNG(t, 8, 8), evalStatus: http.StatusNotImplemented}
		srv := httptest.NewServer(waa.handler())
		defer srv.Close()

		c := envclient.New(srv.URL, 5*time.Second, false, nil)
		score, err := c.Evaluate(context.Background(), "notepad_1")
		require.NoError(t, err)
		assert.Equal(t, types.ScoreStatusUnavailable, score.Status)
	})
}

func TestUnreachableEnvironmentIsInfrastructureFailure(t *testing.T) {
	c := envclient.New("http://127.0.0.1:1", 500*time.Millisecond, false, nil)

	_, err := c.Observe(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrEnvironmentUnavailable))
}
