package log_test

import (
	"bytes"
	"testing"

	"github.com/deskstep/deskstep/pkg/log"
	"github.com/deskstep/deskstep/pkg/security"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterEmitsFields(t *testing.T) {
	out := &bytes.Buffer{}
	zl := zerolog.New(out)
	logger := log.NewZerologAdapter(zl)

	logger.Info().
		Str("task_id", "notepad_1").
		Int("step", 3).
		Msg("hello")

	assert.Contains(t, out.String(), `"task_id":"notepad_1"`)
	assert.Contains(t, out.String(), `"step":3`)
	assert.Contains(t, out.String(), `"message":"hello"`)
}

func TestAdapterWithContext(t *testing.T) {
	out := &bytes.Buffer{}
	zl := zerolog.New(out)
	logger := log.NewZerologAdapter(zl).With().Str("task_id", "calc_2").Logger()

	logger.Warn().Msg("scoped")

	assert.Contains(t, out.String(), `"task_id":"calc_2"`)
	assert.Contains(t, out.String(), `"level":"warn"`)
}

type captureSink struct {
	events []*log.LogEvent
}

func (c *captureSink) Write(evt *log.LogEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) Close() error { return nil }

func TestRouterRedactsSecrets(t *testing.T) {
	sink := &captureSink{}
	router := log.NewRouter(sink)
	router.Redactor = &security.Redactor{Secrets: []string{"sk-live-abc"}}

	zl := zerolog.New(router)
	logger := log.NewZerologAdapter(zl)

	logger.Error().
		Str("api_key", "sk-live-abc").
		Msg("auth failed for key sk-live-abc")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, "auth failed for key ********", evt.Message)
	assert.Equal(t, "********", evt.Fields["api_key"])
}

func TestRouterPassesThroughWithoutRedactor(t *testing.T) {
	sink := &captureSink{}
	router := log.NewRouter(sink)

	zl := zerolog.New(router)
	logger := log.NewZerologAdapter(zl)

	logger.Info().Str("width", "1280").Msg("environment ready")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "environment ready", sink.events[0].Message)
	assert.Equal(t, "1280", sink.events[0].Fields["width"])
}
