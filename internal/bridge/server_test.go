package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/reflex-coffee/internal/config"
	"github.com/kingrea/reflex-coffee/internal/display"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *captureSink) Send(msg tea.Msg) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captureSink) last(t *testing.T) tea.Msg {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.msgs)
	return c.msgs[len(c.msgs)-1]
}

func testSettings() Settings {
	return Settings{Enabled: true, Host: "127.0.0.1", Port: 0, CommandLimit: 256, Timeout: time.Second}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("REFLEX_BRIDGE_PORT", "9001")
	t.Setenv("REFLEX_BRIDGE_HOST", "localhost")
	t.Setenv("REFLEX_BRIDGE_ENABLED", "true")
	t.Setenv("REFLEX_BRIDGE_READ_ONLY", "1")
	settings, err := SettingsFromConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, 9001, settings.Port)
	assert.Equal(t, "localhost", settings.Host)
	assert.True(t, settings.Enabled)
	assert.True(t, settings.ReadOnly)
	assert.Equal(t, DefaultCommandLimit, settings.CommandLimit)
}

func TestSettingsFromConfigDefaultsDisabled(t *testing.T) {
	settings, err := SettingsFromConfig(nil)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.False(t, settings.ReadOnly)
	assert.Equal(t, "127.0.0.1:8777", settings.Address())
}

func TestSettingsFromConfigRejectsMalformedEnv(t *testing.T) {
	t.Setenv("REFLEX_BRIDGE_PORT", "eighty")
	_, err := SettingsFromConfig(nil)
	assert.ErrorContains(t, err, "REFLEX_BRIDGE_PORT")

	t.Setenv("REFLEX_BRIDGE_PORT", "")
	t.Setenv("REFLEX_BRIDGE_ENABLED", "maybe")
	_, err = SettingsFromConfig(nil)
	assert.ErrorContains(t, err, "REFLEX_BRIDGE_ENABLED")
}

func TestRemoteHostNeedsAllowRemote(t *testing.T) {
	enabled := true
	cfg := &config.Config{Project: config.ProjectConfig{Bridge: config.BridgeConfig{Enabled: &enabled, Host: "0.0.0.0", Port: 9100}}}
	_, err := SettingsFromConfig(cfg)
	assert.ErrorIs(t, err, ErrRemoteHost)

	cfg.Project.Bridge.AllowRemote = true
	settings, err := SettingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9100", settings.Address())

	for _, host := range []string{"127.0.0.1", "::1", "localhost", "LOCALHOST"} {
		s := testSettings()
		s.Host = host
		assert.NoError(t, s.Validate(), host)
	}
	s := testSettings()
	s.Host = "192.168.1.20"
	err = NewServer(s, nil, nil).Start(context.Background())
	assert.ErrorIs(t, err, ErrRemoteHost, "Start refuses what Validate rejects")
}

func TestReadOnlyBridgeRefusesCommands(t *testing.T) {
	sink := &captureSink{}
	board := NewStateBoard()
	board.Publish(display.State{CurrentNodeID: "GREET"})
	settings := testSettings()
	settings.ReadOnly = true
	h := NewServer(settings, sink, board).Handler()

	for _, path := range []string{"/step", "/mode", "/choice"} {
		rec := do(t, h, http.MethodPost, path, `{"value":"tea"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
	assert.Empty(t, sink.msgs)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/state", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestStepAndModeCommandsReachSink(t *testing.T) {
	sink := &captureSink{}
	h := NewServer(testSettings(), sink, nil).Handler()

	rec := do(t, h, http.MethodPost, "/step", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, StepCommand{}, sink.last(t))

	rec = do(t, h, http.MethodPost, "/mode", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ModeCommand{}, sink.last(t))

	rec = do(t, h, http.MethodPost, "/mode", `{"mode":"auto"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ModeCommand{Mode: display.ModeAuto}, sink.last(t))

	rec = do(t, h, http.MethodPost, "/mode", `{"mode":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/step", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChoiceValidation(t *testing.T) {
	sink := &captureSink{}
	h := NewServer(testSettings(), sink, nil).Handler()

	rec := do(t, h, http.MethodPost, "/choice", `{"value":"oat"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ChoiceCommand{Value: "oat"}, sink.last(t))

	rec = do(t, h, http.MethodPost, "/choice", `{"index":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ChoiceCommand{Index: 2, ByIndex: true}, sink.last(t))

	for _, body := range []string{``, `{}`, `{"index":-1}`, `{"value":"a","index":0}`, `{"flavour":"x"}`, `not json`} {
		rec = do(t, h, http.MethodPost, "/choice", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec = do(t, h, http.MethodPost, "/choice", `{"value":"`+strings.Repeat("x", 300)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload exceeds limit")
}

func TestStateServesLatestPublished(t *testing.T) {
	board := NewStateBoard()
	h := NewServer(testSettings(), nil, board).Handler()

	rec := do(t, h, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	board.Publish(display.State{CurrentNodeID: "CHOOSE_SIZE", CurrentWorkflowID: "coffee-order", Mode: display.ModeAuto, Suspended: true})
	rec = do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "CHOOSE_SIZE", got["currentNodeId"])
	assert.Equal(t, "auto", got["mode"])
	assert.Equal(t, true, got["suspended"])
}

func TestMetricsMountedWhenProvided(t *testing.T) {
	h := NewServer(testSettings(), nil, nil).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("reflex_steps_total 1\n"))
	})
	h = NewServer(testSettings(), nil, nil, WithMetrics(metrics)).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reflex_steps_total")
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	srv := NewServer(testSettings(), nil, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()), "second start must fail")
	assert.Equal(t, StatusReady, srv.Status())

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, ProtocolVersion, health.Version)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, "", srv.Addr())
	assert.Equal(t, StatusDraining, srv.Status())
}

func TestStartDisabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	err := NewServer(settings, nil, nil).Start(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}
