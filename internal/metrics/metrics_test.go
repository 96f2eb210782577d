package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

func TestRecorderCountsSessionActivity(t *testing.T) {
	r := New()
	r.StepFinished(engine.StepAdvanced, 2*time.Millisecond)
	r.StepFinished(engine.StepAdvanced, time.Millisecond)
	r.StepFinished(engine.StepSuspended, time.Millisecond)
	r.StepFailed(time.Millisecond)
	r.ChoiceSubmitted("drink_type")
	r.ModeChanged(display.ModeAuto)
	r.ModeChanged(display.ModeStep)
	r.ModeChanged(display.ModeAuto)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues("advanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("suspended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.choices.WithLabelValues("drink_type")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.modeToggles.WithLabelValues("auto")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stepDuration))
}

func TestHandlerServesRegistry(t *testing.T) {
	r := New()
	r.StepFinished(engine.StepCompleted, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reflex_steps_total{result="completed"} 1`)
	assert.Contains(t, string(body), "reflex_step_duration_seconds_count 1")
}
