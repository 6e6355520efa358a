// ABOUTME: Tests for metrics collectors
// ABOUTME: Verifies collectors register and the handler exposes them
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func counterValue(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCountersIncrement(t *testing.T) {
	before := counterValue(t, "wavedeck_gain_jobs_total", "ok")
	GainJobs.WithLabelValues("ok").Inc()
	if got := counterValue(t, "wavedeck_gain_jobs_total", "ok"); got != before+1 {
		t.Errorf("expected %f, got %f", before+1, got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	Underruns.Inc()
	EngineState.Set(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"wavedeck_underruns_total", "wavedeck_engine_state"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}
