package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/session"
)

type fakeSource struct {
	snapshot authflow.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authflow.MetricsSnapshot { return f.snapshot }
func (f fakeSource) NotificationsDropped() uint64              { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters:   map[authflow.MetricID]uint64{},
			Histograms: map[authflow.MetricID][]uint64{},
		},
	})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
	if got := NewExporter(nil).Render(); got != "" {
		t.Fatalf("nil controller rendered %q", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters: map[authflow.MetricID]uint64{
				authflow.MetricCaptchaMismatch: 7,
			},
			Histograms: map[authflow.MetricID][]uint64{
				authflow.MetricBackendLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"amfa_captcha_mismatch_total 7",
		"amfa_login_success_total 0",
		"amfa_backend_latency_seconds_bucket{le=\"0.005\"} 1",
		"amfa_backend_latency_seconds_bucket{le=\"+Inf\"} 36",
		"amfa_backend_latency_seconds_count 36",
		"amfa_notifications_dropped_total 2",
		"# TYPE amfa_backend_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

type nopBackend struct{ authflow.Backend }

func TestRenderFromController(t *testing.T) {
	c, err := authflow.New().
		WithBackend(nopBackend{}).
		WithSessionStore(session.NewMemoryStore()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if _, err := c.Start(context.Background(), "/nowhere"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if out := NewExporter(c).Render(); !strings.Contains(out, "amfa_navigation_total 1") {
		t.Fatalf("navigation not counted:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters:   map[authflow.MetricID]uint64{authflow.MetricLogout: 1},
			Histograms: map[authflow.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters: map[authflow.MetricID]uint64{
				authflow.MetricLoginSuccess:  1000,
				authflow.MetricLoginFailure:  40,
				authflow.MetricNavigation:    5000,
				authflow.MetricStaleResponse: 3,
			},
			Histograms: map[authflow.MetricID][]uint64{
				authflow.MetricBackendLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	for b.Loop() {
		_ = exp.Render()
	}
}
