package prometheus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Yellowatch/boxumco"
)

type fakeSource struct {
	snapshot boxumco.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() boxumco.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: boxumco.MetricsSnapshot{
			Counters:   map[boxumco.MetricID]uint64{},
			Histograms: map[boxumco.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistograms(t *testing.T) {
	exp := New(fakeSource{
		snapshot: boxumco.MetricsSnapshot{
			Counters: map[boxumco.MetricID]uint64{
				boxumco.MetricLoginSuccess: 7,
				boxumco.MetricMFARequired:  3,
			},
			Histograms: map[boxumco.MetricID][]uint64{
				boxumco.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"boxum_login_success_total 7",
		"boxum_mfa_required_total 3",
		"boxum_registration_success_total 0",
		`boxum_login_latency_seconds_bucket{le="0.01"} 1`,
		`boxum_login_latency_seconds_bucket{le="1"} 28`,
		`boxum_login_latency_seconds_bucket{le="+Inf"} 36`,
		"boxum_login_latency_seconds_count 36",
		"boxum_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "boxum_registration_latency_seconds") {
		t.Fatal("histograms absent from the snapshot must not be rendered")
	}
}

func TestRenderFromEngine(t *testing.T) {
	store := boxumco.NewMemoryStore()
	cfg := boxumco.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Metrics.EnableLatencyHistograms = true
	engine, err := boxumco.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithDeviceStore(store).
		WithMailer(nopMailer{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, _ = engine.Login(context.Background(), "nobody@example.com", "irrelevant-pass")

	out := New(engine).Render()
	if !strings.Contains(out, "boxum_login_failure_total 1") {
		t.Fatalf("expected one login failure, got:\n%s", out)
	}
	if !strings.Contains(out, "boxum_login_latency_seconds_count 1") {
		t.Fatalf("expected one latency sample, got:\n%s", out)
	}
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, boxumco.Email) error { return nil }

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: boxumco.MetricsSnapshot{
			Counters:   map[boxumco.MetricID]uint64{boxumco.MetricLoginSuccess: 1},
			Histograms: map[boxumco.MetricID][]uint64{},
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

type failingWriter struct{ writes int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	return 0, errors.New("closed")
}

func TestWriteToStopsAtFirstError(t *testing.T) {
	exp := New(fakeSource{
		snapshot: boxumco.MetricsSnapshot{
			Counters:   map[boxumco.MetricID]uint64{boxumco.MetricLoginSuccess: 1},
			Histograms: map[boxumco.MetricID][]uint64{},
		},
	})
	w := &failingWriter{}
	_, err := exp.WriteTo(w)
	if err == nil {
		t.Fatal("expected the write error to surface")
	}
	if w.writes != 1 {
		t.Fatalf("expected a single write attempt, got %d", w.writes)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}
