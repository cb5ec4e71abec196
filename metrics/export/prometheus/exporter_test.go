package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func populated() fakeSource {
	return fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:  7,
				authcore.MetricCodeExhausted: 1,
				authcore.MetricRateLimitHit:  3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(populated())

	// Every counter, one histogram and the audit drop counter.
	want := len(internaldefs.CounterDefs) + 1 + 1
	if got := testutil.CollectAndCount(c); got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}
	if got := testutil.CollectAndCount(c, "authcore_login_success_total"); got != 1 {
		t.Fatalf("expected login success series, got %d", got)
	}
}

func TestCollectorSkipsDisabledHistogram(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters:   map[authcore.MetricID]uint64{},
		Histograms: map[authcore.MetricID][]uint64{},
	}})
	if got := testutil.CollectAndCount(c, "authcore_authenticate_latency_seconds"); got != 0 {
		t.Fatalf("expected no histogram when latency is off, got %d", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	h, err := Handler(populated())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, line := range []string{
		"authcore_login_success_total 7",
		"authcore_code_exhausted_total 1",
		`authcore_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_authenticate_latency_seconds_bucket{le="0.5"} 28`,
		`authcore_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_authenticate_latency_seconds_count 36",
		"authcore_audit_dropped_total 2",
	} {
		if !strings.Contains(out, line) {
			t.Fatalf("expected %q in output:\n%s", line, out)
		}
	}
}

type metricsOnly struct{ m *authcore.Metrics }

func (s metricsOnly) MetricsSnapshot() authcore.MetricsSnapshot { return s.m.Snapshot() }
func (metricsOnly) AuditDropped() uint64                       { return 0 }

func TestCollectorReadsLiveMetrics(t *testing.T) {
	m := authcore.NewMetrics(authcore.MetricsConfig{Enabled: true})
	m.Inc(authcore.MetricTokenIssued)
	m.Inc(authcore.MetricTokenIssued)

	expected := `
# HELP authcore_token_issued_total Token pairs minted.
# TYPE authcore_token_issued_total counter
authcore_token_issued_total 2
`
	if err := testutil.CollectAndCompare(NewCollector(metricsOnly{m}), strings.NewReader(expected), "authcore_token_issued_total"); err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}
