package authcore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMetricsCountLoginOutcomes(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	te.mustRegister(t, testEmail, testPassword)

	te.mustLogin(t, testEmail, testPassword)
	for i := 0; i < 5; i++ {
		if _, err := te.LoginWithPassword(ctx, testEmail, "wrong-password"); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	if _, err := te.LoginWithPassword(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 5 {
		t.Fatalf("expected 5 failures, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricAccountLocked] != 1 || snap.Counters[MetricLoginLocked] != 1 {
		t.Fatalf("expected one lock and one locked attempt, got %d %d",
			snap.Counters[MetricAccountLocked], snap.Counters[MetricLoginLocked])
	}
	if snap.Counters[MetricAccountCreationSuccess] != 1 {
		t.Fatalf("expected one account created")
	}
}

func TestMetricsDisabled(t *testing.T) {
	te := newTestEngine(t, testConfig(), func(b *Builder) { b.WithMetricsEnabled(false) })
	te.mustRegister(t, testEmail, testPassword)
	te.mustLogin(t, testEmail, testPassword)

	for id, v := range te.MetricsSnapshot().Counters {
		if v != 0 {
			t.Fatalf("metric %d counted while disabled: %d", id, v)
		}
	}
}

func TestValidateLatencyHistogram(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	te := newTestEngine(t, cfg)
	te.mustRegister(t, testEmail, testPassword)
	login := te.mustLogin(t, testEmail, testPassword)

	for i := 0; i < 3; i++ {
		if _, err := te.Authenticate(context.Background(), login.Tokens.AccessToken); err != nil {
			t.Fatalf("authenticate: %v", err)
		}
	}
	var total uint64
	for _, n := range te.MetricsSnapshot().Histograms[MetricValidateLatency] {
		total += n
	}
	if total != 3 {
		t.Fatalf("expected 3 observations, got %d", total)
	}
}

func TestAuditEventsNeverCarrySecrets(t *testing.T) {
	sink := NewChannelSink(64)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	te := newTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := WithClientIP(context.Background(), "203.0.113.5")
	te.mustRegister(t, testEmail, testPassword)

	if _, err := te.RequestLoginCode(ctx, testEmail); err != nil {
		t.Fatalf("request code: %v", err)
	}
	code := te.notifier.last(t).code
	res, err := te.LoginWithCode(ctx, testEmail, code)
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("login with code: %s %v", res.Outcome, err)
	}

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen["login_success"] {
		select {
		case ev := <-sink.Events():
			seen[ev.EventType] = true
			blob := ev.Subject + ev.Reason
			for _, v := range ev.Metadata {
				blob += v
			}
			if strings.Contains(blob, code) || strings.Contains(blob, res.Tokens.AccessToken) {
				t.Fatalf("audit event %s leaks a secret", ev.EventType)
			}
			if ev.EventType == "login_success" && ev.IP != "203.0.113.5" {
				t.Fatalf("expected client ip on event, got %q", ev.IP)
			}
			if !ev.Timestamp.Equal(te.clock.Now()) {
				t.Fatalf("audit event %s stamped %v, want engine clock %v", ev.EventType, ev.Timestamp, te.clock.Now())
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit events, saw %v", seen)
		}
	}
	for _, want := range []string{"account_created", "code_issued", "code_verify"} {
		if !seen[want] {
			t.Fatalf("expected %s event, saw %v", want, seen)
		}
	}
	if te.AuditDropped() != 0 {
		t.Fatalf("unexpected drops")
	}
}

func TestCheckRateLimit(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	for i := int64(2); i >= 0; i-- {
		rl, err := te.CheckRateLimit(ctx, "export:42", 3, time.Minute)
		if err != nil || rl.Limited || rl.Remaining != i {
			t.Fatalf("expected %d remaining, got %+v %v", i, rl, err)
		}
	}
	rl, err := te.CheckRateLimit(ctx, "export:42", 3, time.Minute)
	if err != nil || !rl.Limited || rl.Outcome != OutcomeRateLimited {
		t.Fatalf("expected limited, got %+v %v", rl, err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after %v", rl.RetryAfter)
	}

	te.mr.FastForward(time.Minute)
	if rl, _ := te.CheckRateLimit(ctx, "export:42", 3, time.Minute); rl.Limited {
		t.Fatalf("expected new window")
	}

	if _, err := te.CheckRateLimit(ctx, "export:42", 0, time.Minute); err == nil {
		t.Fatalf("expected invalid policy rejected")
	}
}

func TestPing(t *testing.T) {
	te := newTestEngine(t, testConfig())
	if err := te.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	te.mr.Close()
	if err := te.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}
