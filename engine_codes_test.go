package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginWithCode(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := te.mustRegister(t, testEmail, testPassword)

	rl, err := te.RequestLoginCode(ctx, "User@Example.com")
	if err != nil || rl.Limited {
		t.Fatalf("request code: %+v %v", rl, err)
	}
	sent := te.notifier.last(t)
	if sent.destination != testEmail || sent.purpose != PurposeLogin || len(sent.code) != 6 {
		t.Fatalf("unexpected delivery %+v", sent)
	}

	res, err := te.LoginWithCode(ctx, testEmail, sent.code)
	if err != nil {
		t.Fatalf("login with code: %v", err)
	}
	if res.Outcome != OutcomeOK || res.Account.ID != account.ID {
		t.Fatalf("expected ok for %s, got %s", account.ID, res.Outcome)
	}

	// Consumed on success.
	res, err = te.LoginWithCode(ctx, testEmail, sent.code)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Outcome != OutcomeCodeExpired {
		t.Fatalf("expected replay to read as expired, got %s", res.Outcome)
	}
}

func TestCodeAttemptsExhaust(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	code, err := te.IssueCode(ctx, PurposeLogin, testEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for want := 4; want >= 1; want-- {
		v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, wrong)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if v.Outcome != OutcomeCodeMismatch || v.Remaining != want {
			t.Fatalf("expected mismatch with %d left, got %s %d", want, v.Outcome, v.Remaining)
		}
	}
	v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, wrong)
	if err != nil || v.Outcome != OutcomeCodeExhausted {
		t.Fatalf("expected exhausted on fifth miss, got %s %v", v.Outcome, err)
	}

	// The code is gone; even the right one no longer verifies.
	v, err = te.VerifyCode(ctx, PurposeLogin, testEmail, code)
	if err != nil || v.Outcome != OutcomeCodeExpired {
		t.Fatalf("expected expired after exhaustion, got %s %v", v.Outcome, err)
	}
}

func TestReissueReplacesCodeAndResetsAttempts(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	first, err := te.IssueCode(ctx, PurposeLogin, testEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrong := "000000"
	if first == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		if _, err := te.VerifyCode(ctx, PurposeLogin, testEmail, wrong); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}

	second, err := te.IssueCode(ctx, PurposeLogin, testEmail)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if second != first {
		v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, first)
		if err != nil || v.Outcome != OutcomeCodeMismatch || v.Remaining != 4 {
			t.Fatalf("expected fresh budget and old code dead, got %s %d %v", v.Outcome, v.Remaining, err)
		}
	}
	v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, second)
	if err != nil || v.Outcome != OutcomeOK {
		t.Fatalf("expected new code to verify, got %s %v", v.Outcome, err)
	}
}

func TestCodeIsScopedByPurpose(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	code, err := te.IssueCode(ctx, PurposePasswordReset, testEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, code)
	if err != nil || v.Outcome != OutcomeCodeExpired {
		t.Fatalf("reset code must not verify for login, got %s %v", v.Outcome, err)
	}
	v, err = te.VerifyCode(ctx, PurposePasswordReset, testEmail, code)
	if err != nil || v.Outcome != OutcomeOK {
		t.Fatalf("expected reset code ok, got %s %v", v.Outcome, err)
	}
}

func TestCodeExpires(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	code, err := te.IssueCode(ctx, PurposeLogin, testEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	te.mr.FastForward(5*time.Minute + time.Second)

	v, err := te.VerifyCode(ctx, PurposeLogin, testEmail, code)
	if err != nil || v.Outcome != OutcomeCodeExpired {
		t.Fatalf("expected expired, got %s %v", v.Outcome, err)
	}
}

func TestRequestLoginCodeDoesNotRevealUnknownEmail(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	rl, err := te.RequestLoginCode(ctx, "nobody@example.com")
	if err != nil || rl.Limited {
		t.Fatalf("expected silent success, got %+v %v", rl, err)
	}
	if te.notifier.count() != 0 {
		t.Fatalf("no code should be sent to an unknown address")
	}
}

func TestRequestLoginCodeRateLimited(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	te.mustRegister(t, testEmail, testPassword)

	for i := 0; i < 3; i++ {
		if rl, err := te.RequestLoginCode(ctx, testEmail); err != nil || rl.Limited {
			t.Fatalf("request %d: %+v %v", i, rl, err)
		}
	}
	rl, err := te.RequestLoginCode(ctx, testEmail)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !rl.Limited || rl.Outcome != OutcomeRateLimited || rl.RetryAfter <= 0 {
		t.Fatalf("expected fourth request limited, got %+v", rl)
	}
	if te.notifier.count() != 3 {
		t.Fatalf("expected 3 deliveries, got %d", te.notifier.count())
	}
}

func TestUndeliveredCodeIsDiscarded(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	te.notifier.fail(errBackendDown)

	_, err := te.IssueCode(ctx, PurposeLogin, testEmail)
	if !errors.Is(err, ErrNotifierUnavailable) {
		t.Fatalf("expected notifier error, got %v", err)
	}
	if keys := te.mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no code state left, got %v", keys)
	}
}

func TestCodeFlowsRequireNotifier(t *testing.T) {
	te := newTestEngine(t, testConfig(), func(b *Builder) { b.WithNotifier(nil) })
	if _, err := te.IssueCode(context.Background(), PurposeLogin, testEmail); !errors.Is(err, ErrNotifierRequired) {
		t.Fatalf("expected ErrNotifierRequired, got %v", err)
	}
}
