package authcore

import (
	"context"
	"strconv"
	"testing"
)

func BenchmarkAuthenticate(b *testing.B) {
	te := newTestEngine(b, testConfig())
	te.mustRegister(b, testEmail, testPassword)
	login := te.mustLogin(b, testEmail, testPassword)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if check, err := te.Authenticate(ctx, login.Tokens.AccessToken); err != nil || check.Outcome != OutcomeOK {
			b.Fatalf("authenticate failed: %s %v", check.Outcome, err)
		}
	}
}

func BenchmarkValidateToken(b *testing.B) {
	te := newTestEngine(b, testConfig())
	te.mustRegister(b, testEmail, testPassword)
	login := te.mustLogin(b, testEmail, testPassword)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !te.ValidateToken(login.Tokens.AccessToken) {
			b.Fatalf("validate failed")
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	te := newTestEngine(b, testConfig())
	te.mustRegister(b, testEmail, testPassword)
	login := te.mustLogin(b, testEmail, testPassword)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res, err := te.Refresh(ctx, login.Tokens.RefreshToken); err != nil || res.Outcome != OutcomeOK {
			b.Fatalf("refresh failed: %s %v", res.Outcome, err)
		}
	}
}

func BenchmarkCheckRateLimit(b *testing.B) {
	te := newTestEngine(b, testConfig())
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			if _, err := te.CheckRateLimit(ctx, "bench:"+strconv.Itoa(i%64), 1<<30, 60e9); err != nil {
				b.Fatalf("rate limit failed: %v", err)
			}
		}
	})
}
