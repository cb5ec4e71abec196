package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/store/memory"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct-horse-battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentCode struct {
	destination string
	code        string
	purpose     CodePurpose
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (n *captureNotifier) SendCode(_ context.Context, destination, code string, purpose CodePurpose) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentCode{destination: destination, code: code, purpose: purpose})
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *captureNotifier) last(t *testing.T) sentCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("no code was sent")
	}
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

type fakeProvider struct {
	name       string
	identities map[string]ExternalIdentity
	err        error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Exchange(_ context.Context, code string) (ExternalIdentity, error) {
	if p.err != nil {
		return ExternalIdentity{}, p.err
	}
	ext, ok := p.identities[code]
	if !ok {
		return ExternalIdentity{}, ErrInvalidCredentials
	}
	return ext, nil
}

type testEngine struct {
	*Engine
	mr       *miniredis.Miniredis
	store    *memory.Store
	clock    *testClock
	notifier *captureNotifier
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// newTestEngine builds an Engine over miniredis and the in-memory store.
// Extra builder options run after the defaults.
func newTestEngine(t testing.TB, cfg Config, opts ...func(*Builder)) *testEngine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	te := &testEngine{
		mr:       mr,
		store:    memory.New(),
		clock:    newTestClock(),
		notifier: &captureNotifier{},
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(te.store).
		WithNotifier(te.notifier).
		WithClock(te.clock.Now).
		WithLogger(zap.NewNop())
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	te.Engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return te
}

func (te *testEngine) mustRegister(t testing.TB, email, pw string) *Account {
	t.Helper()
	account, err := te.Register(context.Background(), RegisterRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return account
}

func (te *testEngine) mustLogin(t testing.TB, identifier, pw string) AuthResult {
	t.Helper()
	res, err := te.LoginWithPassword(context.Background(), identifier, pw)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("expected login ok, got %s", res.Outcome)
	}
	return res
}

var errBackendDown = errors.New("backend down")
