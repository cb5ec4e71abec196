package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
)

type loadtestOptions struct {
	accounts    int
	concurrency int
	ops         int
	rateMax     int
	redisAddr   string
	databaseURL string
	fastHash    bool
}

// NewLoadtestCmd creates the loadtest command.
func NewLoadtestCmd(root *rootOptions) *cobra.Command {
	opts := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive registration, login and rate limiting concurrently",
		Long: `Registers accounts concurrently (exercising identifier generation), signs
each one in, then hammers the fixed-window rate limiter. Without a Redis
address an embedded miniredis is used; without a database URL an in-memory
store is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 || opts.rateMax <= 0 {
				return oops.Code("CONFIG_INVALID").Errorf("accounts, concurrency, ops and rate-max must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), root.logger, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.accounts, "accounts", 200, "accounts to register and sign in")
	f.IntVar(&opts.concurrency, "concurrency", 32, "concurrent workers per phase")
	f.IntVar(&opts.ops, "ops", 20000, "rate-limit checks to perform")
	f.IntVar(&opts.rateMax, "rate-max", 100, "rate-limit budget per key and window")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; falls back to REDIS_ADDR, then miniredis")
	f.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL; the in-memory store is used when empty")
	f.BoolVar(&opts.fastHash, "fast-hash", true, "use minimal Argon2 parameters so hashing does not dominate")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, logger *zap.Logger, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, closeRedis, err := openRedis(out, opts.redisAddr)
	if err != nil {
		return err
	}
	defer closeRedis()

	var accountStore authcore.Store
	if opts.databaseURL != "" {
		pg, closeDB, err := postgres.Open(ctx, opts.databaseURL)
		if err != nil {
			return err
		}
		defer closeDB()
		accountStore = pg
		fmt.Fprintln(out, "using postgres account store")
	} else {
		accountStore = memory.New()
		fmt.Fprintln(out, "using in-memory account store")
	}

	cfg, err := loadtestConfig(opts.fastHash)
	if err != nil {
		return err
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(accountStore).
		WithNotifier(notify.NewLogNotifier(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	defer engine.Close()

	run := fmt.Sprintf("%d", time.Now().UnixNano())
	email := func(i int) string { return fmt.Sprintf("load-%s-%d@example.com", run, i) }
	const pw = "loadtest-password"

	register := runPhase(opts.accounts, opts.concurrency, func(i int) bool {
		_, err := engine.Register(ctx, authcore.RegisterRequest{Email: email(i), Password: pw})
		return err == nil
	})
	login := runPhase(opts.accounts, opts.concurrency, func(i int) bool {
		res, err := engine.LoginWithPassword(ctx, email(i), pw)
		return err == nil && res.Outcome == authcore.OutcomeOK
	})

	var limited int64
	keys := opts.concurrency * 4
	rate := runPhase(opts.ops, opts.concurrency, func(i int) bool {
		res, err := engine.CheckRateLimit(ctx, fmt.Sprintf("loadtest:%s:%d", run, i%keys), opts.rateMax, time.Minute)
		if err != nil {
			return false
		}
		if res.Limited {
			atomic.AddInt64(&limited, 1)
		}
		return true
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "register", register)
	printStats(out, "login", login)
	printStats(out, "rate-limit", rate)
	fmt.Fprintf(out, "rate-limit: limited=%d\n", limited)

	snap := engine.MetricsSnapshot()
	logger.Info("loadtest finished",
		zap.Uint64("accounts_created", snap.Counters[authcore.MetricAccountCreationSuccess]),
		zap.Uint64("logins", snap.Counters[authcore.MetricLoginSuccess]),
		zap.Uint64("faults", snap.Counters[authcore.MetricInfrastructureFault]),
	)

	if register.failures > 0 || login.failures > 0 || rate.failures > 0 {
		return oops.Code("LOADTEST_FAILURES").
			With("register", register.failures).
			With("login", login.failures).
			With("rate_limit", rate.failures).
			Errorf("load test recorded failures")
	}
	return nil
}

func openRedis(out io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, oops.Code("MINIREDIS_START_FAILED").Wrap(err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// loadtestConfig reads AUTHCORE_* variables and fills in an ephemeral HS256
// key when none is configured.
func loadtestConfig(fastHash bool) (authcore.Config, error) {
	cfg, err := authcore.LoadConfigFromEnv()
	if err != nil {
		return authcore.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if len(cfg.JWT.PrivateKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return authcore.Config{}, oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		cfg.JWT.SigningMethod = "hs256"
		cfg.JWT.PrivateKey = key
		cfg.JWT.PublicKey = nil
	}
	if fastHash {
		cfg.Password.Memory = 8 * 1024
		cfg.Password.Time = 1
		cfg.Password.Parallelism = 1
	}
	cfg.Metrics.Enabled = true
	return cfg, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// runPhase calls fn for 0..ops-1 across concurrency workers.
func runPhase(ops, concurrency int, fn func(i int) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := fn(i)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
