// Command boxum-loadtest drives the engine in-process and reports latency
// percentiles for login, access-token validation and refresh.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/mail"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const loadPassword = "load-test-password"

type account struct {
	email   string
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per validate/refresh phase")
		logins      = flag.Int("logins", 1000, "operations in the login phase")
		argonMemory = flag.Uint("argon-memory", 8192, "argon2 memory in KB")
		argonTime   = flag.Uint("argon-time", 1, "argon2 iterations")
		throttle    = flag.Bool("throttle", false, "enable the redis login throttle")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := boxumco.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("boxum-loadtest-signing-secret-0123456789")
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = uint32(*argonTime)
	cfg.Password.Parallelism = 1
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Throttle.Enabled = *throttle
	cfg.Throttle.MaxLoginAttempts = 1 << 20

	store := boxumco.NewMemoryStore()
	builder := boxumco.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithDeviceStore(store).
		WithMailer(mail.NewLogMailer(zap.NewNop()))

	if *throttle {
		client, cleanup, err := redisClient(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	accounts, err := seed(ctx, engine, store, *users, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*logins, *concurrency, func(r *rand.Rand, _ int) error {
		a := accounts[r.Intn(len(accounts))]
		_, err := engine.Login(ctx, a.email, loadPassword)
		return err
	})
	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.ValidateAccess(ctx, accounts[r.Intn(len(accounts))].access)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.Refresh(ctx, accounts[r.Intn(len(accounts))].refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: login_success=%d refresh_success=%d\n",
		snap.Counters[boxumco.MetricLoginSuccess], snap.Counters[boxumco.MetricRefreshSuccess])
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// seed registers and activates n client accounts, then logs each in once.
func seed(ctx context.Context, engine *boxumco.Engine, store *boxumco.MemoryStore, n, concurrency int) ([]account, error) {
	accounts := make([]account, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range accounts {
		g.Go(func() error {
			email := fmt.Sprintf("load-%d@boxum.test", i)
			res, err := engine.Register(gctx, boxumco.RegisterRequest{
				Email:    email,
				Password: loadPassword,
				Profile: boxumco.ClientProfile{
					Contact: boxumco.Contact{FirstName: "Load", LastName: fmt.Sprint(i)},
				},
			})
			if err != nil {
				return fmt.Errorf("register %s: %w", email, err)
			}
			if err := store.SetActive(gctx, res.UserID, true); err != nil {
				return err
			}
			login, err := engine.Login(gctx, email, loadPassword)
			if err != nil {
				return fmt.Errorf("login %s: %w", email, err)
			}
			accounts[i] = account{email: email, access: login.Tokens.Access, refresh: login.Tokens.Refresh}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// runPhase runs op ops times across concurrency workers. Each worker keeps
// its own samples; failed operations are counted, not fatal.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		g         errgroup.Group
		next      atomic.Int64
		failures  atomic.Int64
		perWorker = make([][]time.Duration, concurrency)
	)

	start := time.Now()
	for w := range perWorker {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			for i := int(next.Add(1)) - 1; i < ops; i = int(next.Add(1)) - 1 {
				t0 := time.Now()
				if err := op(r, i); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(t0))
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	var samples []time.Duration
	for _, s := range perWorker {
		samples = append(samples, s...)
	}
	return summarize(elapsed, samples, failures.Load())
}

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int64
	mean     time.Duration
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	max      time.Duration
}

func summarize(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	st := phaseStats{elapsed: elapsed, ops: len(samples), failures: failures}
	if len(samples) == 0 {
		return st
	}
	slices.Sort(samples)
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	st.mean = sum / time.Duration(len(samples))
	st.p50 = rank(samples, 0.50)
	st.p95 = rank(samples, 0.95)
	st.p99 = rank(samples, 0.99)
	st.max = samples[len(samples)-1]
	return st
}

// rank returns the nearest-rank quantile q of sorted samples.
func rank(sorted []time.Duration, q float64) time.Duration {
	i := int(q*float64(len(sorted)) + 0.5)
	return sorted[min(max(i-1, 0), len(sorted)-1)]
}

func printStats(name string, s phaseStats) {
	rate := 0.0
	if s.elapsed > 0 {
		rate = float64(s.ops) / s.elapsed.Seconds()
	}
	fmt.Printf("%-9s ops=%d failed=%d elapsed=%s rate=%.0f/s mean=%s p50=%s p95=%s p99=%s max=%s\n",
		name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), rate,
		s.mean.Round(time.Microsecond), s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond), s.max.Round(time.Microsecond))
}
