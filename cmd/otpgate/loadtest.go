package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/mockapi"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadOptions struct {
	clients     int
	concurrency int
	redisAddr   string
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	opts := loadOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive concurrent sign-in flows against the simulated backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.clients <= 0 || opts.concurrency <= 0 {
				return fmt.Errorf("clients and concurrency must be > 0")
			}
			return runLoadtest(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.clients, "clients", 1000, "number of independent client scopes")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address; empty starts an embedded miniredis")
	return cmd
}

func runLoadtest(ctx context.Context, opts loadOptions, out io.Writer) error {
	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	cfg := goOTP.DefaultConfig()
	cfg.Backend.Latency = 0
	cfg.Backend.FixedCode = mockapi.DefaultTestCode
	engine, err := goOTP.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	scopes := make([]string, opts.clients)
	for i := range scopes {
		scopes[i] = fmt.Sprintf("load-%d", i)
	}

	phases := []struct {
		name string
		op   func(ctx context.Context, f *goOTP.Flow, i int) error
	}{
		{"sign-in", func(ctx context.Context, f *goOTP.Flow, i int) error {
			if err := f.RequestChallenge(ctx, fmt.Sprintf("user%d@example.com", i)); err != nil {
				return err
			}
			_, err := f.VerifyChallenge(ctx, "", mockapi.DefaultTestCode)
			return err
		}},
		{"refresh", func(ctx context.Context, f *goOTP.Flow, _ int) error {
			_, err := f.Refresh(ctx)
			return err
		}},
		{"guard", func(ctx context.Context, f *goOTP.Flow, _ int) error {
			if !engine.Guard(ctx, f.Scope(), cfg.Routes.HomePath).Allow {
				return goOTP.ErrNotAuthenticated
			}
			return nil
		}},
		{"logout", func(ctx context.Context, f *goOTP.Flow, _ int) error {
			return f.Logout(ctx)
		}},
	}

	fmt.Fprintln(out, "---- results ----")
	for _, p := range phases {
		stats := runPhase(ctx, engine, scopes, opts.concurrency, p.op)
		printStats(out, p.name, stats)
	}
	return nil
}

func runPhase(ctx context.Context, engine *goOTP.Engine, scopes []string, concurrency int, op func(context.Context, *goOTP.Flow, int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, len(scopes))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(scopes) {
					return
				}
				t0 := time.Now()
				f, err := engine.Flow(ctx, scopes[i])
				if err == nil {
					err = op(ctx, f, i)
				}
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	ops      int
	failures int64
	elapsed  time.Duration
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func computeStats(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	slices.Sort(samples)
	return phaseStats{
		ops:      len(samples),
		failures: failures,
		elapsed:  elapsed,
		p50:      percentile(samples, 0.50),
		p95:      percentile(samples, 0.95),
		p99:      percentile(samples, 0.99),
	}
}

// percentile reads the nearest-rank value from sorted samples.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func (s phaseStats) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ops) / s.elapsed.Seconds()
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d elapsed=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), s.rate(),
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}
