// Command sessioncap-loadtest hammers the Redis session backend with
// concurrent logins and refreshes for a small pool of users, then checks that
// no user ended up holding more sessions than the cap allows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessioncap/session"
)

// tokenBook remembers every refresh token handed out per user so the refresh
// phase can present both live and evicted tokens.
type tokenBook struct {
	mu     sync.Mutex
	tokens map[int64][]string
}

func (b *tokenBook) add(userID int64, token string) {
	b.mu.Lock()
	b.tokens[userID] = append(b.tokens[userID], token)
	b.mu.Unlock()
}

func (b *tokenBook) pick(r *rand.Rand, userID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.tokens[userID]
	if len(list) == 0 {
		return "", false
	}
	return list[r.Intn(len(list))], true
}

func main() {
	var (
		users       = flag.Int("users", 50, "number of distinct users")
		limit       = flag.Int("limit", session.DefaultLimit, "per-user session cap")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (login + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sc-load", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *limit <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, limit, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	var evictions int64
	mgr, err := session.NewManager(session.NewRedisStore(client, *prefix, time.Hour), session.ManagerConfig{
		Limit: *limit,
		OnEvict: func(context.Context, *session.Session) {
			atomic.AddInt64(&evictions, 1)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "session manager: %v\n", err)
		os.Exit(1)
	}

	book := &tokenBook{tokens: make(map[int64][]string)}

	loginStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		userID := int64(r.Intn(*users) + 1)
		token := uuid.NewString()
		if _, err := mgr.CreateSession(ctx, userID, token); err != nil {
			return err
		}
		book.add(userID, token)
		return nil
	})

	var stale int64
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		userID := int64(r.Intn(*users) + 1)
		token, ok := book.pick(r, userID)
		if !ok {
			return nil
		}
		_, err := mgr.ValidateAndTouch(ctx, token)
		if errors.Is(err, session.ErrNotFound) {
			atomic.AddInt64(&stale, 1)
			return nil
		}
		return err
	})

	violations := 0
	for id := int64(1); id <= int64(*users); id++ {
		list, err := mgr.ListSessions(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list sessions for user %d: %v\n", id, err)
			os.Exit(1)
		}
		if len(list) > *limit {
			violations++
			fmt.Printf("user %d holds %d sessions (limit %d)\n", id, len(list), *limit)
		}
	}

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("refresh", refreshStats)
	fmt.Printf("evictions=%d stale_refreshes=%d cap_violations=%d\n", atomic.LoadInt64(&evictions), atomic.LoadInt64(&stale), violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
