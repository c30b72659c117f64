// Command np-loadtest measures client round trips under concurrency.
//
// Without --base-url it starts an in-process server that verifies request
// signatures. The token/email pairing check runs on Redis at --redis-addr,
// REDIS_ADDR, or an embedded miniredis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goNoPass "github.com/MrEthical07/goNoPass"
	"github.com/MrEthical07/goNoPass/challenge"
	"github.com/MrEthical07/goNoPass/signer"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	stubClientID = "loadtest"
	stubSecret   = "loadtest-secret"
	stubCode     = "000000"
)

type challengeState struct {
	email string
	token string
	code  string
}

func main() {
	var (
		users       = flag.Int("users", 5000, "number of distinct emails")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		baseURL     = flag.String("base-url", "", "server root; if empty an in-process stub is used")
		clientID    = flag.String("client-id", stubClientID, "client id")
		secret      = flag.String("secret", stubSecret, "shared secret")
		code        = flag.String("code", stubCode, "code used when the server does not echo one")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", challenge.DefaultPrefix, "challenge key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "users and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	target := *baseURL
	if target == "" {
		srv, err := newStubServer(*secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start stub server: %v\n", err)
			os.Exit(1)
		}
		defer srv.Close()
		target = srv.URL
		fmt.Printf("using stub server at %s\n", target)
	}

	cfg := goNoPass.DefaultConfig()
	cfg.BaseURL = target
	cfg.ClientID = *clientID
	cfg.SharedSecretKey = *secret
	cfg.Silent = true
	cfg.HTTP.Timeout = 10 * time.Second

	client, err := goNoPass.New().
		WithConfig(cfg).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		WithChallengeTracker(challenge.NewRedisStore(rdb, *prefix, 0)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	states := make([]challengeState, *users)
	for i := range states {
		states[i].email = fmt.Sprintf("user-%d@loadtest.invalid", i)
	}

	authStats := runPhase(*concurrency, len(states), func(i int) error {
		resp, err := client.SendAuth(ctx, states[i].email)
		if err != nil {
			return err
		}
		states[i].token = resp.Token
		states[i].code = resp.Code
		return nil
	})

	validateStats := runPhase(*concurrency, len(states), func(i int) error {
		s := states[i]
		if s.token == "" {
			return fmt.Errorf("no challenge for %s", s.email)
		}
		c := s.code
		if c == "" {
			c = *code
		}
		_, err := client.SendValidation(ctx, s.email, s.token, c)
		return err
	})

	fmt.Println("---- results ----")
	printStats("auth", authStats)
	printStats("validate", validateStats)
	printCounters(client.MetricsSnapshot())
}

// runPhase calls op once for every index in [0, n) from concurrency workers.
func runPhase(concurrency, n int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
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

func printCounters(s goNoPass.MetricsSnapshot) {
	fmt.Printf("server_errors=%d transport_failures=%d malformed=%d empty=%d mismatches=%d\n",
		s.Counters[goNoPass.MetricServerError],
		s.Counters[goNoPass.MetricTransportFailure],
		s.Counters[goNoPass.MetricMalformedResponse],
		s.Counters[goNoPass.MetricEmptyResponse],
		s.Counters[goNoPass.MetricChallengeMismatch],
	)
}

// newStubServer issues a fresh token per auth request and accepts stubCode
// once for any token it issued.
func newStubServer(secret string) (*httptest.Server, error) {
	verifier, err := signer.NewSigner(signer.Config{Secret: []byte(secret)})
	if err != nil {
		return nil, err
	}
	var issued sync.Map

	decode := func(r *http.Request, out any) error {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		var env signer.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		return verifier.Verify(env.Data, out)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /apiuser", func(w http.ResponseWriter, r *http.Request) {
		var req goNoPass.AuthRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, `{"message":"bad signature"}`, http.StatusUnauthorized)
			return
		}
		token := uuid.NewString()
		issued.Store(token, req.Email)
		_ = json.NewEncoder(w).Encode(goNoPass.AuthResponse{Message: "ok", Token: token})
	})
	mux.HandleFunc("POST /apiuser/validate", func(w http.ResponseWriter, r *http.Request) {
		var req goNoPass.ValidationRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, `{"message":"bad signature"}`, http.StatusUnauthorized)
			return
		}
		// A wrong code leaves the token usable; only a successful
		// validation consumes it.
		email, ok := issued.Load(req.Token)
		if !ok || email != req.Email || req.Code != stubCode || !issued.CompareAndDelete(req.Token, email) {
			http.Error(w, `{"message":"authentication failed"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(goNoPass.ValidationResponse{Message: "ok", JWT: uuid.NewString()})
	})

	return httptest.NewServer(mux), nil
}
