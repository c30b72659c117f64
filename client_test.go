package goNoPass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goNoPass/challenge"
	"github.com/MrEthical07/goNoPass/signer"
	"github.com/MrEthical07/goNoPass/transport"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	testClientID = "c1"
	testSecret   = "s1"
	testEmail    = "u@example.com"
)

type capturedRequest struct {
	Path     string
	Header   http.Header
	Envelope signer.Envelope
}

type stubServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []capturedRequest
}

// newStubServer records every request and answers with status and body.
func newStubServer(t *testing.T, status int, body string) *stubServer {
	t.Helper()
	s := &stubServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var env signer.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Errorf("request body is not an envelope: %s", raw)
		}
		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Envelope: env})
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func testConfig(baseURL string) Config {
	cfg := defaultConfig()
	cfg.BaseURL = baseURL
	cfg.ClientID = testClientID
	cfg.SharedSecretKey = testSecret
	cfg.Silent = true
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(testConfig(baseURL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func serverVerifier(t *testing.T) *signer.Signer {
	t.Helper()
	v, err := signer.NewSigner(signer.Config{Secret: []byte(testSecret), TokenID: true})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

// countingSender fails the test if it is ever used.
func countingSender(calls *atomic.Int64) transport.Sender {
	return transport.SenderFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})
}

func TestSendAuthScenario(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN"}`)
	c := newTestClient(t, stub.URL)

	got, err := c.SendAuth(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("send auth: %v", err)
	}
	if got != (AuthResponse{Message: "ok", Token: "TKN"}) {
		t.Fatalf("response = %+v", got)
	}

	reqs := stub.captured()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Path != "/apiuser" {
		t.Errorf("path = %q, want /apiuser", reqs[0].Path)
	}
	if reqs[0].Envelope.ClientID != testClientID {
		t.Errorf("clientId = %q, want %q", reqs[0].Envelope.ClientID, testClientID)
	}
	if ct := reqs[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if reqs[0].Header.Get(transport.HeaderRequestID) == "" {
		t.Error("expected request id header")
	}

	var payload map[string]any
	if err := serverVerifier(t).Verify(reqs[0].Envelope.Data, &payload); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(payload) != 1 || payload["email"] != testEmail {
		t.Fatalf("decoded payload = %v, want {email: %s}", payload, testEmail)
	}
}

func TestSendValidationPayload(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"welcome","jwt":"J.W.T"}`)
	c := newTestClient(t, stub.URL)

	got, err := c.SendValidation(context.Background(), testEmail, "TKN", "77005")
	if err != nil {
		t.Fatalf("send validation: %v", err)
	}
	if got != (ValidationResponse{Message: "welcome", JWT: "J.W.T"}) {
		t.Fatalf("response = %+v", got)
	}

	reqs := stub.captured()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Path != "/apiuser/validate" {
		t.Errorf("path = %q, want /apiuser/validate", reqs[0].Path)
	}

	var payload ValidationRequest
	if err := serverVerifier(t).Verify(reqs[0].Envelope.Data, &payload); err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := ValidationRequest{Email: testEmail, Code: "77005", Token: "TKN"}
	if payload != want {
		t.Fatalf("decoded payload = %+v, want %+v", payload, want)
	}
}

func TestSignatureFailsUnderOtherSecret(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN"}`)
	c := newTestClient(t, stub.URL)

	if _, err := c.SendAuth(context.Background(), testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	wrong, _ := signer.NewSigner(signer.Config{Secret: []byte("s2")})
	if _, err := wrong.VerifyClaims(stub.captured()[0].Envelope.Data); err == nil {
		t.Fatal("expected verification with another secret to fail")
	}
}

func TestDevPathPrefix(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN","jwt":"J"}`)
	cfg := testConfig(stub.URL)
	cfg.Dev = true
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if c.AuthURL() != stub.URL+"/api/apiuser" {
		t.Errorf("AuthURL = %q", c.AuthURL())
	}
	if _, err := c.SendAuth(context.Background(), testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	if _, err := c.SendValidation(context.Background(), testEmail, "TKN", "1"); err != nil {
		t.Fatalf("send validation: %v", err)
	}

	reqs := stub.captured()
	if reqs[0].Path != "/api/apiuser" || reqs[1].Path != "/api/apiuser/validate" {
		t.Fatalf("paths = %q, %q", reqs[0].Path, reqs[1].Path)
	}
}

func TestServerErrorCarriesStatusAndBody(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		stub := newStubServer(t, status, `{"message":"authentication failed"}`)
		c := newTestClient(t, stub.URL)

		_, err := c.SendAuth(context.Background(), testEmail)
		if !errors.Is(err, ErrServer) {
			t.Fatalf("status %d: expected ErrServer, got %v", status, err)
		}
		var se *ServerError
		if !errors.As(err, &se) {
			t.Fatalf("status %d: expected *ServerError, got %T", status, err)
		}
		if se.StatusCode != status {
			t.Errorf("StatusCode = %d, want %d", se.StatusCode, status)
		}
		if string(se.Body) != `{"message":"authentication failed"}` {
			t.Errorf("Body = %s", se.Body)
		}
		if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrEmptyResponse) {
			t.Error("server error must not match parse errors")
		}
	}
}

func TestValidationRejectedIsServerError(t *testing.T) {
	stub := newStubServer(t, http.StatusUnauthorized, `{"message":"code expired"}`)
	c := newTestClient(t, stub.URL)

	_, err := c.SendValidation(context.Background(), testEmail, "TKN", "00000")
	var se *ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 ServerError, got %v", err)
	}
}

func TestEmptyAndMalformedResponsesAreDistinct(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmpty bool
	}{
		{"empty", "", true},
		{"whitespace", " \n\t", true},
		{"truncated json", `{"message":`, false},
		{"html", "<html>oops</html>", false},
		{"json array", `["ok"]`, false},
		{"json null", "null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubServer(t, http.StatusOK, tt.body)
			c := newTestClient(t, stub.URL)

			_, err := c.SendAuth(context.Background(), testEmail)
			if tt.wantEmpty {
				var ee *EmptyResponseError
				if !errors.As(err, &ee) || !errors.Is(err, ErrEmptyResponse) {
					t.Fatalf("expected EmptyResponseError, got %v", err)
				}
				if errors.Is(err, ErrMalformedResponse) {
					t.Fatal("empty body must not match ErrMalformedResponse")
				}
				return
			}
			var me *MalformedResponseError
			if !errors.As(err, &me) || !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected MalformedResponseError, got %v", err)
			}
			if string(me.Body) != tt.body {
				t.Errorf("Body = %q, want %q", me.Body, tt.body)
			}
			if errors.Is(err, ErrEmptyResponse) {
				t.Fatal("malformed body must not match ErrEmptyResponse")
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	stub := httptest.NewServer(http.NotFoundHandler())
	url := stub.URL
	stub.Close()

	c := newTestClient(t, url)
	_, err := c.SendAuth(context.Background(), testEmail)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if got := c.MetricsSnapshot().Counters[MetricTransportFailure]; got != 1 {
		t.Fatalf("transport failures = %d, want 1", got)
	}
}

func TestCanceledContextSurfacesAsTransportError(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN"}`)
	c := newTestClient(t, stub.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendAuth(ctx, testEmail)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected transport error wrapping context.Canceled, got %v", err)
	}
}

func TestTrailingSlashFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	cfg := testConfig("http://localhost:27001/")

	_, err := New().WithConfig(cfg).WithSender(countingSender(&calls)).Build()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no request may be sent during construction")
	}
}

func TestBlankArgumentsRejectedBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	c, err := New().WithConfig(testConfig("http://localhost:27001")).WithSender(countingSender(&calls)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, err := c.SendAuth(ctx, "  "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank email: %v", err)
	}
	if _, err := c.SendValidation(ctx, "", "TKN", "1"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank email: %v", err)
	}
	if _, err := c.SendValidation(ctx, testEmail, "", "1"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank token: %v", err)
	}
	if _, err := c.SendValidation(ctx, testEmail, "TKN", " "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank code: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("sender called %d times", calls.Load())
	}
	if got := c.MetricsSnapshot().Counters[MetricInvalidRequest]; got != 4 {
		t.Fatalf("invalid requests = %d, want 4", got)
	}
}

func TestUnsignablePayloadIsSigningError(t *testing.T) {
	var calls atomic.Int64
	c, err := New().WithConfig(testConfig("http://localhost:27001")).WithSender(countingSender(&calls)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	var out AuthResponse
	err = c.post(context.Background(), authCall, c.authURL, make(chan int), &out)
	if !errors.Is(err, ErrSigning) || !errors.Is(err, signer.ErrPayloadEncoding) {
		t.Fatalf("expected signing error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("unsigned payload must not be sent")
	}
}

func TestInjectedSenderSeesSignedEnvelope(t *testing.T) {
	var seen transport.Request
	sender := transport.SenderFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		seen = *req
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"message":"ok","token":"T"}`)}, nil
	})
	c, err := New().WithConfig(testConfig("https://np.example.com")).WithSender(sender).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.SendAuth(context.Background(), testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	if seen.URL != "https://np.example.com/apiuser" {
		t.Fatalf("url = %q", seen.URL)
	}
	var env signer.Envelope
	if err := json.Unmarshal(seen.Body, &env); err != nil {
		t.Fatalf("body: %v", err)
	}
	if env.ClientID != testClientID || strings.Count(env.Data, ".") != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if bytes.Contains(seen.Body, []byte(testSecret+`"`)) {
		t.Fatal("secret must never be transmitted")
	}
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var env signer.Envelope
		_ = json.Unmarshal(raw, &env)
		var req AuthRequest
		if err := serverVerifier(t).Verify(env.Data, &req); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(AuthResponse{Message: "ok", Token: "T-" + req.Email})
	}))
	defer stub.Close()
	c := newTestClient(t, stub.URL)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			resp, err := c.SendAuth(context.Background(), email)
			if err != nil {
				errs <- err
				return
			}
			if resp.Token != "T-"+email {
				errs <- errors.New("token for " + email + " = " + resp.Token)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if got := c.MetricsSnapshot().Counters[MetricAuthSuccess]; got != n {
		t.Fatalf("auth successes = %d, want %d", got, n)
	}
}

func newTrackedClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	c, err := New().
		WithConfig(testConfig(baseURL)).
		WithChallengeTracker(challenge.NewRedisStore(rdb, "", time.Minute)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestChallengeTrackerPairing(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN","jwt":"J"}`)
	c := newTrackedClient(t, stub.URL)
	ctx := context.Background()

	if _, err := c.SendAuth(ctx, testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}

	_, err := c.SendValidation(ctx, "other@example.com", "TKN", "1")
	if !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected ErrChallengeMismatch, got %v", err)
	}
	if len(stub.captured()) != 1 {
		t.Fatal("mismatched validation must not reach the server")
	}

	if _, err := c.SendValidation(ctx, testEmail, "TKN", "1"); err != nil {
		t.Fatalf("paired validation: %v", err)
	}
	// The challenge is forgotten after success.
	if _, err := c.SendValidation(ctx, testEmail, "TKN", "1"); !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected consumed token to be refused, got %v", err)
	}
	if got := c.MetricsSnapshot().Counters[MetricChallengeMismatch]; got != 2 {
		t.Fatalf("mismatches = %d, want 2", got)
	}
}

func TestChallengeTrackerKeepsTokenAfterRejectedCode(t *testing.T) {
	var reject atomic.Bool
	reject.Store(true)
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/apiuser" {
			_, _ = w.Write([]byte(`{"message":"ok","token":"TKN"}`))
			return
		}
		if reject.Load() {
			http.Error(w, `{"message":"bad code"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok","jwt":"J"}`))
	}))
	defer stub.Close()
	c := newTrackedClient(t, stub.URL)
	ctx := context.Background()

	if _, err := c.SendAuth(ctx, testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	if _, err := c.SendValidation(ctx, testEmail, "TKN", "wrong"); !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	reject.Store(false)
	got, err := c.SendValidation(ctx, testEmail, "TKN", "right")
	if err != nil {
		t.Fatalf("retry with same token: %v", err)
	}
	if got.JWT != "J" {
		t.Fatalf("jwt = %q", got.JWT)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	stub := newStubServer(t, http.StatusInternalServerError, `boom`)
	sink := NewChannelSink(4)
	cfg := testConfig(stub.URL)
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 4}

	c, err := New().WithConfig(cfg).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, _ = c.SendAuth(context.Background(), testEmail)
	c.Close()

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditEventAuthRequest || ev.Success || ev.Error != "server" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.StatusCode != http.StatusInternalServerError || ev.ClientID != testClientID || ev.RequestID == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected audit event")
	}
}

func TestVerboseLoggingRedactsSecrets(t *testing.T) {
	stub := newStubServer(t, http.StatusOK, `{"message":"ok","token":"TKN-SECRET-VALUE"}`)
	var buf bytes.Buffer
	cfg := testConfig(stub.URL)
	cfg.Silent = false
	cfg.Verbose = true

	c, err := New().WithConfig(cfg).WithLogger(zerolog.New(&buf)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.SendAuth(context.Background(), testEmail); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "received response") {
		t.Fatalf("expected debug output, got %q", out)
	}
	for _, leak := range []string{"TKN-SECRET-VALUE", testEmail, `"` + testSecret + `"`} {
		if strings.Contains(out, leak) {
			t.Fatalf("log leaked %q: %s", leak, out)
		}
	}
}

func TestSilentLoggingWritesNothing(t *testing.T) {
	stub := newStubServer(t, http.StatusInternalServerError, `boom`)
	var buf bytes.Buffer
	cfg := testConfig(stub.URL)
	cfg.Silent = true
	cfg.Verbose = true

	c, err := New().WithConfig(cfg).WithLogger(zerolog.New(&buf)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.SendAuth(context.Background(), testEmail); !errors.Is(err, ErrServer) {
		t.Fatalf("expected failure to be returned even when silent, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("silent client wrote logs: %s", buf.String())
	}
}
