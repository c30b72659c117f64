package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultMaxResponseBytes caps how much of a response body is buffered.
	DefaultMaxResponseBytes int64 = 1 << 20
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "goNoPass/1.0"
	// HeaderRequestID carries the per-call request id.
	HeaderRequestID = "X-Request-ID"
)

// ErrResponseTooLarge is returned when a response body exceeds the configured cap.
var ErrResponseTooLarge = errors.New("response body too large")

// Request is a single outbound JSON POST.
type Request struct {
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender issues one request and returns the buffered response.
// Implementations return an error only when no HTTP response was obtained;
// non-2xx statuses are reported through Response.StatusCode.
// Callers always pass a non-nil ctx.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f(ctx, req).
func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPConfig tunes an HTTPSender.
type HTTPConfig struct {
	UserAgent        string
	MaxResponseBytes int64
}

// HTTPSender sends requests with an *http.Client.
type HTTPSender struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewHTTPSender wraps client. A nil client uses http.DefaultClient.
func NewHTTPSender(client *http.Client, cfg HTTPConfig) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &HTTPSender{
		client:    client,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxResponseBytes,
	}
}

// Send performs a POST with a JSON body and reads the whole response.
// ctx must be non-nil.
func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, s.maxBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
