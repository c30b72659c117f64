package goNoPass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goNoPass/signer"
	"github.com/MrEthical07/goNoPass/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client runs the two-step passwordless exchange against one server.
//
// A Client holds only its immutable configuration and derived endpoint URLs;
// challenge tokens are never cached. Methods are safe for concurrent use.
type Client struct {
	config        Config
	authURL       string
	validationURL string

	signer  *signer.Signer
	sender  transport.Sender
	logger  zerolog.Logger
	metrics *Metrics
	audit   *auditDispatcher
	tracker ChallengeTracker

	newRequestID func() string
}

// call names one of the two protocol operations.
type call struct {
	event   string
	failure MetricID
}

var (
	authCall       = call{event: AuditEventAuthRequest, failure: MetricAuthFailure}
	validationCall = call{event: AuditEventValidationRequest, failure: MetricValidationFailure}
)

// SendAuth asks the server to start a challenge for email, e.g. by mailing a
// verification code. The returned Token must be passed to SendValidation.
//
// Errors match ErrInvalidRequest, ErrSigning, ErrTransport, ErrServer,
// ErrMalformedResponse or ErrEmptyResponse. With a ChallengeTracker
// configured, ErrChallengeTrackerUnavailable is also possible.
//
// ctx must be non-nil; it bounds the round trip together with the
// configured timeout.
func (c *Client) SendAuth(ctx context.Context, email string) (AuthResponse, error) {
	c.metrics.Inc(MetricAuthRequest)

	if strings.TrimSpace(email) == "" {
		return AuthResponse{}, c.invalid(authCall, "email is required")
	}

	var out AuthResponse
	if err := c.post(ctx, authCall, c.authURL, AuthRequest{Email: email}, &out); err != nil {
		c.metrics.Inc(MetricAuthFailure)
		return AuthResponse{}, err
	}

	if c.tracker != nil && out.Token != "" {
		if err := c.tracker.Record(ctx, email, out.Token); err != nil {
			c.metrics.Inc(MetricAuthFailure)
			c.logger.Warn().Err(err).Msg("challenge tracker record failed")
			return AuthResponse{}, fmt.Errorf("%w: %w", ErrChallengeTrackerUnavailable, err)
		}
	}

	c.metrics.Inc(MetricAuthSuccess)
	return out, nil
}

// SendValidation completes the challenge identified by token with the code
// the user received. A rejected code or token comes back as a *ServerError;
// the reason is whatever the server put in the body.
//
// Failed validations leave the challenge usable, so the caller may retry with
// another code and the same token until the server expires it.
// ctx must be non-nil.
func (c *Client) SendValidation(ctx context.Context, email, token, code string) (ValidationResponse, error) {
	c.metrics.Inc(MetricValidationRequest)

	switch {
	case strings.TrimSpace(email) == "":
		return ValidationResponse{}, c.invalid(validationCall, "email is required")
	case token == "":
		return ValidationResponse{}, c.invalid(validationCall, "token is required")
	case strings.TrimSpace(code) == "":
		return ValidationResponse{}, c.invalid(validationCall, "code is required")
	}

	if c.tracker != nil {
		if err := c.checkChallenge(ctx, email, token); err != nil {
			c.metrics.Inc(MetricValidationFailure)
			return ValidationResponse{}, err
		}
	}

	req := ValidationRequest{Email: email, Code: code, Token: token}
	var out ValidationResponse
	if err := c.post(ctx, validationCall, c.validationURL, req, &out); err != nil {
		c.metrics.Inc(MetricValidationFailure)
		return ValidationResponse{}, err
	}

	if c.tracker != nil {
		if err := c.tracker.Forget(ctx, token); err != nil {
			c.logger.Warn().Err(err).Msg("challenge tracker forget failed")
		}
	}

	c.metrics.Inc(MetricValidationSuccess)
	return out, nil
}

// AuthURL returns the endpoint SendAuth posts to.
func (c *Client) AuthURL() string { return c.authURL }

// ValidationURL returns the endpoint SendValidation posts to.
func (c *Client) ValidationURL() string { return c.validationURL }

// ClientID returns the configured client identifier.
func (c *Client) ClientID() string { return c.config.ClientID }

// MetricsSnapshot returns a copy of the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes pending audit events. Calls made after Close still work but
// are no longer audited.
func (c *Client) Close() {
	c.audit.Close()
}

func (c *Client) invalid(op call, reason string) error {
	c.metrics.Inc(MetricInvalidRequest)
	c.metrics.Inc(op.failure)
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

func (c *Client) checkChallenge(ctx context.Context, email, token string) error {
	err := c.tracker.Check(ctx, email, token)
	if err == nil {
		return nil
	}
	if isTrackerUnavailable(err) {
		c.logger.Warn().Err(err).Msg("challenge tracker check failed")
		return fmt.Errorf("%w: %w", ErrChallengeTrackerUnavailable, err)
	}
	c.metrics.Inc(MetricChallengeMismatch)
	c.logger.Warn().Str("email", maskEmail(email)).Msg("validation refused: token not issued for email")
	return fmt.Errorf("%w: %w", ErrChallengeMismatch, err)
}

// post signs payload, sends it to url and decodes a 2xx JSON object into out.
func (c *Client) post(ctx context.Context, op call, url string, payload any, out any) (err error) {
	requestID := c.newRequestID()
	started := time.Now()
	status := 0

	defer func() {
		c.emitAudit(ctx, op, requestID, url, status, time.Since(started), err)
	}()

	env, err := c.signer.Envelope(c.config.ClientID, payload)
	if err != nil {
		c.metrics.Inc(MetricSigningFailure)
		c.logger.Warn().Err(err).Str("request_id", requestID).Msg("request signing failed")
		return fmt.Errorf("%w: %w", ErrSigning, err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		c.metrics.Inc(MetricSigningFailure)
		return fmt.Errorf("%w: %w", ErrSigning, err)
	}

	if e := c.logger.Debug(); e.Enabled() {
		e.Str("request_id", requestID).Str("url", url).Str("event", op.event).Msg("sending request")
	}

	rtStart := time.Now()
	resp, err := c.sender.Send(ctx, &transport.Request{
		URL:    url,
		Body:   body,
		Header: http.Header{transport.HeaderRequestID: []string{requestID}},
	})
	c.metrics.Observe(MetricRoundTripLatency, time.Since(rtStart))
	if err != nil {
		c.metrics.Inc(MetricTransportFailure)
		c.logger.Warn().Err(err).Str("request_id", requestID).Str("url", url).Msg("transport failure")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	status = resp.StatusCode

	if err := c.decode(url, resp, out); err != nil {
		c.logger.Warn().Err(err).Str("request_id", requestID).Int("status", status).Msg("request failed")
		return err
	}

	if e := c.logger.Debug(); e.Enabled() {
		var fields map[string]any
		_ = json.Unmarshal(resp.Body, &fields)
		e.Str("request_id", requestID).
			Int("status", status).
			Fields(redactFields(fields)).
			Msg("received response")
	}
	return nil
}

func (c *Client) decode(url string, resp *transport.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.Inc(MetricServerError)
		return &ServerError{URL: url, StatusCode: resp.StatusCode, Body: resp.Body}
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		c.metrics.Inc(MetricEmptyResponse)
		return &EmptyResponseError{URL: url, StatusCode: resp.StatusCode}
	}
	if body[0] != '{' {
		c.metrics.Inc(MetricMalformedResponse)
		return &MalformedResponseError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        errors.New("response is not a JSON object"),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.Inc(MetricMalformedResponse)
		return &MalformedResponseError{URL: url, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	return nil
}

func (c *Client) emitAudit(ctx context.Context, op call, requestID, url string, status int, d time.Duration, err error) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  op.event,
		RequestID:  requestID,
		ClientID:   c.config.ClientID,
		URL:        url,
		StatusCode: status,
		Duration:   d,
		Success:    err == nil,
	}
	if err != nil {
		event.Error = errorKind(err)
	}
	c.audit.Emit(context.WithoutCancel(ctx), event)
}

// errorKind names the taxonomy bucket of err without echoing response bodies.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return ErrorKindInvalidRequest
	case errors.Is(err, ErrSigning):
		return ErrorKindSigning
	case errors.Is(err, ErrTransport):
		return ErrorKindTransport
	case errors.Is(err, ErrServer):
		return ErrorKindServer
	case errors.Is(err, ErrMalformedResponse):
		return ErrorKindMalformedResponse
	case errors.Is(err, ErrEmptyResponse):
		return ErrorKindEmptyResponse
	case errors.Is(err, ErrChallengeMismatch):
		return ErrorKindChallengeMismatch
	default:
		return ErrorKindUnknown
	}
}

func defaultRequestID() string {
	return uuid.NewString()
}
