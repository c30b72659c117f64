package goNoPass

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrConfiguration is returned by construction when Config is invalid.
	ErrConfiguration = errors.New("invalid client configuration")
	// ErrSigning is returned when a request payload cannot be signed.
	ErrSigning = errors.New("request signing failed")
	// ErrTransport is returned when no HTTP response was obtained.
	ErrTransport = errors.New("transport failure")
	// ErrServer matches every *ServerError.
	ErrServer = errors.New("server rejected request")
	// ErrMalformedResponse matches every *MalformedResponseError.
	ErrMalformedResponse = errors.New("malformed response body")
	// ErrEmptyResponse matches every *EmptyResponseError.
	ErrEmptyResponse = errors.New("empty response body")
	// ErrInvalidRequest is returned when a required call argument is blank.
	ErrInvalidRequest = errors.New("invalid request argument")
	// ErrChallengeMismatch is returned by SendValidation when a configured
	// ChallengeTracker has no record of the token being issued for the email.
	ErrChallengeMismatch = errors.New("challenge token was not issued for this email")
	// ErrChallengeTrackerUnavailable is returned when the ChallengeTracker backend fails.
	ErrChallengeTrackerUnavailable = errors.New("challenge tracker unavailable")
)

// Error kinds carried by AuditEvent.Error and the error-kind metrics.
const (
	ErrorKindInvalidRequest    = "invalid_request"
	ErrorKindSigning           = "signing"
	ErrorKindTransport         = "transport"
	ErrorKindServer            = "server"
	ErrorKindMalformedResponse = "malformed_response"
	ErrorKindEmptyResponse     = "empty_response"
	ErrorKindChallengeMismatch = "challenge_mismatch"
	ErrorKindUnknown           = "unknown"
)

// ServerError reports a non-2xx HTTP response. The raw body is preserved.
type ServerError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *ServerError) Error() string {
	msg := "server rejected request: status " + strconv.Itoa(e.StatusCode)
	if len(e.Body) > 0 {
		msg += ": " + truncate(string(e.Body), 256)
	}
	return msg
}

// Is reports whether target is ErrServer.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// MalformedResponseError reports a non-empty 2xx body that is not a JSON object.
type MalformedResponseError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response body (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("malformed response body (status %d)", e.StatusCode)
}

// Is reports whether target is ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// EmptyResponseError reports a 2xx response whose body is empty or whitespace.
// It usually points at a misconfigured BaseURL.
type EmptyResponseError struct {
	URL        string
	StatusCode int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty response body from %s (status %d)", e.URL, e.StatusCode)
}

// Is reports whether target is ErrEmptyResponse.
func (e *EmptyResponseError) Is(target error) bool {
	return target == ErrEmptyResponse
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
