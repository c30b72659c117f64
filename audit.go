package goNoPass

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AuditEventAuthRequest is emitted once per SendAuth call.
	AuditEventAuthRequest = "auth_request"
	// AuditEventValidationRequest is emitted once per SendValidation call.
	AuditEventValidationRequest = "validation_request"
)

// AuditEvent describes one completed client call. It never carries the
// email, token, code or jwt.
//
// StatusCode is zero when no HTTP response was obtained. Error is one of the
// ErrorKind constants and empty on success.
type AuditEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	EventType  string        `json:"event_type"`
	RequestID  string        `json:"request_id"`
	ClientID   string        `json:"client_id"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// ChannelSink hands audit events to a buffered channel, optionally keeping
// only some event types.
type ChannelSink struct {
	events chan AuditEvent
	types  map[string]bool
}

// NewChannelSink returns a sink with the given buffer. With eventTypes set,
// every other event type is discarded.
func NewChannelSink(buffer int, eventTypes ...string) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	s := &ChannelSink{events: make(chan AuditEvent, buffer)}
	if len(eventTypes) > 0 {
		s.types = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			s.types[t] = true
		}
	}
	return s
}

// Emit blocks until the event is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	if s.types != nil && !s.types[event.EventType] {
		return
	}
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the buffer.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// LogSink writes each audit event as one zerolog entry: info for successful
// calls, warn for failed ones.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink writing to logger. zerolog.New(w) gives one JSON
// object per line.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	e := s.logger.Info()
	if !event.Success {
		e = s.logger.Warn().Str("error", event.Error)
	}
	if event.StatusCode != 0 {
		e = e.Int("status", event.StatusCode)
	}
	e.Time("at", event.Timestamp).
		Str("request_id", event.RequestID).
		Str("client_id", event.ClientID).
		Str("url", event.URL).
		Dur("duration", event.Duration).
		Bool("success", event.Success).
		Msg(event.EventType)
}
