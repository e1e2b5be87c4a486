package keywarden

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine. Events carry selectors and
// emails, never verifiers or passwords.
const (
	AuditSignupSuccess      = "signup.success"
	AuditSignupDuplicate    = "signup.duplicate"
	AuditSignupRateLimited  = "signup.rate_limited"
	AuditLoginSuccess       = "login.success"
	AuditLoginFailure       = "login.failure"
	AuditLoginRateLimited   = "login.rate_limited"
	AuditLoginLocked        = "login.locked"
	AuditLockoutTriggered   = "lockout.triggered"
	AuditLockoutCleared     = "lockout.cleared"
	AuditSignOut            = "session.sign_out"
	AuditSignOutAll         = "session.sign_out_all"
	AuditSessionRotated     = "session.rotated"
	AuditVerificationIssued = "verification.issued"
	AuditVerificationDone   = "verification.confirmed"
	AuditResetIssued        = "reset.issued"
	AuditResetDone          = "reset.confirmed"
	AuditOAuthBegin         = "oauth.begin"
	AuditOAuthSuccess       = "oauth.success"
	AuditOAuthFailure       = "oauth.failure"
)

// AuditEvent is one security-relevant occurrence handed to the [AuditSink].
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher goroutine. Emit
// must be safe for concurrent use and should return promptly; slow sinks
// cause drops when the dispatcher buffer fills.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel for host-side processing.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink builds a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit implements [AuditSink].
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an [io.Writer].
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink builds a line-delimited JSON sink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
