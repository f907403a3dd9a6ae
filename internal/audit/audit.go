package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	LoginSuccess             = "login_success"
	LoginFailure             = "login_failure"
	RefreshSuccess           = "refresh_success"
	RefreshInvalid           = "refresh_invalid"
	SessionEvicted           = "session_evicted"
	LogoutSession            = "logout_session"
	LogoutAll                = "logout_all"
	AccountCreationSuccess   = "account_creation_success"
	AccountCreationDuplicate = "account_creation_duplicate"
	AccountCreationFailure   = "account_creation_failure"
	AuthorizationDenied      = "authorization_denied"
)

// Event is one security-relevant occurrence. UserID is zero when the user is
// unknown (for example a failed login for an unregistered email).
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must be safe for
// concurrent use when shared by several engines.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// SlogSink logs each event as a structured record at Info level, or Warn for
// unsuccessful events.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	attrs := make([]slog.Attr, 0, 6+len(event.Metadata))
	attrs = append(attrs,
		slog.String("event_type", event.Type),
		slog.Bool("success", event.Success),
	)
	if event.UserID != 0 {
		attrs = append(attrs, slog.String("user_id", strconv.FormatInt(event.UserID, 10)))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}
