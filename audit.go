package sessioncap

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/sessioncap/internal/audit"
)

// AuditEvent is one security-relevant occurrence emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a *slog.Logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
