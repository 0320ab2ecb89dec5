package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	IdentityID string            `json:"identity_id,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Purpose    string            `json:"purpose,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
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
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
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
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
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

// LoggerSink writes each event as one structured log line.
type LoggerSink struct {
	logger zerolog.Logger
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	if s == nil {
		return
	}
	level := zerolog.InfoLevel
	if !event.Success {
		level = zerolog.WarnLevel
	}

	e := s.logger.WithLevel(level).
		Time("at", event.Timestamp).
		Str("event", event.EventType).
		Bool("success", event.Success)
	if event.IdentityID != "" {
		e = e.Str("identity_id", event.IdentityID)
	}
	if event.Phone != "" {
		e = e.Str("phone", event.Phone)
	}
	if event.Purpose != "" {
		e = e.Str("purpose", event.Purpose)
	}
	if event.IP != "" {
		e = e.Str("ip", event.IP)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		e = e.Dict("metadata", dict)
	}
	e.Msg("audit")
}
