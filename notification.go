package authflow

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Severity selects the notification style.
type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

// Notification is a transient, advisory outcome message. Sinks dismiss it
// after TTL; no acknowledgement is expected.
type Notification struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Severity    Severity      `json:"severity"`
	At          time.Time     `json:"at"`
	TTL         time.Duration `json:"ttl"`
	// Step is where the user was when the outcome was produced.
	Step string `json:"step"`
}

// NotificationSink presents notifications. Emit must not block for long.
type NotificationSink interface {
	Emit(ctx context.Context, n Notification)
}

// NoOpSink discards every notification.
type NoOpSink struct{}

// Emit does nothing.
func (NoOpSink) Emit(context.Context, Notification) {}

// ChannelSink forwards notifications to a buffered channel.
type ChannelSink struct {
	notifications chan Notification
}

// NewChannelSink returns a sink buffering up to buffer notifications.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		notifications: make(chan Notification, buffer),
	}
}

// Emit blocks until there is room or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, n Notification) {
	select {
	case s.notifications <- n:
	case <-ctx.Done():
	}
}

// Notifications returns the receive side of the buffer.
func (s *ChannelSink) Notifications() <-chan Notification {
	return s.notifications
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit encodes n as one line. Write errors are dropped.
func (s *JSONWriterSink) Emit(_ context.Context, n Notification) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
