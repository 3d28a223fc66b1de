package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zachsimson/Lockedin/internal/metrics"

	"go.uber.org/zap"
)

// Event types published after successful state changes.
const (
	EventLockEnabled     = "lock_enabled"
	EventUnlockRequested = "unlock_requested"
	EventUnlockApproved  = "unlock_approved"
	EventUnlockDenied    = "unlock_denied"
	EventLockDisabled    = "lock_disabled"
	EventChatMessage     = "chat_message"
)

// Event is the envelope carried by every sink. UserID targets a single user's
// connections; Room targets everyone joined to a chat room.
type Event struct {
	Type      string          `json:"type"`
	UserID    uint            `json:"user_id,omitempty"`
	Room      string          `json:"room,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals data into an Event stamped with the current time.
func NewEvent(typ string, userID uint, data interface{}) (Event, error) {
	ev := Event{Type: typ, UserID: userID, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// Sink delivers events. Delivery is best effort: callers log failures and move on.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Nop drops every event.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events to the application log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	s.logger.Info("event",
		zap.String("type", ev.Type),
		zap.Uint("user_id", ev.UserID),
		zap.String("room", ev.Room),
	)
	return nil
}

type named struct {
	name string
	sink Sink
}

// Multi fans an event out to several sinks and joins their errors.
type Multi struct {
	sinks []named
}

func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under a name used for metrics.
func (m *Multi) Add(name string, s Sink) *Multi {
	m.sinks = append(m.sinks, named{name: name, sink: s})
	return m
}

func (m *Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.sink.Publish(ctx, ev); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(n.name, "error").Inc()
			errs = append(errs, err)
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(n.name, "ok").Inc()
	}
	return errors.Join(errs...)
}
