// Package natsink forwards replanning events from an event.Bus to NATS
// subjects so that out-of-process observers can follow decisions.
package natsink

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/event"
	"github.com/Iron-Ham/replan/internal/logging"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "replan"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON document published for every event.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      event.Event `json:"data"`
}

// Option configures a Sink.
type Option func(*Sink)

// WithSubjectPrefix sets the subject prefix; events go to "<prefix>.<type>".
func WithSubjectPrefix(prefix string) Option {
	return func(s *Sink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger used to report publish failures.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sink publishes bus events to NATS. Publish failures are counted and
// logged, never returned to the bus.
type Sink struct {
	pub       Publisher
	prefix    string
	logger    *logging.Logger
	published atomic.Uint64
	failures  atomic.Uint64
}

// New creates a Sink that publishes through pub.
func New(pub Publisher, opts ...Option) *Sink {
	s := &Sink{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials a NATS server with reconnect settings suited to a
// long-running observer.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("replan"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect to NATS")
	}
	return conn, nil
}

// Attach subscribes the sink to every event on bus and returns the
// subscription ID.
func (s *Sink) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(s.Handle)
}

// Subject returns the subject an event type is published to.
func (s *Sink) Subject(eventType string) string {
	return s.prefix + "." + eventType
}

// Handle publishes a single event. It satisfies event.Handler.
func (s *Sink) Handle(e event.Event) {
	data, err := json.Marshal(Envelope{
		Type:      e.EventType(),
		Timestamp: e.Timestamp(),
		Data:      e,
	})
	if err != nil {
		s.fail(e, errors.Wrap(err, "marshal event"))
		return
	}

	if err := s.pub.Publish(s.Subject(e.EventType()), data); err != nil {
		s.fail(e, err)
		return
	}
	s.published.Add(1)
}

func (s *Sink) fail(e event.Event, err error) {
	s.failures.Add(1)
	s.logger.Warn("failed to publish event",
		"event_type", e.EventType(),
		"subject", s.Subject(e.EventType()),
		"error", err.Error())
}

// Published returns how many events were delivered to the publisher.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failures returns how many events could not be published.
func (s *Sink) Failures() uint64 { return s.failures.Load() }
