// Package dispatcher is the match event bus. Simulation components publish
// gameplay events (zone captures, kills, match end) and consumers such as
// the HUD sink, recorder, and spectator stream subscribe to the topics they
// care about. Subscribers can be buffered so slow sinks never stall the
// tick loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Topics published by the simulation.
const (
	TopicZoneCaptured    = "zone.captured"
	TopicCombatantKilled = "combatant.killed"
	TopicMatchEnded      = "match.ended"
)

// Event is one gameplay occurrence. Payload holds the topic's event struct
// from pkg/core.
type Event struct {
	Topic     string
	Tick      uint64
	Timestamp time.Time
	Payload   any
}

// HandlerFunc consumes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the subscriber async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered subscriber block when its queue is full instead
// of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around the subscriber.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher fans events out to topic subscribers.
type Dispatcher struct {
	logger Logger

	queueSize metric.Int64ObservableGauge
	published metric.Int64Counter
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Buffers are tracked per subscriber for the gauge callback, keyed
	// "topic/name".
	mu          sync.RWMutex
	subscribers map[string][]HandlerFunc
	buffers     map[string]chan Event
}

// New creates a Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		subscribers: make(map[string][]HandlerFunc),
		buffers:     make(map[string]chan Event),
		logger:      logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events queued per subscriber"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for key, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("subscriber", key)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.published, err = m.Int64Counter(
		"dispatcher.events.published",
		metric.WithDescription("Total events published per topic"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed by buffered subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Subscribe registers a consumer for a topic. name labels the consumer in
// metrics and logs; it should be stable ("recorder", "hud", "stream").
func (d *Dispatcher) Subscribe(topic, name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(topic, name, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(topic, name, handler)
	}

	d.mu.Lock()
	d.subscribers[topic] = append(d.subscribers[topic], handler)
	d.mu.Unlock()
}

// Publish fans an event out to every subscriber of its topic. Subscriber
// errors are joined; an event with no subscribers is not an error.
func (d *Dispatcher) Publish(e Event) error {
	d.mu.RLock()
	handlers := d.subscribers[e.Topic]
	d.mu.RUnlock()

	d.published.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("topic", e.Topic)))

	var errs []error
	for _, h := range handlers {
		if err := h(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasSubscribers returns true if anyone listens on the topic.
func (d *Dispatcher) HasSubscribers(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic]) > 0
}

func (d *Dispatcher) withBuffer(topic, name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)
	key := topic + "/" + name

	d.mu.Lock()
	d.buffers[key] = buffer
	d.mu.Unlock()

	subAttr := attribute.String("subscriber", key)

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("subscriber failed", "subscriber", key, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(subAttr))
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(subAttr))
			return fmt.Errorf("queue full: %s", key)
		}
	}
}

func (d *Dispatcher) withLogging(topic, name string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "topic", topic, "subscriber", name, "tick", e.Tick)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "topic", topic, "subscriber", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "topic", topic, "subscriber", name, "duration", time.Since(start))
		}

		return err
	}
}
