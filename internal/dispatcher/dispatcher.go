// Package dispatcher routes named commands to handlers. Operator commands run
// synchronously on the caller; recording runs behind a buffered queue so the
// update loop never waits for a backend.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/drone-tracker/internal/dispatcher"

var (
	// ErrClosed is returned when dispatching to a buffered handler after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned when a non-blocking queue has no room left.
	ErrQueueFull = errors.New("queue full")
)

// Event is a command routed through the dispatcher. Operator commands carry
// their words in Args; telemetry carries a typed value in Payload.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size.
// Events are handled one at a time in the order they were dispatched.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a buffered handler wait for room instead of dropping.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs each call at debug level and failures at error level.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// queue is the channel and consumer behind one buffered command.
type queue struct {
	command  string
	events   chan Event
	blocking bool
	attrs    metric.MeasurementOption
}

type instruments struct {
	depth     metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   instruments

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	// senders hold queuesMu for reading, so Close never closes a channel
	// under a pending send
	queuesMu sync.RWMutex
	queues   map[string]*queue
	closed   atomic.Bool
	workers  sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*queue),
	}
	if err := d.initInstruments(otel.Meter(instrumentationName)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) initInstruments(m metric.Meter) error {
	var err error
	if d.inst.depth, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in each buffered queue")); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if d.inst.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Buffered events handled")); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.inst.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Buffered events rejected by a full queue")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.queuesMu.RLock()
		defer d.queuesMu.RUnlock()
		for _, q := range d.queues {
			o.ObserveInt64(d.inst.depth, int64(len(q.events)), q.attrs)
		}
		return nil
	}, d.inst.depth)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

// Register installs h for command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.bufferSize > 0 {
		h = d.enqueue(d.startQueue(command, o.bufferSize, o.blocking, h))
	}
	if o.logged {
		h = d.logged(command, h)
	}

	d.handlersMu.Lock()
	d.handlers[command] = h
	d.handlersMu.Unlock()
}

// Dispatch routes an event to its registered handler. Buffered handlers
// return "queued" once the event is accepted.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.handlersMu.RLock()
	h, ok := d.handlers[e.Command]
	d.handlersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler reports whether a handler is registered for command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// QueueLen reports how many events are waiting in a buffered handler's queue.
func (d *Dispatcher) QueueLen(command string) int {
	d.queuesMu.RLock()
	defer d.queuesMu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return len(q.events)
	}
	return 0
}

// Close stops accepting buffered events and returns once every queued event
// has been handled. Synchronous handlers keep working.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.queuesMu.Lock()
	for _, q := range d.queues {
		close(q.events)
	}
	d.queuesMu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) startQueue(command string, size int, blocking bool, h HandlerFunc) *queue {
	q := &queue{
		command:  command,
		events:   make(chan Event, size),
		blocking: blocking,
		attrs:    metric.WithAttributes(attribute.String("command", command)),
	}

	d.queuesMu.Lock()
	d.queues[command] = q
	d.queuesMu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range q.events {
			if _, err := h(e); err != nil && d.logger != nil {
				d.logger.Error("buffered handler failed", "command", command, "error", err)
			}
			d.inst.processed.Add(context.Background(), 1, q.attrs)
		}
	}()
	return q
}

func (d *Dispatcher) enqueue(q *queue) HandlerFunc {
	return func(e Event) (any, error) {
		d.queuesMu.RLock()
		defer d.queuesMu.RUnlock()
		if d.closed.Load() {
			return nil, ErrClosed
		}

		if q.blocking {
			q.events <- e
			return "queued", nil
		}
		select {
		case q.events <- e:
			return "queued", nil
		default:
			d.inst.dropped.Add(context.Background(), 1, q.attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, q.command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
