package security

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
	"github.com/wayfarer-erp/backend/internal/threat"
)

var (
	// ErrDispatcherFull is returned by Record when the queue has no free slot.
	ErrDispatcherFull = errors.New("security event queue full")
	// ErrDispatcherClosed is returned by Record after Close.
	ErrDispatcherClosed = errors.New("security event dispatcher closed")
)

// Target receives events from a Dispatcher on its delivery goroutine and
// may block on I/O.
type Target struct {
	Name        string
	MinSeverity threat.Severity
	Sink        EventSink
}

// Dispatcher queues events and delivers them to every target in order from
// one background goroutine. Record never blocks.
type Dispatcher struct {
	targets []Target

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with a queue of the given size.
func NewDispatcher(buffer int, targets ...Target) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		targets: append([]Target(nil), targets...),
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Record implements EventSink.
func (d *Dispatcher) Record(e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- e:
		return nil
	default:
		return ErrDispatcherFull
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		for _, t := range d.targets {
			if t.MinSeverity != "" && e.Severity.Rank() < t.MinSeverity.Rank() {
				continue
			}
			d.deliver(t, e)
		}
	}
}

func (d *Dispatcher) deliver(t Target, e Event) {
	log := logger.Component("security").WithFields(logrus.Fields{"target": t.Name, "event_type": e.Type, "event_id": e.ID})
	defer func() {
		if r := recover(); r != nil {
			metrics.IncSinkDropped(t.Name)
			log.Warnf("security target panic: %v", r)
		}
	}()
	if err := t.Sink.Record(e); err != nil {
		metrics.IncSinkDropped(t.Name)
		log.WithError(err).Warn("security target failed")
	}
}

// LogSink writes events as structured records through a log sink.
func LogSink(s logger.Sink) EventSink {
	return EventSinkFunc(func(e Event) error {
		return s.Emit("security event", logrus.Fields{
			"event":      "security",
			"id":         e.ID,
			"event_type": e.Type,
			"severity":   e.Severity,
			"timestamp":  e.Timestamp,
			"payload":    e.Payload,
		})
	})
}
